package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken - эталонное соотношение символов к токенам для английского текста.
const charsPerToken = 4

// Estimate возвращает приближенную оценку числа токенов по длине текста.
// Чистая функция без побочных эффектов; для пустой строки возвращает 0.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / charsPerToken
	if n == 0 {
		// Непустой текст всегда стоит хотя бы один токен.
		return 1
	}
	return n
}

// ExactCounter считает токены точно через tiktoken для конкретной модели.
// Оценки Estimate используются до вызова провайдера; точный подсчет нужен,
// когда провайдер не вернул Usage в ответе.
type ExactCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewExactCounter создает счетчик для модели. Если энкодинг модели неизвестен,
// возвращается счетчик с fallback на эвристику Estimate.
func NewExactCounter(model string) *ExactCounter {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return &ExactCounter{}
	}
	return &ExactCounter{encoding: tke}
}

// Count возвращает число токенов в тексте.
func (c *ExactCounter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return Estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

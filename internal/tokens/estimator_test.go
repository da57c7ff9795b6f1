package tokens_test

import (
	"strings"
	"testing"

	"fabula-server/internal/tokens"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "Empty string yields zero", text: "", expected: 0},
		{name: "Short text rounds up to one token", text: "hi", expected: 1},
		{name: "Four chars per token", text: strings.Repeat("a", 400), expected: 100},
		{name: "Truncating division", text: strings.Repeat("a", 403), expected: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tokens.Estimate(tc.text))
		})
	}
}

func TestEstimate_NonNegative(t *testing.T) {
	// Оценка не бывает отрицательной ни для какого входа.
	for _, text := range []string{"", " ", "\n", "слово", strings.Repeat("x", 10000)} {
		assert.GreaterOrEqual(t, tokens.Estimate(text), 0)
	}
}

func TestExactCounter_FallbackForUnknownModel(t *testing.T) {
	counter := tokens.NewExactCounter("definitely-not-a-model")
	// Неизвестная модель не ломает подсчет - работает эвристика.
	assert.Equal(t, tokens.Estimate("some reasonably long text here"), counter.Count("some reasonably long text here"))
	assert.Equal(t, 0, counter.Count(""))
}

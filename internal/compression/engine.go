package compression

import (
	"fmt"
	"strings"

	"fabula-server/internal/models"
	"fabula-server/internal/tokens"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Цена входных токенов. Экономия от сжатия всегда считается по входной
// ставке, даже когда сокращение пришлось на суммируемый текст: именно эти
// цифры показываются пользователю, и менять их семантику нельзя.
const pricePerMillionInputTokensUSD = 0.1

const (
	longParagraphChars = 400 // порог, после которого абзац суммируется
	minExtractChars    = 60  // меньше этого - извлечение считается неудачным
	maxBullets         = 5
	maxKeywords        = 20
	truncationMarker   = "\n[context truncated]"
)

var (
	compressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_engine_compressions_total",
			Help: "Total number of compression runs.",
		},
		[]string{"method"},
	)
	tokensSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "context_engine_tokens_saved_total",
			Help: "Total number of prompt tokens removed by compression.",
		},
	)
)

// Engine применяет одну из трех стратегий сжатия к текстовому блоку.
// Единственное изменяемое состояние - накопительная статистика Stats.
type Engine struct {
	logger *zap.Logger
	stats  *Stats
}

// NewEngine создает движок сжатия. При nil stats создается собственный объект.
func NewEngine(logger *zap.Logger, stats *Stats) *Engine {
	if stats == nil {
		stats = NewStats()
	}
	return &Engine{
		logger: logger.Named("CompressionEngine"),
		stats:  stats,
	}
}

// Stats возвращает объект статистики движка.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Compress сжимает текст согласно запрошенному уровню.
// Premium-подписка понижает aggressive до moderate; повышения уровня
// со стороны тарифа не бывает. Для пустого входа возвращается результат
// с ratio ровно 1.0, статистика при этом не изменяется.
func (e *Engine) Compress(req models.CompressionRequest) (models.CompressionResult, error) {
	if req.TokenCeiling < 0 {
		return models.CompressionResult{}, fmt.Errorf("%w: ceiling=%d", models.ErrNegativeCeiling, req.TokenCeiling)
	}
	if !req.Level.Valid() {
		return models.CompressionResult{}, fmt.Errorf("%w: %q", models.ErrInvalidLevel, req.Level)
	}

	originalTokens := tokens.Estimate(req.Text)
	if originalTokens == 0 {
		return models.CompressionResult{
			OriginalText:   req.Text,
			CompressedText: req.Text,
			Ratio:          1.0,
			Method:         "noop",
		}, nil
	}

	level := req.Level
	if req.Tier == models.TierPremium && level == models.CompressionAggressive {
		level = models.CompressionModerate
	}

	compressed, method, preserved := e.applyLevel(req.Text, level, req.Preserve, req.TokenCeiling)

	compressedTokens := tokens.Estimate(compressed)
	reduced := originalTokens - compressedTokens
	if reduced < 0 {
		reduced = 0
	}
	savings := float64(reduced) * pricePerMillionInputTokensUSD / 1_000_000.0
	ratio := float64(compressedTokens) / float64(originalTokens)

	e.stats.record(method, reduced, savings, ratio)
	compressionsTotal.With(prometheus.Labels{"method": method}).Inc()
	tokensSavedTotal.Add(float64(reduced))

	e.logger.Debug("Compression completed",
		zap.String("method", method),
		zap.Int("original_tokens", originalTokens),
		zap.Int("compressed_tokens", compressedTokens),
		zap.Float64("ratio", ratio),
	)

	return models.CompressionResult{
		OriginalText:     req.Text,
		CompressedText:   compressed,
		OriginalTokens:   originalTokens,
		CompressedTokens: compressedTokens,
		TokensReduced:    reduced,
		CostSavingsUSD:   savings,
		Ratio:            ratio,
		Preserved:        preserved,
		Method:           method,
	}, nil
}

// applyLevel выполняет цепочку преобразований выбранного уровня.
// Уровни строго вложены: moderate начинается с light, aggressive - с moderate.
func (e *Engine) applyLevel(text string, level models.CompressionLevel, preserve []models.PreserveCategory, ceiling int) (string, string, []models.PreserveCategory) {
	// light: нормализация пробелов, словесный мусор, дедупликация описаний.
	out := normalizeWhitespace(text)
	out = stripFiller(out)
	out = normalizeWhitespace(out)
	out = dedupeSentences(out)
	if level == models.CompressionLight {
		return out, "light", copyPreserve(preserve)
	}

	// moderate: шаблонные обороты + суммирование длинных абзацев.
	out = applyTemplates(out)
	out = summarizeParagraphs(out, preserve)
	if level == models.CompressionModerate {
		return out, "moderate", copyPreserve(preserve)
	}

	// aggressive: свертка в маркированный список или в список ключевых слов.
	var method string
	var preserved []models.PreserveCategory
	var collapsed string
	if len(preserve) > 0 {
		collapsed = collapseToBullets(out, preserve)
		method = "aggressive_bullets"
		preserved = copyPreserve(preserve)
	} else {
		collapsed = "Key elements: " + strings.Join(topKeywords(out, maxKeywords), ", ")
		method = "aggressive_keywords"
	}

	// Обвязка свертки (маркеры, префикс) имеет фиксированную цену: на коротком
	// тексте свернутый вариант может оказаться длиннее. Уровни строго вложены,
	// поэтому в этом случае остается текст после moderate-преобразований -
	// aggressive никогда не выдает больше токенов, чем light.
	if tokens.Estimate(collapsed) < tokens.Estimate(out) {
		out = collapsed
	} else {
		method = "aggressive_noop"
	}

	// Жесткий потолок применяется только здесь: после усечения оценка
	// токенов никогда не превышает ceiling.
	if ceiling > 0 && tokens.Estimate(out) > ceiling {
		out = hardTruncate(out, ceiling)
		method += "_truncated"
	}
	return out, method, preserved
}

// summarizeParagraphs суммирует абзацы длиннее порога, извлекая предложения,
// попадающие в активные категории сохранения. Если извлечение дало слишком
// мало, абзац остается как был.
func summarizeParagraphs(text string, preserve []models.PreserveCategory) string {
	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		if len(p) <= longParagraphChars {
			continue
		}
		extracted := make([]string, 0)
		for _, s := range splitSentences(p) {
			if matchesPreserve(s, preserve) {
				extracted = append(extracted, s)
			}
		}
		summary := strings.Join(extracted, " ")
		if len(summary) < minExtractChars {
			continue
		}
		paragraphs[i] = summary
	}
	return strings.Join(paragraphs, "\n\n")
}

// collapseToBullets сводит текст к маркированному списку из предложений,
// попадающих в категории сохранения; если таких нет - берутся первые.
func collapseToBullets(text string, preserve []models.PreserveCategory) string {
	sentences := splitSentences(text)
	picked := make([]string, 0, maxBullets)
	for _, s := range sentences {
		if matchesPreserve(s, preserve) {
			picked = append(picked, s)
			if len(picked) == maxBullets {
				break
			}
		}
	}
	if len(picked) == 0 {
		for _, s := range sentences {
			picked = append(picked, s)
			if len(picked) == maxBullets {
				break
			}
		}
	}
	var b strings.Builder
	for _, s := range picked {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// hardTruncate усекает текст так, чтобы оценка токенов не превышала ceiling,
// и помечает место обрыва маркером.
func hardTruncate(text string, ceiling int) string {
	limit := ceiling * 4 // обратная сторона эвристики chars-per-token
	if limit <= len(truncationMarker) {
		return truncateToBytes(text, limit)
	}
	return truncateToBytes(text, limit-len(truncationMarker)) + truncationMarker
}

func copyPreserve(preserve []models.PreserveCategory) []models.PreserveCategory {
	if len(preserve) == 0 {
		return nil
	}
	out := make([]models.PreserveCategory, len(preserve))
	copy(out, preserve)
	return out
}

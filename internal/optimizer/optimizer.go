package optimizer

import (
	"fmt"
	"strings"

	"fabula-server/internal/analysis"
	"fabula-server/internal/compression"
	"fabula-server/internal/models"

	"go.uber.org/zap"
)

const (
	defaultQualityThreshold = 70
	defaultBaseTokenBudget  = 4000
	complexBudgetScale      = 1.2
	// Бюджет ретраев качества. Ровно один: light дальше понижать некуда,
	// и ограничение задано явно, а не через инвариант убывания уровня.
	maxQualityFallbacks = 1
)

// Options - параметры оптимизации контекста.
// Нулевые значения числовых полей заменяются дефолтами.
type Options struct {
	Level models.CompressionLevel
	Tier  models.SubscriptionTier
	// QualityThreshold - минимальная оценка качества для принятия результата.
	// Ноль означает порог по умолчанию; отрицательное значение принимает
	// любой результат и отключает ретрай.
	QualityThreshold int
	BaseTokenBudget  int
	PreserveTone     bool
	ExtraPreserve    []models.PreserveCategory
}

func (o Options) withDefaults() Options {
	if o.Level == "" {
		o.Level = models.CompressionModerate
	}
	if o.QualityThreshold == 0 {
		o.QualityThreshold = defaultQualityThreshold
	}
	if o.BaseTokenBudget == 0 {
		o.BaseTokenBudget = defaultBaseTokenBudget
	}
	return o
}

// Optimizer связывает анализатор и движок сжатия в одну операцию
// "подготовь контекст к следующему вызову генерации".
type Optimizer struct {
	analyzer *analysis.Analyzer
	engine   *compression.Engine
	logger   *zap.Logger
}

// New создает оптимизатор контекста.
func New(analyzer *analysis.Analyzer, engine *compression.Engine, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		analyzer: analyzer,
		engine:   engine,
		logger:   logger.Named("ContextOptimizer"),
	}
}

// OptimizeStoryContext оптимизирует полный контекст истории под бюджет токенов.
// Если оценка качества результата ниже порога, выполняется не более одного
// ретрая с принудительным уровнем light; возвращается только финальный результат.
func (o *Optimizer) OptimizeStoryContext(storyCtx models.StoryContext, opts Options) (models.OptimizationResult, error) {
	return o.optimize(storyCtx, opts.withDefaults(), maxQualityFallbacks)
}

func (o *Optimizer) optimize(storyCtx models.StoryContext, opts Options, fallbacksLeft int) (models.OptimizationResult, error) {
	if !opts.Level.Valid() {
		return models.OptimizationResult{}, fmt.Errorf("%w: %q", models.ErrInvalidLevel, opts.Level)
	}

	metrics := o.analyzer.Analyze(storyCtx)
	req := o.deriveRequest(storyCtx, metrics, opts)

	result, err := o.engine.Compress(req)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("context compression failed: %w", err)
	}

	score := qualityScore(result, metrics)

	// Fallback по качеству: единственный автоматический ретрай в системе.
	if score < opts.QualityThreshold && req.Level != models.CompressionLight && fallbacksLeft > 0 {
		o.logger.Debug("Quality below threshold, retrying with light compression",
			zap.Int("score", score),
			zap.Int("threshold", opts.QualityThreshold),
			zap.String("level_used", string(req.Level)),
		)
		retryOpts := opts
		retryOpts.Level = models.CompressionLight
		return o.optimize(storyCtx, retryOpts, fallbacksLeft-1)
	}

	return models.OptimizationResult{
		CompressionResult: result,
		QualityScore:      score,
		Breakdown:         breakdown(storyCtx, result),
		LevelUsed:         req.Level,
	}, nil
}

// deriveRequest выводит эффективные параметры сжатия из метрик и опций.
// Сложные истории (много персонажей или критических точек) переносят меньше
// сжатия: уровень понижается на одну ступень, бюджет растет на 20%.
func (o *Optimizer) deriveRequest(storyCtx models.StoryContext, metrics models.AnalysisMetrics, opts Options) models.CompressionRequest {
	level := opts.Level
	if metrics.IsComplex() {
		level = level.Downgrade()
	}

	preserve := make([]models.PreserveCategory, 0, 4)
	if opts.PreserveTone {
		preserve = append(preserve, models.PreserveStoryTone)
	}
	if metrics.CharacterCount > 0 {
		preserve = append(preserve, models.PreserveCharacterNames, models.PreserveDialogue)
	}
	if metrics.CriticalPlotPoints > 0 {
		preserve = append(preserve, models.PreservePlotPoints)
	}
	for _, extra := range opts.ExtraPreserve {
		if !containsCategory(preserve, extra) {
			preserve = append(preserve, extra)
		}
	}

	budget := opts.BaseTokenBudget
	if metrics.IsComplex() {
		budget = int(float64(budget) * complexBudgetScale)
	}

	return models.CompressionRequest{
		Text:         o.analyzer.BuildContextString(storyCtx, metrics),
		Level:        level,
		TokenCeiling: budget,
		Preserve:     preserve,
		Tier:         opts.Tier,
	}
}

// qualityScore - эвристическая оценка (0-100) того, сколько нарративно
// значимой информации пережило сжатие.
func qualityScore(result models.CompressionResult, metrics models.AnalysisMetrics) int {
	score := 100

	switch {
	case result.Ratio < 0.3:
		score -= 30
	case result.Ratio < 0.5:
		score -= 15
	}

	if result.HasPreserved(models.PreserveCharacterNames) {
		score += 5
	}
	if result.HasPreserved(models.PreservePlotPoints) {
		score += 5
	}
	if result.HasPreserved(models.PreserveStoryTone) {
		score += 5
	}

	if metrics.CharacterCount > 5 && result.Ratio < 0.6 {
		score -= 10
	}
	if metrics.CriticalPlotPoints > 3 && result.Ratio < 0.7 {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// breakdown считает, что именно из контекста дожило до сжатого текста.
func breakdown(storyCtx models.StoryContext, result models.CompressionResult) models.PreservedBreakdown {
	b := models.PreservedBreakdown{}
	for _, ch := range storyCtx.Characters {
		if ch.Name != "" && strings.Contains(result.CompressedText, ch.Name) {
			b.Characters++
		}
	}
	for _, pp := range storyCtx.PlotPoints {
		if pp.Description != "" && strings.Contains(result.CompressedText, pp.Description) {
			b.PlotPoints++
		}
	}
	b.ToneKept = storyCtx.Tone != "" && strings.Contains(result.CompressedText, storyCtx.Tone)
	b.PrevContextKept = strings.Contains(result.CompressedText, "Previous chapters")
	return b
}

func containsCategory(cats []models.PreserveCategory, cat models.PreserveCategory) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

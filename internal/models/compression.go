package models

// CompressionLevel определяет, насколько агрессивно отбрасывается исходный текст.
type CompressionLevel string

const (
	CompressionLight      CompressionLevel = "light"
	CompressionModerate   CompressionLevel = "moderate"
	CompressionAggressive CompressionLevel = "aggressive"
)

// Downgrade возвращает уровень на одну ступень мягче.
// light дальше понижать некуда - возвращается как есть.
func (l CompressionLevel) Downgrade() CompressionLevel {
	switch l {
	case CompressionAggressive:
		return CompressionModerate
	case CompressionModerate:
		return CompressionLight
	default:
		return CompressionLight
	}
}

// Valid сообщает, является ли значение известным уровнем сжатия.
func (l CompressionLevel) Valid() bool {
	switch l {
	case CompressionLight, CompressionModerate, CompressionAggressive:
		return true
	}
	return false
}

// SubscriptionTier - уровень подписки пользователя. Влияет на дефолтную
// агрессивность сжатия, месячное начисление кредитов и потолок баланса.
type SubscriptionTier string

const (
	TierBasic   SubscriptionTier = "basic"
	TierPremium SubscriptionTier = "premium"
)

// PreserveCategory - именованный класс содержимого, который стратегии сжатия
// обязаны сохранять преимущественно.
type PreserveCategory string

const (
	PreserveCharacterNames PreserveCategory = "character_names"
	PreserveDialogue       PreserveCategory = "dialogue"
	PreservePlotPoints     PreserveCategory = "plot_points"
	PreserveStoryTone      PreserveCategory = "story_tone"
)

// CompressionRequest - запрос на сжатие текстового блока.
// TokenCeiling <= 0 означает отсутствие жесткого потолка (nil-указатель не
// используется, валидация отвергает отрицательные значения).
type CompressionRequest struct {
	Text         string             `json:"text"`
	Level        CompressionLevel   `json:"level"`
	TokenCeiling int                `json:"token_ceiling,omitempty"`
	Preserve     []PreserveCategory `json:"preserve,omitempty"`
	Tier         SubscriptionTier   `json:"tier,omitempty"`
}

// CompressionResult - результат одного прогона сжатия.
// Ratio определяется как compressed/original и равен 1.0 при пустом входе.
type CompressionResult struct {
	OriginalText     string             `json:"original_text,omitempty"`
	CompressedText   string             `json:"compressed_text"`
	OriginalTokens   int                `json:"original_tokens"`
	CompressedTokens int                `json:"compressed_tokens"`
	TokensReduced    int                `json:"tokens_reduced"`
	CostSavingsUSD   float64            `json:"cost_savings_usd"`
	Ratio            float64            `json:"ratio"`
	Preserved        []PreserveCategory `json:"preserved,omitempty"`
	Method           string             `json:"method"`
}

// HasPreserved сообщает, была ли категория фактически сохранена.
func (r *CompressionResult) HasPreserved(cat PreserveCategory) bool {
	for _, p := range r.Preserved {
		if p == cat {
			return true
		}
	}
	return false
}

// PreservedBreakdown - сводка того, что пережило оптимизацию.
type PreservedBreakdown struct {
	Characters      int  `json:"characters"`
	PlotPoints      int  `json:"plot_points"`
	ToneKept        bool `json:"tone_kept"`
	PrevContextKept bool `json:"prev_context_kept"`
}

// OptimizationResult расширяет CompressionResult оценкой качества (0-100)
// и сводкой сохраненных элементов. Возвращается только финальный принятый
// результат; при fallback-ретрае оценка пересчитывается заново.
type OptimizationResult struct {
	CompressionResult
	QualityScore int                `json:"quality_score"`
	Breakdown    PreservedBreakdown `json:"breakdown"`
	LevelUsed    CompressionLevel   `json:"level_used"`
	FromCache    bool               `json:"from_cache,omitempty"`
}

// AnalysisMetrics - метрики сложности структурированного контекста истории.
type AnalysisMetrics struct {
	CharacterCount     int     `json:"character_count"`
	PlotPointCount     int     `json:"plot_point_count"`
	CriticalPlotPoints int     `json:"critical_plot_points"`
	PreviousLength     int     `json:"previous_length"`
	GenreComplexity    int     `json:"genre_complexity"`
	CharacterDiversity float64 `json:"character_diversity"`
	DependencyDensity  float64 `json:"dependency_density"`
}

// IsComplex сообщает, считается ли история сложной для сжатия.
// Сложные истории переносят меньше сжатия и получают увеличенный бюджет.
func (m AnalysisMetrics) IsComplex() bool {
	return m.CharacterCount > 5 || m.CriticalPlotPoints > 3
}

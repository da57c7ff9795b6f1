package optimizer_test

import (
	"testing"

	"fabula-server/internal/analysis"
	"fabula-server/internal/compression"
	"fabula-server/internal/models"
	"fabula-server/internal/optimizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOptimizer(t *testing.T) *optimizer.Optimizer {
	t.Helper()
	logger := zap.NewNop()
	return optimizer.New(
		analysis.NewAnalyzer(logger),
		compression.NewEngine(logger, compression.NewStats()),
		logger,
	)
}

func simpleContext() models.StoryContext {
	return models.StoryContext{
		Title:          "The Buried Temple",
		Genre:          "fantasy",
		Premise:        "Two scholars uncover a temple that should not exist beneath the forest floor.",
		Tone:           "ominous",
		CurrentChapter: 4,
		TotalChapters:  12,
		Characters: []models.Character{
			{Name: "Elara", Role: models.RoleProtagonist, Description: "A stubborn cartographer chasing her father's maps", Importance: 9, LastMentioned: 3},
			{Name: "Marcus", Role: models.RoleSupporting, Description: "Her reluctant guide with a debt to settle", Importance: 5, LastMentioned: 3},
			{Name: "Sellis", Role: models.RoleMinor, Description: "An innkeeper who knows too much", Importance: 2, LastMentioned: 1},
		},
		PlotPoints: []models.PlotPoint{
			{ID: "pp-1", Description: "The temple map surfaces in a market stall", Chapter: 1, Importance: models.PlotCritical},
			{ID: "pp-2", Description: "An innkeeper warns them off the forest road", Chapter: 2, Importance: models.PlotMinor},
		},
		PreviousContent: []string{
			"Elara bought the map before the seller could change his mind. Marcus called it a forgery. They argued until nightfall.",
			"The forest road narrowed with every mile. Sellis had warned them, and now the warning made sense.",
		},
	}
}

func complexContext() models.StoryContext {
	storyCtx := simpleContext()
	storyCtx.Characters = nil
	for i := 0; i < 8; i++ {
		storyCtx.Characters = append(storyCtx.Characters, models.Character{
			Name: "Char" + string(rune('A'+i)), Role: models.RoleSupporting,
			Description: "A member of the expedition", Importance: 5, LastMentioned: 3,
		})
	}
	storyCtx.PlotPoints = nil
	for i := 0; i < 5; i++ {
		storyCtx.PlotPoints = append(storyCtx.PlotPoints, models.PlotPoint{
			ID: "cp", Description: "A critical turn of events", Chapter: i + 1, Importance: models.PlotCritical,
		})
	}
	return storyCtx
}

func TestOptimizeStoryContext_SimpleStoryScenario(t *testing.T) {
	opt := newOptimizer(t)

	result, err := opt.OptimizeStoryContext(simpleContext(), optimizer.Options{
		Level: models.CompressionModerate,
		Tier:  models.TierBasic,
	})

	require.NoError(t, err)
	// Персонажи есть -> character_names; критическая точка есть -> plot_points.
	assert.True(t, result.HasPreserved(models.PreserveCharacterNames))
	assert.True(t, result.HasPreserved(models.PreservePlotPoints))
	// Понижение уровня не сработало: персонажей <= 5, критических <= 3.
	assert.Equal(t, models.CompressionModerate, result.LevelUsed)
	assert.GreaterOrEqual(t, result.QualityScore, 70)
	assert.Greater(t, result.Breakdown.Characters, 0)
}

func TestOptimizeStoryContext_ComplexStoryDowngradesLevel(t *testing.T) {
	opt := newOptimizer(t)

	result, err := opt.OptimizeStoryContext(complexContext(), optimizer.Options{
		Level: models.CompressionAggressive,
		Tier:  models.TierBasic,
	})

	require.NoError(t, err)
	// 8 персонажей и 5 критических точек: aggressive понижается до moderate
	// еще до запуска сжатия.
	assert.Equal(t, models.CompressionModerate, result.LevelUsed)
}

func TestOptimizeStoryContext_FallbackTerminates(t *testing.T) {
	opt := newOptimizer(t)

	// Недостижимый порог на уже-light запросе: ровно одна оценка, без
	// рекурсии и зависания.
	result, err := opt.OptimizeStoryContext(simpleContext(), optimizer.Options{
		Level:            models.CompressionLight,
		Tier:             models.TierBasic,
		QualityThreshold: 100,
	})

	require.NoError(t, err)
	assert.Equal(t, models.CompressionLight, result.LevelUsed)
}

func TestOptimizeStoryContext_FallbackRetriesWithLight(t *testing.T) {
	opt := newOptimizer(t)

	// Порог 100 недостижим почти всегда: после первого прогона moderate
	// выполняется единственный ретрай с принудительным light.
	result, err := opt.OptimizeStoryContext(simpleContext(), optimizer.Options{
		Level:            models.CompressionModerate,
		Tier:             models.TierBasic,
		QualityThreshold: 100,
	})

	require.NoError(t, err)
	if result.QualityScore < 100 {
		assert.Equal(t, models.CompressionLight, result.LevelUsed, "final accepted result comes from the light retry")
	}
}

func TestOptimizeStoryContext_NegativeThresholdDisablesFallback(t *testing.T) {
	opt := newOptimizer(t)

	// Отрицательный порог принимает любую оценку: даже при низком качестве
	// результат aggressive не заменяется ретраем с light.
	result, err := opt.OptimizeStoryContext(simpleContext(), optimizer.Options{
		Level:            models.CompressionAggressive,
		Tier:             models.TierBasic,
		QualityThreshold: -1,
	})

	require.NoError(t, err)
	assert.NotEqual(t, models.CompressionLight, result.LevelUsed)
}

func TestOptimizeStoryContext_InvalidLevel(t *testing.T) {
	opt := newOptimizer(t)

	_, err := opt.OptimizeStoryContext(simpleContext(), optimizer.Options{Level: "extreme"})
	assert.ErrorIs(t, err, models.ErrInvalidLevel)
}

func TestOptimizeChapterContext_InvalidChapter(t *testing.T) {
	opt := newOptimizer(t)

	_, err := opt.OptimizeChapterContext(simpleContext(), 0, optimizer.Options{Level: models.CompressionLight})
	assert.ErrorIs(t, err, models.ErrInvalidStoryContext)
}

func TestBatchOptimize_SkipsNilContexts(t *testing.T) {
	opt := newOptimizer(t)
	first := simpleContext()
	third := simpleContext()

	results, err := opt.BatchOptimize([]optimizer.BatchItem{
		{Context: &first, Kind: models.OperationFoundation},
		{Context: nil, Kind: models.OperationChapter},
		{Context: &third, Kind: models.OperationImprovement},
	}, models.TierBasic)

	require.NoError(t, err)
	assert.Len(t, results, 2, "nil context produces no result")
}

func TestBatchOptimize_PremiumDefaultsToLight(t *testing.T) {
	opt := newOptimizer(t)
	storyCtx := simpleContext()

	results, err := opt.BatchOptimize([]optimizer.BatchItem{
		{Context: &storyCtx, Kind: models.OperationImprovement},
	}, models.TierPremium)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.CompressionLight, results[0].LevelUsed)
}

package compression_test

import (
	"strings"
	"testing"

	"fabula-server/internal/compression"
	"fabula-server/internal/models"
	"fabula-server/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const narrativeText = `Elara walked slowly through the ancient forest, listening to the wind.
The trees were very old and really quite tall, and their branches creaked softly.

"We should not be here after dark," Marcus said, glancing over his shoulder.
Elara ignored him because the map pointed deeper into the woods.
It was at that moment that she noticed the carved stone beneath the moss.
The stone revealed a passage that led down into darkness, which led to the buried temple.

The trees were very old and really quite tall, and their branches creaked softly.
Marcus lit a torch and followed her down the worn steps, muttering about curses.`

func newEngine(t *testing.T) *compression.Engine {
	t.Helper()
	return compression.NewEngine(zap.NewNop(), compression.NewStats())
}

func TestCompress_EmptyInput(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Compress(models.CompressionRequest{
		Text:  "",
		Level: models.CompressionLight,
	})

	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Ratio, "ratio must be exactly 1.0, never NaN")
	assert.Equal(t, "noop", result.Method)
	// Вырожденный вход не трогает статистику.
	assert.Equal(t, int64(0), engine.Stats().Snapshot().TotalCompressions)
}

func TestCompress_ValidationErrors(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.Compress(models.CompressionRequest{Text: "x", Level: models.CompressionLight, TokenCeiling: -1})
	assert.ErrorIs(t, err, models.ErrNegativeCeiling)
	assert.ErrorIs(t, err, models.ErrInvalidInput, "validation sentinels wrap the class error")

	_, err = engine.Compress(models.CompressionRequest{Text: "x", Level: "brutal"})
	assert.ErrorIs(t, err, models.ErrInvalidLevel)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCompress_LightStripsFillerAndDuplicates(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Compress(models.CompressionRequest{
		Text:  narrativeText,
		Level: models.CompressionLight,
	})

	require.NoError(t, err)
	assert.NotContains(t, result.CompressedText, "really quite")
	// Повторное описание деревьев дедуплицировано по ключу содержимого.
	assert.Equal(t, 1, strings.Count(result.CompressedText, "branches creaked"))
	assert.Less(t, result.CompressedTokens, result.OriginalTokens)
	assert.Equal(t, "light", result.Method)
}

func TestCompress_AggressiveRespectsCeiling(t *testing.T) {
	engine := newEngine(t)
	ceiling := 20

	result, err := engine.Compress(models.CompressionRequest{
		Text:         narrativeText,
		Level:        models.CompressionAggressive,
		TokenCeiling: ceiling,
		Preserve:     []models.PreserveCategory{models.PreserveDialogue, models.PreservePlotPoints},
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, result.CompressedTokens, ceiling, "ceiling is never exceeded after truncation")
	assert.LessOrEqual(t, result.CompressedTokens, tokens.Estimate(narrativeText))
}

func TestCompress_AggressiveNotLargerThanLight(t *testing.T) {
	light := newEngine(t)
	aggressive := newEngine(t)

	lightRes, err := light.Compress(models.CompressionRequest{Text: narrativeText, Level: models.CompressionLight})
	require.NoError(t, err)
	aggRes, err := aggressive.Compress(models.CompressionRequest{
		Text:     narrativeText,
		Level:    models.CompressionAggressive,
		Preserve: []models.PreserveCategory{models.PreservePlotPoints},
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, aggRes.CompressedTokens, lightRes.CompressedTokens)
}

func TestCompress_AggressiveNotLargerThanLightOnShortText(t *testing.T) {
	// Пять коротких предложений, каждое проходит фильтр сохранения имен:
	// свертка в маркеры дала бы текст длиннее исходного.
	shortText := "Alice met Bob at dawn. Carol found Dave waiting. Erin told Frank the truth. Grace warned Hugh twice. Iris followed Jack home."

	light := newEngine(t)
	aggressive := newEngine(t)

	lightRes, err := light.Compress(models.CompressionRequest{Text: shortText, Level: models.CompressionLight})
	require.NoError(t, err)
	aggRes, err := aggressive.Compress(models.CompressionRequest{
		Text:     shortText,
		Level:    models.CompressionAggressive,
		Preserve: []models.PreserveCategory{models.PreserveCharacterNames},
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, aggRes.CompressedTokens, lightRes.CompressedTokens)
	assert.Equal(t, "aggressive_noop", aggRes.Method, "collapse that grows the text is discarded")
}

func TestCompress_PremiumTierDowngradesAggressive(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Compress(models.CompressionRequest{
		Text:     narrativeText,
		Level:    models.CompressionAggressive,
		Tier:     models.TierPremium,
		Preserve: []models.PreserveCategory{models.PreserveDialogue},
	})

	require.NoError(t, err)
	// Premium никогда не получает свертку в списки.
	assert.Equal(t, "moderate", result.Method)
}

func TestCompress_AggressiveWithoutPreserveYieldsKeywords(t *testing.T) {
	engine := newEngine(t)

	result, err := engine.Compress(models.CompressionRequest{
		Text:  narrativeText,
		Level: models.CompressionAggressive,
	})

	require.NoError(t, err)
	assert.Equal(t, "aggressive_keywords", result.Method)
	assert.True(t, strings.HasPrefix(result.CompressedText, "Key elements: "))
	assert.Empty(t, result.Preserved)
}

func TestStats_IncrementalAverage(t *testing.T) {
	engine := newEngine(t)

	for i := 0; i < 3; i++ {
		_, err := engine.Compress(models.CompressionRequest{Text: narrativeText, Level: models.CompressionLight})
		require.NoError(t, err)
	}

	snap := engine.Stats().Snapshot()
	assert.Equal(t, int64(3), snap.TotalCompressions)
	assert.Equal(t, int64(3), snap.MethodCounts["light"])
	assert.Greater(t, snap.AverageRatio, 0.0)
	assert.LessOrEqual(t, snap.AverageRatio, 1.0)
	assert.Greater(t, snap.TokensSaved, int64(0))
	assert.Greater(t, snap.CostSavedUSD, 0.0)

	engine.Stats().Reset()
	assert.Equal(t, int64(0), engine.Stats().Snapshot().TotalCompressions)
}

func TestCompress_TwoEnginesHaveIndependentStats(t *testing.T) {
	first := newEngine(t)
	second := newEngine(t)

	_, err := first.Compress(models.CompressionRequest{Text: narrativeText, Level: models.CompressionLight})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Stats().Snapshot().TotalCompressions)
	assert.Equal(t, int64(0), second.Stats().Snapshot().TotalCompressions)
}

package optimizer

import (
	"fabula-server/internal/models"

	"go.uber.org/zap"
)

// BatchItem - пара "контекст + тип операции" для пакетной оптимизации.
// Связанные записи вместо двух параллельных массивов: рассинхронизация
// индексов невозможна по построению.
type BatchItem struct {
	Context *models.StoryContext
	Kind    models.OperationType
}

// BatchOptimize применяет предустановленные наборы опций по типу операции
// к каждому элементу. Элементы с nil-контекстом пропускаются без результата.
func (o *Optimizer) BatchOptimize(items []BatchItem, tier models.SubscriptionTier) ([]models.OptimizationResult, error) {
	results := make([]models.OptimizationResult, 0, len(items))
	for i, item := range items {
		if item.Context == nil {
			o.logger.Warn("Skipping batch item with nil context", zap.Int("index", i))
			continue
		}
		result, err := o.OptimizeStoryContext(*item.Context, presetOptions(item.Kind, tier))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// presetOptions - предустановки опций по типу операции и тарифу.
// foundation делает упор на сюжет, chapter - на персонажей,
// improvement работает с дефолтами.
func presetOptions(kind models.OperationType, tier models.SubscriptionTier) Options {
	opts := Options{
		Tier:         tier,
		Level:        models.CompressionModerate,
		PreserveTone: true,
	}
	// Premium по умолчанию сжимает мягче.
	if tier == models.TierPremium {
		opts.Level = models.CompressionLight
	}

	switch kind {
	case models.OperationFoundation:
		opts.ExtraPreserve = []models.PreserveCategory{models.PreservePlotPoints}
	case models.OperationChapter:
		opts.ExtraPreserve = []models.PreserveCategory{models.PreserveCharacterNames, models.PreserveDialogue}
	case models.OperationImprovement:
		// Дефолты.
	}
	return opts
}

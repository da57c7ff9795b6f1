package optimizer

import (
	"math"

	"fabula-server/internal/models"
)

const (
	windowBaseTokens      = 3000
	characterWindowWeight = 0.1
	plotWindowWeight      = 0.05
	chapterWindowWeight   = 0.05
	chapterWindowCap      = 0.5
	recentMentionWindow   = 3 // персонаж "активен", если упоминался не раньше чем за 3 главы
	fallbackCharacters    = 5
)

// ChapterWindow - срез контекста, релевантный генерации конкретной главы.
type ChapterWindow struct {
	Context models.StoryContext
	Size    int
}

// createChapterWindow строит оконный контекст для главы: активные персонажи,
// нерешенные сюжетные точки и хвост прошлых глав, масштабированный размером окна.
func createChapterWindow(storyCtx models.StoryContext, chapterNumber int) ChapterWindow {
	size := windowSize(len(storyCtx.Characters), len(storyCtx.PlotPoints), chapterNumber)

	windowed := models.StoryContext{
		Title:          storyCtx.Title,
		Genre:          storyCtx.Genre,
		Premise:        storyCtx.Premise,
		Tone:           storyCtx.Tone,
		CurrentChapter: chapterNumber,
		TotalChapters:  storyCtx.TotalChapters,
		CurrentScene:   storyCtx.CurrentScene,
	}

	// Персонажи по фильтру свежести; при пустом результате - первые пять
	// в исходном порядке. Окно никогда не остается без персонажей, если
	// они вообще есть.
	for _, ch := range storyCtx.Characters {
		if ch.LastMentioned >= chapterNumber-recentMentionWindow {
			windowed.Characters = append(windowed.Characters, ch)
		}
	}
	if len(windowed.Characters) == 0 && len(storyCtx.Characters) > 0 {
		limit := fallbackCharacters
		if limit > len(storyCtx.Characters) {
			limit = len(storyCtx.Characters)
		}
		windowed.Characters = append(windowed.Characters, storyCtx.Characters[:limit]...)
	}

	// Нерешенные точки, введенные не позже текущей главы.
	for _, pp := range storyCtx.PlotPoints {
		if !pp.Resolved && pp.Chapter <= chapterNumber {
			windowed.PlotPoints = append(windowed.PlotPoints, pp)
		}
	}

	// Хвост прошлых глав; порядок глав сохраняется.
	prevCount := int(math.Ceil(float64(size) / 1000.0))
	if prevCount > len(storyCtx.PreviousContent) {
		prevCount = len(storyCtx.PreviousContent)
	}
	if prevCount > 0 {
		windowed.PreviousContent = append(windowed.PreviousContent,
			storyCtx.PreviousContent[len(storyCtx.PreviousContent)-prevCount:]...)
	}

	return ChapterWindow{Context: windowed, Size: size}
}

// windowSize вычисляет размер окна в токенах: база 3000 масштабируется
// количеством персонажей и сюжетных точек, затем номером главы (рост
// ограничен 50%). Результат округляется вниз.
func windowSize(characterCount, plotPointCount, chapterNumber int) int {
	structural := 1 + characterWindowWeight*float64(characterCount) + plotWindowWeight*float64(plotPointCount)
	progression := 1 + math.Min(chapterWindowWeight*float64(chapterNumber), chapterWindowCap)
	return int(windowBaseTokens * structural * progression)
}

// OptimizeChapterContext оптимизирует контекст под генерацию конкретной главы:
// сначала строится окно, затем обычная оптимизация с бюджетом окна.
func (o *Optimizer) OptimizeChapterContext(storyCtx models.StoryContext, chapterNumber int, opts Options) (models.OptimizationResult, error) {
	if chapterNumber < 1 {
		return models.OptimizationResult{}, models.ErrInvalidStoryContext
	}
	window := createChapterWindow(storyCtx, chapterNumber)
	opts = opts.withDefaults()
	opts.BaseTokenBudget = window.Size
	return o.OptimizeStoryContext(window.Context, opts)
}

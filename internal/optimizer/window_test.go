package optimizer

import (
	"testing"

	"fabula-server/internal/models"

	"github.com/stretchr/testify/assert"
)

func windowContext() models.StoryContext {
	return models.StoryContext{
		Title:   "Window",
		Genre:   "mystery",
		Premise: "A test story",
		Characters: []models.Character{
			{Name: "A", Importance: 5, LastMentioned: 1},
			{Name: "B", Importance: 5, LastMentioned: 1},
			{Name: "C", Importance: 5, LastMentioned: 1},
			{Name: "D", Importance: 5, LastMentioned: 1},
			{Name: "E", Importance: 5, LastMentioned: 1},
			{Name: "F", Importance: 5, LastMentioned: 1},
			{Name: "G", Importance: 5, LastMentioned: 9},
		},
		PlotPoints: []models.PlotPoint{
			{ID: "p1", Description: "open", Chapter: 2, Resolved: false},
			{ID: "p2", Description: "done", Chapter: 3, Resolved: true},
			{ID: "p3", Description: "future", Chapter: 20, Resolved: false},
		},
		PreviousContent: []string{"one", "two", "three", "four", "five", "six", "seven", "eight"},
	}
}

func TestWindowSize(t *testing.T) {
	// 3000 * (1 + 0.1*2 + 0.05*4) * (1 + 0.05*2) = 3000 * 1.4 * 1.1 = 4620
	assert.Equal(t, 4620, windowSize(2, 4, 2))
	// Рост от номера главы ограничен 50%.
	assert.Equal(t, int(3000*1.0*1.5), windowSize(0, 0, 100))
}

func TestCreateChapterWindow_RecencyFilter(t *testing.T) {
	window := createChapterWindow(windowContext(), 10)

	// Только G упоминался в пределах трех глав от десятой.
	assert.Len(t, window.Context.Characters, 1)
	assert.Equal(t, "G", window.Context.Characters[0].Name)
}

func TestCreateChapterWindow_FallbackToFirstFive(t *testing.T) {
	storyCtx := windowContext()
	storyCtx.Characters = storyCtx.Characters[:6] // все с LastMentioned=1

	window := createChapterWindow(storyCtx, 30)

	// Фильтр свежести никого не нашел: берутся первые пять в исходном
	// порядке, окно не остается без персонажей.
	assert.Len(t, window.Context.Characters, 5)
	assert.Equal(t, "A", window.Context.Characters[0].Name)
}

func TestCreateChapterWindow_PlotPointFilter(t *testing.T) {
	window := createChapterWindow(windowContext(), 10)

	// Только нерешенные точки с главой не позже текущей.
	assert.Len(t, window.Context.PlotPoints, 1)
	assert.Equal(t, "p1", window.Context.PlotPoints[0].ID)
}

func TestCreateChapterWindow_TrailingPreviousContent(t *testing.T) {
	window := createChapterWindow(windowContext(), 2)

	prevCount := (window.Size + 999) / 1000 // ceil(size/1000)
	if prevCount > 8 {
		prevCount = 8
	}
	assert.Len(t, window.Context.PreviousContent, prevCount)
	// Хвост: последняя глава всегда в окне.
	assert.Equal(t, "eight", window.Context.PreviousContent[len(window.Context.PreviousContent)-1])
}

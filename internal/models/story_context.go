package models

// CharacterRole определяет роль персонажа в повествовании.
type CharacterRole string

const (
	RoleProtagonist CharacterRole = "protagonist"
	RoleAntagonist  CharacterRole = "antagonist"
	RoleSupporting  CharacterRole = "supporting"
	RoleMinor       CharacterRole = "minor"
)

// Character описывает персонажа истории. Имя уникально в пределах одного контекста.
// Importance (1-10) вместе с LastMentioned определяют приоритет сохранения при сжатии.
type Character struct {
	Name          string        `json:"name"`
	Role          CharacterRole `json:"role"`
	Description   string        `json:"description"`
	Traits        []string      `json:"traits,omitempty"`
	Importance    int           `json:"importance"`
	LastMentioned int           `json:"last_mentioned"`
}

// PlotImportance определяет уровень важности сюжетной точки.
type PlotImportance string

const (
	PlotCritical PlotImportance = "critical"
	PlotMajor    PlotImportance = "major"
	PlotMinor    PlotImportance = "minor"
)

// PlotPoint описывает сюжетную точку. Инвариант: все зависимости (DependsOn)
// ссылаются на точки с номером главы не больше собственного Chapter.
type PlotPoint struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Chapter     int            `json:"chapter"`
	Importance  PlotImportance `json:"importance"`
	Resolved    bool           `json:"resolved"`
	DependsOn   []string       `json:"depends_on,omitempty"`
}

// StoryContext - накопленное состояние истории, передаваемое на генерацию.
// Инвариант: порядок PreviousContent соответствует порядку глав; элементы
// никогда не переставляются, только усекаются или суммируются.
type StoryContext struct {
	Title           string      `json:"title"`
	Genre           string      `json:"genre"`
	Premise         string      `json:"premise"`
	Tone            string      `json:"tone,omitempty"`
	CurrentChapter  int         `json:"current_chapter"`
	TotalChapters   int         `json:"total_chapters"`
	PreviousContent []string    `json:"previous_content,omitempty"`
	Characters      []Character `json:"characters,omitempty"`
	PlotPoints      []PlotPoint `json:"plot_points,omitempty"`
	CurrentScene    string      `json:"current_scene,omitempty"`
}

package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"fabula-server/internal/models"

	"go.uber.org/zap"
)

const (
	maxCharactersInContext = 8    // сколько персонажей попадает в контекстную строку
	maxPlotPointsInContext = 5    // сколько сюжетных точек попадает в контекстную строку
	verbatimPrevLimit      = 2000 // до этой длины прошлые главы идут дословно
	summarizedChapters     = 3    // сколько последних глав суммируется
	summarySentences       = 2    // сколько первых предложений берется из главы
)

var sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]+["')\]]*|[^.!?\n]+$`)

// Analyzer выводит метрики сложности из структурированного контекста истории
// и строит детерминированную контекстную строку для сжатия.
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer создает анализатор контекста.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger.Named("StoryContextAnalyzer")}
}

// Analyze вычисляет метрики сложности контекста. Чистая функция.
func (a *Analyzer) Analyze(storyCtx models.StoryContext) models.AnalysisMetrics {
	metrics := models.AnalysisMetrics{
		CharacterCount:  len(storyCtx.Characters),
		PlotPointCount:  len(storyCtx.PlotPoints),
		GenreComplexity: genreComplexity(storyCtx.Genre),
	}

	for _, content := range storyCtx.PreviousContent {
		metrics.PreviousLength += len(content)
	}

	roles := make(map[models.CharacterRole]struct{})
	for _, ch := range storyCtx.Characters {
		roles[ch.Role] = struct{}{}
	}
	if metrics.CharacterCount > 0 {
		metrics.CharacterDiversity = float64(len(roles)) / float64(metrics.CharacterCount)
	}

	dependencyEdges := 0
	for _, pp := range storyCtx.PlotPoints {
		dependencyEdges += len(pp.DependsOn)
		if pp.Importance == models.PlotCritical {
			metrics.CriticalPlotPoints++
		}
	}
	if metrics.PlotPointCount > 0 {
		metrics.DependencyDensity = float64(dependencyEdges) / float64(metrics.PlotPointCount)
	}

	return metrics
}

// BuildContextString собирает контекстную строку в фиксированном порядке
// секций. Порядок - контракт: усечение при агрессивном сжатии отбрасывает
// секции с конца (сцена, потом старые суммарные главы), не трогая
// высокоприоритетный заголовочный блок.
func (a *Analyzer) BuildContextString(storyCtx models.StoryContext, metrics models.AnalysisMetrics) string {
	sections := make([]string, 0, 5)

	// 1. Заголовочный блок.
	var header strings.Builder
	fmt.Fprintf(&header, "Title: %s\nGenre: %s\nPremise: %s", storyCtx.Title, storyCtx.Genre, storyCtx.Premise)
	if storyCtx.Tone != "" {
		fmt.Fprintf(&header, "\nTone: %s", storyCtx.Tone)
	}
	sections = append(sections, header.String())

	// 2. Персонажи: до 8 самых важных; при равенстве важности сохраняется
	// порядок объявления.
	if len(storyCtx.Characters) > 0 {
		chars := make([]models.Character, len(storyCtx.Characters))
		copy(chars, storyCtx.Characters)
		sort.SliceStable(chars, func(i, j int) bool { return chars[i].Importance > chars[j].Importance })
		if len(chars) > maxCharactersInContext {
			chars = chars[:maxCharactersInContext]
		}
		var b strings.Builder
		b.WriteString("Characters:")
		for _, ch := range chars {
			fmt.Fprintf(&b, "\n%s (%s): %s", ch.Name, ch.Role, ch.Description)
		}
		sections = append(sections, b.String())
	}

	// 3. Сюжетные точки: до 5 хронологически самых ранних critical/major.
	plotPoints := make([]models.PlotPoint, 0, len(storyCtx.PlotPoints))
	for _, pp := range storyCtx.PlotPoints {
		if pp.Importance == models.PlotCritical || pp.Importance == models.PlotMajor {
			plotPoints = append(plotPoints, pp)
		}
	}
	if len(plotPoints) > 0 {
		sort.SliceStable(plotPoints, func(i, j int) bool { return plotPoints[i].Chapter < plotPoints[j].Chapter })
		if len(plotPoints) > maxPlotPointsInContext {
			plotPoints = plotPoints[:maxPlotPointsInContext]
		}
		var b strings.Builder
		b.WriteString("Plot points:")
		for _, pp := range plotPoints {
			fmt.Fprintf(&b, "\n- [%s] %s (chapter %d)", pp.Importance, pp.Description, pp.Chapter)
		}
		sections = append(sections, b.String())
	}

	// 4. Прошлое содержимое: дословно, если короткое, иначе по два первых
	// предложения из каждой из трех последних глав. Порядок глав не меняется.
	if len(storyCtx.PreviousContent) > 0 {
		if metrics.PreviousLength < verbatimPrevLimit {
			sections = append(sections, "Previous chapters:\n"+strings.Join(storyCtx.PreviousContent, "\n\n"))
		} else {
			start := len(storyCtx.PreviousContent) - summarizedChapters
			if start < 0 {
				start = 0
			}
			var b strings.Builder
			b.WriteString("Previous chapters (summary):")
			for i, content := range storyCtx.PreviousContent[start:] {
				fmt.Fprintf(&b, "\nChapter %d: %s", start+i+1, firstSentences(content, summarySentences))
			}
			sections = append(sections, b.String())
		}
	}

	// 5. Текущая сцена - низший приоритет, отрезается первой.
	if storyCtx.CurrentScene != "" {
		sections = append(sections, "Current scene:\n"+storyCtx.CurrentScene)
	}

	return strings.Join(sections, "\n\n")
}

// genreComplexity - фиксированная таблица сложности жанров.
// Неизвестный жанр получает сложность 5.
func genreComplexity(genre string) int {
	switch strings.ToLower(strings.TrimSpace(genre)) {
	case "fantasy", "science fiction", "sci-fi":
		return 8
	case "mystery", "thriller":
		return 7
	case "horror", "historical":
		return 6
	case "adventure", "drama":
		return 5
	case "romance", "comedy":
		return 4
	default:
		return 5
	}
}

// firstSentences возвращает первые n предложений текста.
func firstSentences(text string, n int) string {
	found := sentenceRe.FindAllString(text, -1)
	sentences := make([]string, 0, n)
	for _, s := range found {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences = append(sentences, s)
		if len(sentences) == n {
			break
		}
	}
	return strings.Join(sentences, " ")
}

package compression

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"fabula-server/internal/models"
)

// Наборы паттернов для стратегий сжатия. Все паттерны компилируются один раз
// при загрузке пакета; стратегии не имеют собственного состояния.

var (
	multiSpaceRe   = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	sentenceRe     = regexp.MustCompile(`[^.!?\n]+[.!?]+["')\]]*|[^.!?\n]+$`)
	wordRe         = regexp.MustCompile(`[A-Za-z']+`)
	dialogueRe     = regexp.MustCompile(`["\x60]|\x{201C}|\x{201D}`)
	// Причинно-следственные связки, указывающие на сюжетно значимые предложения.
	plotConnectiveRe = regexp.MustCompile(`(?i)\b(because|therefore|as a result|which led to|so that|caused|revealed|discovered|decided|realized)\b`)
	// Имя собственное не в начале предложения - дешевый признак упоминания персонажа.
	properNameRe = regexp.MustCompile(`\s[A-Z][a-z]+\b`)
)

// fillerSub - пара "паттерн словесного мусора" -> замена.
type fillerSub struct {
	re   *regexp.Regexp
	repl string
}

// fillerSubs - фиксированный список интенсификаторов и "прочисток горла",
// удаляемых уже на легком уровне сжатия.
var fillerSubs = []fillerSub{
	{regexp.MustCompile(`(?i)\b(very|really|quite|rather|extremely|absolutely|basically|actually|literally|truly|utterly)\s+`), ""},
	{regexp.MustCompile(`(?i)\b(just|simply|somewhat|fairly)\s+`), ""},
	{regexp.MustCompile(`(?i)\bit (is|was) (worth noting|important to note|interesting to note) that\s+`), ""},
	{regexp.MustCompile(`(?i)\b(needless to say|as a matter of fact|at the end of the day|for all intents and purposes),?\s+`), ""},
	{regexp.MustCompile(`(?i)\bin order to\b`), "to"},
	{regexp.MustCompile(`(?i)\bdue to the fact that\b`), "because"},
}

// templateSubs - подстановки типовых повествовательных оборотов,
// применяются на умеренном уровне.
var templateSubs = []fillerSub{
	{regexp.MustCompile(`(?i)\bit was at (that|this) (very )?moment that\b`), "then"},
	{regexp.MustCompile(`(?i)\bsaid in a [a-z]+ voice\b`), "said"},
	{regexp.MustCompile(`(?i)\bwith a sense of\b`), "with"},
	{regexp.MustCompile(`(?i)\bthe fact that\b`), "that"},
	{regexp.MustCompile(`(?i)\ba significant number of\b`), "many"},
	{regexp.MustCompile(`(?i)\bin the middle of the night\b`), "at midnight"},
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"is": {}, "was": {}, "are": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"he": {}, "she": {}, "it": {}, "they": {}, "his": {}, "her": {}, "its": {},
	"their": {}, "that": {}, "this": {}, "these": {}, "those": {}, "as": {},
	"had": {}, "have": {}, "has": {}, "not": {}, "from": {}, "into": {},
}

// normalizeWhitespace схлопывает повторяющиеся пробелы и пустые строки.
func normalizeWhitespace(text string) string {
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// stripFiller удаляет интенсификаторы и вводные конструкции.
func stripFiller(text string) string {
	for _, s := range fillerSubs {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	return text
}

// applyTemplates заменяет типовые повествовательные обороты короткими формами.
func applyTemplates(text string) string {
	for _, s := range templateSubs {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	return text
}

// splitSentences разбивает текст на предложения, сохраняя их порядок.
func splitSentences(text string) []string {
	raw := sentenceRe.FindAllString(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// contentKey строит дешевый ключ содержимого предложения: первые четыре
// слова без стоп-слов, в нижнем регистре, отсортированные. Предложения с
// совпадающим ключом считаются почти идентичными описаниями.
func contentKey(sentence string) string {
	words := wordRe.FindAllString(strings.ToLower(sentence), -1)
	keyWords := make([]string, 0, 4)
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		keyWords = append(keyWords, w)
		if len(keyWords) == 4 {
			break
		}
	}
	sort.Strings(keyWords)
	return strings.Join(keyWords, " ")
}

// dedupeSentences убирает предложения, чей ключ содержимого уже встречался.
// Первое вхождение всегда сохраняется.
func dedupeSentences(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	seen := make(map[string]struct{})
	for pi, paragraph := range paragraphs {
		sentences := splitSentences(paragraph)
		kept := make([]string, 0, len(sentences))
		for _, s := range sentences {
			key := contentKey(s)
			if key == "" {
				kept = append(kept, s)
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, s)
		}
		paragraphs[pi] = strings.Join(kept, " ")
	}
	return strings.Join(paragraphs, "\n\n")
}

// matchesPreserve сообщает, попадает ли предложение хотя бы в одну из
// активных категорий сохранения.
func matchesPreserve(sentence string, preserve []models.PreserveCategory) bool {
	for _, cat := range preserve {
		switch cat {
		case models.PreserveDialogue:
			if dialogueRe.MatchString(sentence) {
				return true
			}
		case models.PreservePlotPoints:
			if plotConnectiveRe.MatchString(sentence) {
				return true
			}
		case models.PreserveCharacterNames:
			if properNameRe.MatchString(sentence) {
				return true
			}
		case models.PreserveStoryTone:
			// Тон не привязан к отдельным предложениям; он учитывается тем,
			// что прозаическая форма не разрушается до списков ключевых слов.
		}
	}
	return false
}

// topKeywords возвращает до limit слов, ранжированных по частоте;
// при равной частоте раньше идет слово, встретившееся первым.
func topKeywords(text string, limit int) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	order := make([]string, 0)
	for i, w := range words {
		if len(w) < 4 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		if _, ok := freq[w]; !ok {
			firstSeen[w] = i
			order = append(order, w)
		}
		freq[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		if freq[order[i]] != freq[order[j]] {
			return freq[order[i]] > freq[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

// truncateToBytes обрезает строку до limit байт, не разрывая руну.
func truncateToBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return strings.TrimRightFunc(s[:limit], unicode.IsSpace)
}

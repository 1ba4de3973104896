package analyzer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/reelforge/clip-engine/config"
	"github.com/reelforge/clip-engine/transcribe"
)

// Built-in lexicons, overridable via config.WordLists. Matching is
// case-insensitive and word-level; multi-word entries match as substrings.
var (
	defaultKeywords = []string{
		"secret", "amazing", "incredible", "shocking", "revealed", "exclusive",
		"ultimate", "best", "worst", "free", "money", "hack", "trick",
		"mistake", "truth", "never", "always", "important", "powerful",
		"proven", "viral", "easy", "simple", "new",
	}
	defaultActionVerbs = []string{
		"build", "create", "launch", "discover", "learn", "master", "win",
		"start", "stop", "grow", "boost", "transform", "unlock", "try",
		"make", "change", "improve", "fix", "avoid", "get",
	}
	defaultEmotionWords = []string{
		"love", "hate", "amazing", "incredible", "awesome", "terrible",
		"insane", "crazy", "unbelievable", "shocking", "wow", "excited",
		"afraid", "happy", "angry", "beautiful", "horrible", "perfect",
		"stunning", "epic",
	}
	defaultQuestionWords = []string{
		"what", "why", "how", "when", "where", "who", "which",
	}
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}']+`)

// TextAnalyzer rates segment text on five sub-metrics. It is a pure
// function of the text, no media access involved.
type TextAnalyzer struct {
	keywords      []string
	actionVerbs   []string
	emotionWords  []string
	questionWords []string
}

// NewTextAnalyzer builds an analyzer from the configured word lists. Empty
// lists keep the built-in defaults. A nil lists value uses all defaults.
func NewTextAnalyzer(lists *config.WordLists) *TextAnalyzer {
	if lists == nil {
		lists = &config.WordLists{}
	}
	return &TextAnalyzer{
		keywords:      lowerAll(orDefault(lists.Keywords, defaultKeywords)),
		actionVerbs:   lowerAll(orDefault(lists.ActionVerbs, defaultActionVerbs)),
		emotionWords:  lowerAll(orDefault(lists.EmotionWords, defaultEmotionWords)),
		questionWords: lowerAll(orDefault(lists.QuestionWords, defaultQuestionWords)),
	}
}

func orDefault(list, fallback []string) []string {
	if len(list) == 0 {
		return fallback
	}
	return list
}

func lowerAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.ToLower(s)
	}
	return out
}

// ScoreSegments rates every segment with the stop-word set for the
// transcript language.
func (t *TextAnalyzer) ScoreSegments(segments []transcribe.Segment, lang string) []float64 {
	stops := stopwordsFor(lang)
	scores := make([]float64, len(segments))
	for i, seg := range segments {
		scores[i] = t.score(seg.Text, stops)
	}
	return scores
}

// Score rates a single text. lang is a transcript language tag like "en".
func (t *TextAnalyzer) Score(text, lang string) float64 {
	return t.score(text, stopwordsFor(lang))
}

func (t *TextAnalyzer) score(text string, stops map[string]struct{}) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	words := wordRe.FindAllString(text, -1)
	lowerText := strings.ToLower(text)
	lowerWords := lowerAll(words)

	emotion := t.emotionalIntensity(text, words, lowerText, lowerWords)
	keyword := min1(float64(countMatches(lowerText, lowerWords, t.keywords)) / 3)
	information := informationDensity(lowerWords, stops)
	question := min1((float64(strings.Count(text, "?")) + 0.5*float64(countMatches(lowerText, lowerWords, t.questionWords))) / 2)
	action := min1(float64(countMatches(lowerText, lowerWords, t.actionVerbs)) / 2)

	score := 0.25*emotion + 0.35*keyword + 0.20*information + 0.10*question + 0.10*action
	return min1(score)
}

func (t *TextAnalyzer) emotionalIntensity(text string, words []string, lowerText string, lowerWords []string) float64 {
	exclamations := strings.Count(text, "!") + strings.Count(text, "?")
	emotionHits := countMatches(lowerText, lowerWords, t.emotionWords)
	allCaps := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 && w == strings.ToUpper(w) && w != strings.ToLower(w) {
			allCaps++
		}
	}
	return 0.5*min1(float64(exclamations)/3) +
		0.3*min1(float64(emotionHits)/2) +
		0.2*min1(float64(allCaps)/3)
}

// informationDensity is the share of distinct meaningful words, normalized
// so that 70% unique already counts as maximally dense. Meaningful means
// longer than two characters and not a stop word.
func informationDensity(lowerWords []string, stops map[string]struct{}) float64 {
	meaningful := 0
	unique := map[string]struct{}{}
	for _, w := range lowerWords {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, found := stops[w]; found {
			continue
		}
		meaningful++
		unique[w] = struct{}{}
	}
	if meaningful == 0 {
		return 0
	}
	return min1(float64(len(unique)) / float64(meaningful) / 0.7)
}

// countMatches counts hits of list entries: single words match whole tokens,
// entries containing a space match as substrings of the lower-cased text.
func countMatches(lowerText string, lowerWords []string, list []string) int {
	count := 0
	for _, entry := range list {
		if strings.ContainsRune(entry, ' ') {
			count += strings.Count(lowerText, entry)
			continue
		}
		for _, w := range lowerWords {
			if w == entry {
				count++
			}
		}
	}
	return count
}

// min1 caps a ratio at 1.
func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

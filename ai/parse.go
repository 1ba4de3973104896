package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	numberRe      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	integerRe     = regexp.MustCompile(`\d+`)
)

// ParseScoreArray salvages a list of n scores in [0,1] from a model reply.
// Models rarely return the clean JSON array they are asked for, so this
// walks a fallback chain: code-fenced block, any JSON array, comma-separated
// numbers, finally any numeric tokens in order. The result is padded with
// 0.5 or truncated to exactly n entries.
func ParseScoreArray(text string, n int) ([]float64, error) {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		if scores, ok := parseJSONArray(m[1]); ok {
			return normalizeScores(scores, n), nil
		}
	}
	if i := strings.Index(text, "["); i >= 0 {
		if j := strings.LastIndex(text, "]"); j > i {
			if scores, ok := parseJSONArray(text[i : j+1]); ok {
				return normalizeScores(scores, n), nil
			}
		}
	}
	if scores, ok := parseCommaNumbers(text); ok {
		return normalizeScores(scores, n), nil
	}
	if tokens := numberRe.FindAllString(text, -1); len(tokens) > 0 {
		scores := make([]float64, 0, len(tokens))
		for _, tok := range tokens {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				continue
			}
			scores = append(scores, v)
		}
		if len(scores) > 0 {
			return normalizeScores(scores, n), nil
		}
	}
	return nil, fmt.Errorf("no scores found in model response")
}

func parseJSONArray(text string) ([]float64, bool) {
	var scores []float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &scores); err != nil {
		return nil, false
	}
	return scores, true
}

func parseCommaNumbers(text string) ([]float64, bool) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) < 2 {
		return nil, false
	}
	scores := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, false
		}
		scores = append(scores, v)
	}
	return scores, true
}

func normalizeScores(scores []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < len(scores) {
			out[i] = clamp01(scores[i])
		} else {
			out[i] = 0.5
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ParseCount extracts the first integer from a model reply, for prompts
// that ask for a single count.
func ParseCount(text string) (int, error) {
	tok := integerRe.FindString(text)
	if tok == "" {
		return 0, fmt.Errorf("no count found in model response")
	}
	return strconv.Atoi(tok)
}

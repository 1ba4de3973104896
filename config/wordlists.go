package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// WordLists carries the lexicons the text analyzer matches against. Any empty
// list keeps its built-in default.
type WordLists struct {
	Keywords      []string `json:"keywords,omitempty"`
	ActionVerbs   []string `json:"actionVerbs,omitempty"`
	EmotionWords  []string `json:"emotionWords,omitempty"`
	QuestionWords []string `json:"questionWords,omitempty"`
}

func LoadWordLists(path string) (*WordLists, error) {
	if path == "" {
		return &WordLists{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read word lists file %q: %w", path, err)
	}
	var lists WordLists
	if err := yaml.Unmarshal(raw, &lists); err != nil {
		return nil, fmt.Errorf("failed to parse word lists file %q: %w", path, err)
	}
	return &lists, nil
}

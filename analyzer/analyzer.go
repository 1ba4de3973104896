// Package analyzer scores transcript segments on three modalities (text,
// audio, visual), combines the scores with configurable weights and selects
// the clip windows worth encoding. The audio and visual analyzers run in
// batch mode: a fixed number of media-tool passes over the whole asset
// regardless of segment count.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/reelforge/clip-engine/transcribe"
)

// Scores holds the per-modality ratings of one segment, each in [0,1].
type Scores struct {
	Text     float64 `json:"text"`
	Audio    float64 `json:"audio"`
	Visual   float64 `json:"visual"`
	Combined float64 `json:"combined"`
}

// AnalyzedSegment is a transcript segment with its modality scores attached.
type AnalyzedSegment struct {
	transcribe.Segment
	Scores Scores `json:"scores"`
}

// Weights are the combiner coefficients for the three modalities.
type Weights struct {
	Text   float64 `json:"text"`
	Audio  float64 `json:"audio"`
	Visual float64 `json:"visual"`
}

func DefaultWeights() Weights {
	return Weights{Text: 0.4, Audio: 0.3, Visual: 0.3}
}

// Validate rejects negative weights and weights that do not sum to 1.
func (w Weights) Validate() error {
	if w.Text < 0 || w.Audio < 0 || w.Visual < 0 {
		return fmt.Errorf("analyzer weights must be non-negative, got text=%v audio=%v visual=%v", w.Text, w.Audio, w.Visual)
	}
	if sum := w.Text + w.Audio + w.Visual; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("analyzer weights must sum to 1, got %v", sum)
	}
	return nil
}

func (w Weights) Combine(text, audio, visual float64) float64 {
	return w.Text*text + w.Audio*audio + w.Visual*visual
}

// SortByScore orders segments by combined score descending, ties broken by
// earlier start.
func SortByScore(segments []AnalyzedSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Scores.Combined != segments[j].Scores.Combined {
			return segments[i].Scores.Combined > segments[j].Scores.Combined
		}
		return segments[i].Start < segments[j].Start
	})
}

// Analyzer runs the three modality analyzers over a transcript.
type Analyzer struct {
	Text    *TextAnalyzer
	Audio   *AudioAnalyzer
	Visual  *VisualAnalyzer
	Weights Weights
}

func New(text *TextAnalyzer, audio *AudioAnalyzer, visual *VisualAnalyzer, weights Weights) *Analyzer {
	return &Analyzer{Text: text, Audio: audio, Visual: visual, Weights: weights}
}

// Analyze scores every segment of the transcript. The three analyzers run as
// parallel tasks and their per-segment outputs are combined index by index.
// The returned slice is ordered by combined score, best first.
func (a *Analyzer) Analyze(ctx context.Context, jobID, videoPath, audioPath string, transcript *transcribe.Result) ([]AnalyzedSegment, error) {
	segments := transcript.Segments
	if len(segments) == 0 {
		return []AnalyzedSegment{}, nil
	}

	var (
		textScores   []float64
		audioScores  []float64
		visualScores []float64
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		textScores = a.Text.ScoreSegments(segments, transcript.Language)
		return nil
	})
	eg.Go(func() error {
		var err error
		audioScores, err = a.Audio.Analyze(egCtx, jobID, audioPath, transcript.Duration, segments)
		return err
	})
	eg.Go(func() error {
		var err error
		visualScores, err = a.Visual.Analyze(egCtx, jobID, videoPath, transcript.Duration, segments)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	analyzed := make([]AnalyzedSegment, len(segments))
	for i, seg := range segments {
		scores := Scores{Text: textScores[i], Audio: audioScores[i], Visual: visualScores[i]}
		scores.Combined = a.Weights.Combine(scores.Text, scores.Audio, scores.Visual)
		analyzed[i] = AnalyzedSegment{Segment: seg, Scores: scores}
	}
	SortByScore(analyzed)
	return analyzed, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/reelforge/clip-engine/ai"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/transcribe"
	"github.com/reelforge/clip-engine/video"
)

// Completer is the slice of the model client used for batched emotion
// scoring. A nil Completer keeps every emotion score neutral.
type Completer interface {
	Complete(ctx context.Context, jobID string, req ai.CompletionRequest) (string, error)
}

const emotionBatchSize = 10

// neutralVolume stands in when the volume pass succeeds but emits no
// parsable statistics.
var neutralVolume = video.VolumeProfile{MeanDB: -35, MaxDB: -22.5}

// AudioAnalyzer rates segments from two whole-asset media passes (volume
// statistics and silence timeline) plus an optional batched model pass for
// emotional delivery. It never runs the media tool per segment.
type AudioAnalyzer struct {
	ai Completer

	measureVolume func(ctx context.Context, path string) (*video.VolumeProfile, error)
	detectSilence func(ctx context.Context, path string, duration float64) ([]video.SilenceRange, error)
}

func NewAudioAnalyzer(aiClient Completer) *AudioAnalyzer {
	return &AudioAnalyzer{
		ai:            aiClient,
		measureVolume: video.MeasureVolume,
		detectSilence: video.DetectSilence,
	}
}

// Analyze returns one audio score per segment, aligned by index.
func (a *AudioAnalyzer) Analyze(ctx context.Context, jobID, audioPath string, duration float64, segments []transcribe.Segment) ([]float64, error) {
	if len(segments) == 0 {
		return []float64{}, nil
	}

	volume, err := a.measureVolume(ctx, audioPath)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeAnalysisFailed, "error measuring volume", err)
	}
	if volume == nil {
		log.Log(jobID, "no volume statistics in media output, using neutral profile")
		volume = &neutralVolume
	}

	silences, err := a.detectSilence(ctx, audioPath, duration)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeAnalysisFailed, "error detecting silence", err)
	}

	emotions := a.emotionScores(ctx, jobID, segments)

	scores := make([]float64, len(segments))
	for i, seg := range segments {
		scores[i] = audioSegmentScore(seg, volume, silences, emotions[i])
	}
	return scores, nil
}

func audioSegmentScore(seg transcribe.Segment, volume *video.VolumeProfile, silences []video.SilenceRange, emotion float64) float64 {
	length := seg.End - seg.Start
	if length <= 0 {
		return 0.5
	}

	energy := clamp01((volume.MeanDB + 60) / 50)
	dynamicRange := min1((volume.MaxDB - volume.MeanDB) / 25)
	nonSilence := 1 - silenceOverlap(silences, seg.Start, seg.End)/length
	rate := speechRateScore(seg.Text, length)

	return 0.3*energy + 0.2*dynamicRange + 0.2*nonSilence + 0.1*rate + 0.2*emotion
}

func silenceOverlap(silences []video.SilenceRange, start, end float64) float64 {
	var total float64
	for _, r := range silences {
		s := math.Max(start, r.Start)
		e := math.Min(end, r.End)
		if e > s {
			total += e - s
		}
	}
	return total
}

// speechRateScore maps words per minute onto [0.2, 1]: conversational pace
// (120-160 wpm) lands mid-scale, fast delivery scores higher.
func speechRateScore(text string, seconds float64) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0.3
	}
	wpm := float64(words) * 60 / seconds
	switch {
	case wpm < 100:
		return 0.2 + 0.2*(wpm/100)
	case wpm <= 120:
		return 0.4 + 0.1*((wpm-100)/20)
	case wpm <= 160:
		return 0.5 + 0.2*((wpm-120)/40)
	case wpm <= 200:
		return 0.7 + 0.2*((wpm-160)/40)
	default:
		return math.Min(1, 0.9+0.1*((wpm-200)/100))
	}
}

// emotionScores returns one score per segment, 0.5 unless the model pass
// produced something better. Model failures only void their own batch.
func (a *AudioAnalyzer) emotionScores(ctx context.Context, jobID string, segments []transcribe.Segment) []float64 {
	scores := make([]float64, len(segments))
	for i := range scores {
		scores[i] = 0.5
	}
	if a.ai == nil {
		return scores
	}

	for start := 0; start < len(segments); start += emotionBatchSize {
		end := start + emotionBatchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch, err := a.emotionBatch(ctx, jobID, segments[start:end])
		if err != nil {
			log.LogError(jobID, "emotion batch failed, keeping neutral scores", err, "batch_start", start)
			continue
		}
		copy(scores[start:end], batch)
	}
	return scores
}

func (a *AudioAnalyzer) emotionBatch(ctx context.Context, jobID string, batch []transcribe.Segment) ([]float64, error) {
	var prompt strings.Builder
	prompt.WriteString("Rate the emotional intensity of each numbered transcript segment from 0.0 to 1.0.\n")
	prompt.WriteString("Respond with a JSON array of numbers, one per segment, nothing else.\n\n")
	for i, seg := range batch {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, strings.TrimSpace(seg.Text))
	}

	resp, err := a.ai.Complete(ctx, jobID, ai.CompletionRequest{
		System:      "You rate short transcript segments from spoken video.",
		Prompt:      prompt.String(),
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, err
	}
	return ai.ParseScoreArray(resp, len(batch))
}

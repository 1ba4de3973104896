package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelforge/clip-engine/transcribe"
	"github.com/reelforge/clip-engine/video"
)

func TestAnalyze(t *testing.T) {
	audio, _, _ := stubAudioAnalyzer(&video.VolumeProfile{MeanDB: -30, MaxDB: -10}, nil, nil)
	visual := stubVisualAnalyzer(t, nil, false)
	weights := DefaultWeights()
	a := New(NewTextAnalyzer(nil), audio, visual, weights)

	transcript := &transcribe.Result{
		Language: "en",
		Duration: 90,
		Segments: []transcribe.Segment{
			{ID: 0, Start: 0, End: 8, Text: " Welcome back to the channel."},
			{ID: 1, Start: 8, End: 17, Text: " This amazing secret trick will change everything!"},
			{ID: 2, Start: 17, End: 25, Text: " Let me show you how it works."},
		},
	}

	analyzed, err := a.Analyze(context.Background(), "job-1", "/tmp/in.mp4", "/tmp/in.wav", transcript)
	require.NoError(t, err)
	require.Len(t, analyzed, 3)

	for i, seg := range analyzed {
		require.GreaterOrEqual(t, seg.Scores.Combined, 0.0)
		require.LessOrEqual(t, seg.Scores.Combined, 1.0)
		expected := weights.Combine(seg.Scores.Text, seg.Scores.Audio, seg.Scores.Visual)
		require.InDelta(t, expected, seg.Scores.Combined, 1e-9)
		if i > 0 {
			require.LessOrEqual(t, seg.Scores.Combined, analyzed[i-1].Scores.Combined)
		}
	}

	// the hook-laden middle segment outscores its neighbors on text
	var bestText *AnalyzedSegment
	for i := range analyzed {
		if bestText == nil || analyzed[i].Scores.Text > bestText.Scores.Text {
			bestText = &analyzed[i]
		}
	}
	require.Equal(t, 1, bestText.ID)
}

func TestAnalyzeEmptyTranscript(t *testing.T) {
	audio, _, _ := stubAudioAnalyzer(&video.VolumeProfile{MeanDB: -30, MaxDB: -10}, nil, nil)
	a := New(NewTextAnalyzer(nil), audio, stubVisualAnalyzer(t, nil, false), DefaultWeights())

	analyzed, err := a.Analyze(context.Background(), "job-1", "/tmp/in.mp4", "/tmp/in.wav", &transcribe.Result{Duration: 10})
	require.NoError(t, err)
	require.Empty(t, analyzed)
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())
	require.NoError(t, Weights{Text: 0.5, Audio: 0.25, Visual: 0.25}.Validate())
	require.NoError(t, Weights{Text: 1, Audio: 0, Visual: 0}.Validate())

	require.ErrorContains(t, Weights{Text: 0.5, Audio: 0.3, Visual: 0.3}.Validate(), "must sum to 1")
	require.ErrorContains(t, Weights{Text: 1.2, Audio: -0.1, Visual: -0.1}.Validate(), "must be non-negative")
	require.ErrorContains(t, Weights{}.Validate(), "must sum to 1")
}

func TestSortByScore(t *testing.T) {
	segments := []AnalyzedSegment{
		scored(0, 50, 60, 0.5),
		scored(1, 10, 20, 0.9),
		scored(2, 30, 40, 0.9),
		scored(3, 0, 10, 0.7),
	}
	SortByScore(segments)

	require.Equal(t, 1, segments[0].ID)
	require.Equal(t, 2, segments[1].ID)
	require.Equal(t, 3, segments[2].ID)
	require.Equal(t, 0, segments[3].ID)
}

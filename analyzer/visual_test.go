package analyzer

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/transcribe"
)

type fakeVisioner struct {
	prompts   []string
	images    []string
	responses []string
	errs      []error
}

func (f *fakeVisioner) Vision(ctx context.Context, jobID, prompt, imageURL string) (string, error) {
	call := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, imageURL)
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	var resp string
	if call < len(f.responses) {
		resp = f.responses[call]
	}
	return resp, err
}

func stubVisualAnalyzer(t *testing.T, visioner Visioner, sceneFilter bool) *VisualAnalyzer {
	t.Helper()
	v := NewVisualAnalyzer(visioner, t.TempDir(), sceneFilter)
	v.extractFrame = func(ctx context.Context, videoPath string, tsec float64, outPath string) error {
		return os.WriteFile(outPath, []byte{0xff, 0xd8, 0xff}, 0644)
	}
	return v
}

func testSegments(n int, step float64) []transcribe.Segment {
	segments := make([]transcribe.Segment, n)
	for i := range segments {
		segments[i] = transcribe.Segment{ID: i, Start: float64(i) * step, End: float64(i)*step + step, Text: "text"}
	}
	return segments
}

func TestVisualAnalyzeIsDeterministic(t *testing.T) {
	v := stubVisualAnalyzer(t, nil, false)
	segments := testSegments(10, 10)

	first, err := v.Analyze(context.Background(), "job-1", "/tmp/in.mp4", 100, segments)
	require.NoError(t, err)
	second, err := v.Analyze(context.Background(), "job-1", "/tmp/in.mp4", 100, segments)
	require.NoError(t, err)

	require.Equal(t, first, second)
	for _, score := range first {
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)
	}
}

func TestSceneTimelineSynthesis(t *testing.T) {
	v := stubVisualAnalyzer(t, nil, false)
	rng := rand.New(rand.NewSource(12345))

	cuts, err := v.sceneTimeline(context.Background(), "/tmp/in.mp4", 60, rng)
	require.NoError(t, err)
	require.NotEmpty(t, cuts)

	last := 0.0
	for _, cut := range cuts {
		gap := cut - last
		require.GreaterOrEqual(t, gap, 8.0)
		require.LessOrEqual(t, gap, 12.0)
		require.Less(t, cut, 60.0)
		last = cut
	}
}

func TestSceneTimelineFilterPass(t *testing.T) {
	v := stubVisualAnalyzer(t, nil, true)
	var gotThreshold float64
	v.detectScenes = func(ctx context.Context, path string, threshold float64) ([]float64, error) {
		gotThreshold = threshold
		return []float64{3.5, 17.2}, nil
	}

	cuts, err := v.sceneTimeline(context.Background(), "/tmp/in.mp4", 60, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, []float64{3.5, 17.2}, cuts)
	require.Equal(t, 0.4, gotThreshold)
}

func TestSceneTimelineFilterError(t *testing.T) {
	v := stubVisualAnalyzer(t, nil, true)
	v.detectScenes = func(ctx context.Context, path string, threshold float64) ([]float64, error) {
		return nil, fmt.Errorf("exit status 1")
	}

	_, err := v.Analyze(context.Background(), "job-1", "/tmp/in.mp4", 60, testSegments(2, 10))
	require.Error(t, err)
	require.Equal(t, cerrors.CodeAnalysisFailed, cerrors.CodeOf(err))
}

func TestVisualSegmentScore(t *testing.T) {
	seg := transcribe.Segment{Start: 10, End: 20}
	scenes := []float64{5, 12, 18}

	// two cuts inside a ten second segment saturate both scene and motion
	score := visualSegmentScore(seg, scenes, 0.7)
	require.InDelta(t, 0.3*1+0.3*1+0.4*0.7, score, 1e-9)

	// no cuts at all leaves only the face contribution
	score = visualSegmentScore(seg, nil, 0.5)
	require.InDelta(t, 0.4*0.5, score, 1e-9)

	// one cut in a thirty second segment
	seg = transcribe.Segment{Start: 0, End: 30}
	score = visualSegmentScore(seg, []float64{15}, 1)
	require.InDelta(t, 0.3*(1.0/3)+0.3*(1.0/3)+0.4*1, score, 1e-9)
}

func TestFaceScoresVisionPath(t *testing.T) {
	visioner := &fakeVisioner{responses: []string{"3", "1", "0"}}
	v := stubVisualAnalyzer(t, visioner, false)
	segments := testSegments(3, 10)

	scores := v.faceScores(context.Background(), "job-1", "/tmp/in.mp4", 30, segments, rand.New(rand.NewSource(1)))
	require.Equal(t, []float64{1.0, 0.7, 0.3}, scores)
	require.Len(t, visioner.prompts, 3)
	require.Contains(t, visioner.images[0], "data:image/jpeg;base64,")

	// midpoint frames are transient and must not survive the pass
	files, err := os.ReadDir(v.framesDir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestFaceScoresAvailabilityProbe(t *testing.T) {
	visioner := &fakeVisioner{errs: []error{fmt.Errorf("bad api key")}}
	v := stubVisualAnalyzer(t, visioner, false)
	segments := testSegments(5, 10)

	scores := v.faceScores(context.Background(), "job-1", "/tmp/in.mp4", 50, segments, rand.New(rand.NewSource(1)))

	// the failed probe on the first segment switches the whole asset to the
	// heuristic, so no further vision calls happen
	require.Len(t, visioner.prompts, 1)
	for _, score := range scores {
		require.GreaterOrEqual(t, score, 0.3)
		require.LessOrEqual(t, score, 0.8)
	}
}

func TestFaceScoresPerSegmentFallback(t *testing.T) {
	visioner := &fakeVisioner{
		responses: []string{"2", "", "0"},
		errs:      []error{nil, fmt.Errorf("timeout"), nil},
	}
	v := stubVisualAnalyzer(t, visioner, false)
	segments := testSegments(3, 10)

	scores := v.faceScores(context.Background(), "job-1", "/tmp/in.mp4", 30, segments, rand.New(rand.NewSource(1)))
	require.Len(t, visioner.prompts, 3)
	require.Equal(t, 0.7, scores[0])
	// only the failed segment falls back to the heuristic
	require.GreaterOrEqual(t, scores[1], 0.3)
	require.LessOrEqual(t, scores[1], 0.8)
	require.Equal(t, 0.3, scores[2])
}

func TestPositionalFaceScoreBands(t *testing.T) {
	duration := 100.0
	rng := rand.New(rand.NewSource(7))

	early := positionalFaceScore(transcribe.Segment{Start: 0, End: 10}, duration, rng)
	require.GreaterOrEqual(t, early, 0.4)
	require.LessOrEqual(t, early, 0.6)

	middle := positionalFaceScore(transcribe.Segment{Start: 45, End: 55}, duration, rng)
	require.GreaterOrEqual(t, middle, 0.6)
	require.LessOrEqual(t, middle, 0.8)

	late := positionalFaceScore(transcribe.Segment{Start: 90, End: 100}, duration, rng)
	require.GreaterOrEqual(t, late, 0.5)
	require.LessOrEqual(t, late, 0.7)
}

func TestFaceCountScore(t *testing.T) {
	require.Equal(t, 1.0, faceCountScore(5))
	require.Equal(t, 1.0, faceCountScore(3))
	require.Equal(t, 0.7, faceCountScore(2))
	require.Equal(t, 0.7, faceCountScore(1))
	require.Equal(t, 0.3, faceCountScore(0))
}

package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/reelforge/clip-engine/ai"
	"github.com/reelforge/clip-engine/analyzer"
	"github.com/reelforge/clip-engine/clients"
	"github.com/reelforge/clip-engine/config"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/pipeline"
	"github.com/reelforge/clip-engine/transcribe"
	"github.com/reelforge/clip-engine/video"
)

// engineStages adapts the shared StepContext into the pipeline's stage
// interfaces. Every stage is fast and deterministic, touches only the
// scenario's storage directory and never spawns a media tool.
type engineStages struct {
	s *StepContext
}

func (s *StepContext) stubStages() pipeline.Stages {
	stages := engineStages{s: s}
	return pipeline.Stages{
		Probe:        stages,
		Acquirer:     stages,
		ExtractAudio: stages.extractAudio,
		Transcriber:  stages,
		Analyzer:     stages,
		Encoder:      stages,
	}
}

var segmentTexts = []string{
	"so here is the thing nobody tells you about shipping on time",
	"we measured it and the results honestly surprised the whole team",
	"stop doing this one thing and your numbers will improve",
	"what happens when you push the system way past its limit",
	"this is the moment everything changed for us",
	"let me show you exactly how that works in practice",
	"the secret is that there is no secret, just repetition",
	"and that is why the first version failed so badly",
}

func (g engineStages) Acquire(ctx context.Context, jobID string, src clients.Source) (string, error) {
	s := g.s
	s.mu.Lock()
	s.ran = append(s.ran, jobID)
	barrier := s.barrier
	s.mu.Unlock()
	if barrier != nil {
		select {
		case <-barrier:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	path := filepath.Join(s.cfg.UploadsDir(), jobID+".mp4")
	return path, os.WriteFile(path, []byte("acquired source bytes"), 0644)
}

func (g engineStages) ProbeFile(jobID, path string, ffProbeOptions ...string) (video.Metadata, error) {
	return g.s.sourceMetadata(), nil
}

func (g engineStages) ValidateFile(jobID, path string, maxDuration, maxFileSize int64) (video.Metadata, error) {
	md := g.s.sourceMetadata()
	if maxDuration > 0 && md.Duration > float64(maxDuration) {
		return md, cerrors.Newf(cerrors.CodeVideoTooLong, "video duration %.0fs exceeds maximum %ds", md.Duration, maxDuration)
	}
	if maxFileSize > 0 && md.SizeBytes > maxFileSize {
		return md, cerrors.Newf(cerrors.CodeFileTooLarge, "video size %d bytes exceeds maximum %d", md.SizeBytes, maxFileSize)
	}
	return md, nil
}

func (g engineStages) extractAudio(ctx context.Context, videoPath, outPath string) error {
	return os.WriteFile(outPath, []byte("speech audio"), 0644)
}

func (g engineStages) Transcribe(ctx context.Context, jobID, wavPath string, duration float64) (*transcribe.Result, error) {
	return g.s.transcript(), nil
}

func (g engineStages) Analyze(ctx context.Context, jobID, videoPath, audioPath string, transcript *transcribe.Result) ([]analyzer.AnalyzedSegment, error) {
	s := g.s
	if s.aiClient != nil {
		// the co-processor is down in this scenario and its failure must
		// stay soft: AI-backed scores keep their neutral value
		_, err := s.aiClient.Complete(ctx, jobID, ai.CompletionRequest{
			System:    "You rate short transcript segments from spoken video.",
			Prompt:    "Rate the emotional intensity of each numbered transcript segment from 0.0 to 1.0.",
			MaxTokens: 50,
		})
		if err == nil {
			return nil, fmt.Errorf("the co-processor was supposed to be unreachable")
		}
		return heuristicSegments(transcript), nil
	}
	return rankedSegments(transcript), nil
}

// rankedSegments hands out descending synthetic scores so the selection
// order is predictable: the first segment scores 0.90 and every following
// one 0.03 less.
func rankedSegments(transcript *transcribe.Result) []analyzer.AnalyzedSegment {
	analyzed := make([]analyzer.AnalyzedSegment, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		score := 0.9 - 0.03*float64(i)
		if score < 0.05 {
			score = 0.05
		}
		analyzed[i] = analyzer.AnalyzedSegment{
			Segment: seg,
			Scores:  analyzer.Scores{Text: score, Audio: score, Visual: score, Combined: score},
		}
	}
	return analyzed
}

// heuristicSegments scores the transcript the way the analyzer degrades
// when no co-processor responds: real text heuristics, neutral audio and
// visual.
func heuristicSegments(transcript *transcribe.Result) []analyzer.AnalyzedSegment {
	text := analyzer.NewTextAnalyzer(&config.WordLists{})
	textScores := text.ScoreSegments(transcript.Segments, transcript.Language)
	weights := analyzer.DefaultWeights()
	analyzed := make([]analyzer.AnalyzedSegment, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		scores := analyzer.Scores{Text: textScores[i], Audio: 0.5, Visual: 0.5}
		scores.Combined = weights.Combine(scores.Text, scores.Audio, scores.Visual)
		analyzed[i] = analyzer.AnalyzedSegment{Segment: seg, Scores: scores}
	}
	analyzer.SortByScore(analyzed)
	return analyzed
}

func (g engineStages) EncodeClips(ctx context.Context, job *pipeline.Job, defs []analyzer.ClipDefinition) ([]pipeline.GeneratedClip, error) {
	s := g.s
	clips := make([]pipeline.GeneratedClip, len(defs))
	for i, def := range defs {
		path := filepath.Join(s.cfg.ClipsDir(), fmt.Sprintf("%s_%s_%s.mp4", job.ID, def.ClipID, uuid.New().String()))
		if err := os.WriteFile(path, []byte("encoded clip"), 0644); err != nil {
			return nil, err
		}
		clips[i] = pipeline.GeneratedClip{
			ClipDefinition: def,
			JobID:          job.ID,
			FilePath:       path,
			FileSize:       12,
			VideoInfo:      pipeline.VideoInfo{Width: 1080, Height: 1920, FPS: 30, Codec: "h264"},
			CreatedAt:      pipeline.Clock.Now().UTC(),
		}
	}
	return clips, nil
}

func (s *StepContext) sourceMetadata() video.Metadata {
	duration := s.assetDuration
	if duration == 0 {
		duration = 600
	}
	return video.Metadata{
		Duration:  duration,
		Width:     1920,
		Height:    1080,
		FPS:       30,
		Format:    "mov,mp4,m4a,3gp,3g2,mj2",
		Codec:     "h264",
		SizeBytes: 64 << 20,
	}
}

// transcript spreads the configured number of segments evenly over the
// asset, each covering a bit over half of its slot.
func (s *StepContext) transcript() *transcribe.Result {
	count := s.segmentCount
	if count == 0 {
		count = 8
	}
	duration := s.assetDuration
	if duration == 0 {
		duration = 600
	}
	step := duration / float64(count)
	segments := make([]transcribe.Segment, count)
	texts := make([]string, count)
	for i := range segments {
		start := float64(i) * step
		segments[i] = transcribe.Segment{
			ID:    i,
			Start: start,
			End:   start + step*0.6,
			Text:  segmentTexts[i%len(segmentTexts)],
		}
		texts[i] = segments[i].Text
	}
	return &transcribe.Result{
		Text:     strings.Join(texts, " "),
		Language: "en",
		Duration: duration,
		Segments: segments,
	}
}

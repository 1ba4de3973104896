package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reelforge/clip-engine/analyzer"
	"github.com/reelforge/clip-engine/config"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/metrics"
	"github.com/reelforge/clip-engine/progress"
	"github.com/reelforge/clip-engine/video"
)

// encoder cuts the selected windows into output clips, a bounded number at
// a time, and drives the [0.75, 1.0] progress band of the job.
type encoder struct {
	cfg     config.Cli
	probe   video.Prober
	cutClip func(ctx context.Context, params video.ClipParams) error
}

func newEncoder(cfg config.Cli, probe video.Prober) *encoder {
	return &encoder{cfg: cfg, probe: probe, cutClip: video.CutClip}
}

// EncodeClips encodes every clip definition against the job source. On any
// failure the clips already written are removed and the whole batch fails.
func (e *encoder) EncodeClips(ctx context.Context, job *Job, defs []analyzer.ClipDefinition) ([]GeneratedClip, error) {
	var totalMillis uint64
	for _, def := range defs {
		totalMillis += uint64(def.Duration * 1000)
	}
	accumulator := progress.NewAccumulator()
	reportCtx, cancelReport := context.WithCancel(ctx)
	defer cancelReport()
	go progress.ReportProgress(reportCtx, job.ID, totalMillis, accumulator.Size, 0.75, 1.0, job.setProgressFraction)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.MaxConcurrentClips)
	clips := make([]GeneratedClip, len(defs))
	for i, def := range defs {
		i, def := i, def
		eg.Go(func() error {
			clip, err := e.encodeOne(egCtx, job, def, accumulator)
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, clip := range clips {
			if clip.FilePath != "" {
				os.Remove(clip.FilePath)
			}
		}
		return nil, err
	}
	return clips, nil
}

func (e *encoder) encodeOne(ctx context.Context, job *Job, def analyzer.ClipDefinition, accumulator *progress.Accumulator) (GeneratedClip, error) {
	start := Clock.Now()
	outPath := filepath.Join(e.cfg.ClipsDir(), fmt.Sprintf("%s_%s_%s.mp4", job.ID, def.ClipID, uuid.New().String()))
	durationMillis := def.Duration * 1000

	// feed the per-clip fraction into the shared accumulator as deltas
	prev := float64(0)
	err := e.cutClip(ctx, video.ClipParams{
		SourcePath:   job.SourcePath,
		OutPath:      outPath,
		Start:        def.StartTime,
		End:          def.EndTime,
		Orientation:  job.opts.Orientation,
		Preset:       e.cfg.FFmpegPreset,
		CRF:          e.cfg.OutputCRF,
		AudioBitrate: e.cfg.AudioBitrate,
		OnProgress: func(fraction float64) {
			if d := fraction - prev; d > 0 {
				accumulator.Accumulate(uint64(d * durationMillis))
				prev = fraction
			}
		},
	})
	if err != nil {
		return GeneratedClip{}, cerrors.Wrap(cerrors.CodeClipGenerationFailed, fmt.Sprintf("error encoding %s", def.ClipID), err)
	}
	if prev < 1 {
		accumulator.Accumulate(uint64((1 - prev) * durationMillis))
	}

	md, err := e.probe.ProbeFile(job.ID, outPath)
	if err != nil {
		os.Remove(outPath)
		return GeneratedClip{}, cerrors.Wrap(cerrors.CodeClipGenerationFailed, "error probing encoded clip", err)
	}
	if math.Abs(md.Duration-def.Duration) > 0.2 {
		log.Log(job.ID, "clip duration drifted from target", "clip_id", def.ClipID, "target", def.Duration, "actual", md.Duration)
	}

	metrics.Metrics.ClipsGeneratedCount.Inc()
	metrics.Metrics.ClipEncodeDurationSec.Observe(Clock.Since(start).Seconds())
	log.Log(job.ID, "encoded clip", "clip_id", def.ClipID, "file", filepath.Base(outPath), "size", md.SizeBytes, "duration", Clock.Since(start))

	return GeneratedClip{
		ClipDefinition: def,
		JobID:          job.ID,
		FilePath:       outPath,
		FileSize:       md.SizeBytes,
		VideoInfo: VideoInfo{
			Width:   md.Width,
			Height:  md.Height,
			FPS:     md.FPS,
			Codec:   md.Codec,
			BitRate: md.BitRate,
		},
		CreatedAt: Clock.Now().UTC(),
	}, nil
}

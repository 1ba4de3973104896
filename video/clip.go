package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type ClipParams struct {
	SourcePath   string
	OutPath      string
	Start        float64
	End          float64
	Orientation  Orientation
	Preset       string
	CRF          int
	AudioBitrate string
	// OnProgress receives the encode position as a fraction of the clip
	// duration in [0, 1]. May be nil.
	OnProgress func(fraction float64)
}

// CutClip re-encodes [Start, End) of the source into an exactly-sized
// H.264/AAC MP4: scale to fully cover the target frame, center-crop to it.
// The output appears atomically via rename.
func CutClip(ctx context.Context, params ClipParams) error {
	if params.End <= params.Start {
		return fmt.Errorf("invalid clip range [%.2f, %.2f)", params.Start, params.End)
	}
	preset := params.Preset
	if preset == "" {
		preset = "medium"
	}
	crf := params.CRF
	if crf == 0 {
		crf = 23
	}
	audioBitrate := params.AudioBitrate
	if audioBitrate == "" {
		audioBitrate = "128k"
	}
	width, height := params.Orientation.Dimensions()
	duration := params.End - params.Start

	tmpPath := params.OutPath + ".tmp.mp4"
	defer os.Remove(tmpPath)

	ffmpegErr := bytes.Buffer{}
	stream := ffmpeg.Input(params.SourcePath, ffmpeg.KwArgs{"ss": formatTime(params.Start)}).
		Output(tmpPath, ffmpeg.KwArgs{
			"t":        formatTime(duration),
			"vf":       fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", width, height, width, height),
			"c:v":      "libx264",
			"pix_fmt":  "yuv420p",
			"preset":   preset,
			"crf":      strconv.Itoa(crf),
			"c:a":      "aac",
			"b:a":      audioBitrate,
			"movflags": "+faststart",
		}).
		GlobalArgs("-progress", "pipe:1", "-nostats").
		OverWriteOutput().
		WithErrorOutput(&ffmpegErr).
		WithOutput(newProgressParser(duration, params.OnProgress))

	if err := runStream(ctx, stream); err != nil {
		return fmt.Errorf("failed to cut clip [%.2f, %.2f) from %s [%s]: %w",
			params.Start, params.End, params.SourcePath, ffmpegErr.String(), err)
	}
	return os.Rename(tmpPath, params.OutPath)
}

// progressParser consumes the key=value stream written by -progress pipe:1
// and reports the encode position against the target duration.
type progressParser struct {
	target   float64
	onUpdate func(float64)
	buf      bytes.Buffer
}

func newProgressParser(targetSeconds float64, onUpdate func(float64)) io.Writer {
	return &progressParser{target: targetSeconds, onUpdate: onUpdate}
}

func (p *progressParser) Write(data []byte) (int, error) {
	if p.onUpdate == nil {
		return len(data), nil
	}
	p.buf.Write(data)
	for {
		i := bytes.IndexByte(p.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(p.buf.Next(i + 1)))
		p.handleLine(line)
	}
	return len(data), nil
}

func (p *progressParser) handleLine(line string) {
	if strings.HasPrefix(line, "out_time_ms=") {
		v, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_ms="), 10, 64)
		if err != nil || p.target <= 0 {
			return
		}
		// despite the name, out_time_ms is in microseconds
		frac := (float64(v) / 1e6) / p.target
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		p.onUpdate(frac)
	} else if line == "progress=end" {
		p.onUpdate(1)
	}
}

// format time in secs to be copatible with ffmpeg's expected time syntax
func formatTime(timeSeconds float64) string {
	timeMillis := int64(timeSeconds * 1000)
	duration := time.Duration(timeMillis) * time.Millisecond
	formattedTime := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(duration)
	return formattedTime.Format("15:04:05.000")
}

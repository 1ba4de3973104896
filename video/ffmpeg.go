package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	// contract requirements of the transcriber: 16 kHz mono 16-bit PCM
	speechSampleRate = "16000"
	speechChannels   = "1"

	silenceFilter = "silencedetect=noise=-40dB:d=0.5"
)

var (
	meanVolumeRe    = regexp.MustCompile(`mean_volume:\s*(-?[0-9.]+)\s*dB`)
	maxVolumeRe     = regexp.MustCompile(`max_volume:\s*(-?[0-9.]+)\s*dB`)
	silenceStartRe  = regexp.MustCompile(`silence_start:\s*(-?[0-9.]+)`)
	silenceEndRe    = regexp.MustCompile(`silence_end:\s*(-?[0-9.]+)\s*\|\s*silence_duration:\s*(-?[0-9.]+)`)
	showinfoPtsRe   = regexp.MustCompile(`pts_time:([0-9.]+)`)
)

// runStream compiles the ffmpeg invocation and waits for it, killing the
// child process when ctx is cancelled.
func runStream(ctx context.Context, stream *ffmpeg.Stream) error {
	cmd := stream.Compile()
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// ExtractSpeechAudio writes the first audio stream of videoPath as a mono
// 16 kHz PCM WAV. The output appears atomically via rename.
func ExtractSpeechAudio(ctx context.Context, videoPath, outPath string) error {
	tmpPath := outPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	ffmpegErr := bytes.Buffer{}
	err := runStream(ctx, ffmpeg.Input(videoPath).
		Output(tmpPath, ffmpeg.KwArgs{
			"map": "0:a:0",
			"c:a": "pcm_s16le",
			"ar":  speechSampleRate,
			"ac":  speechChannels,
		}).OverWriteOutput().WithErrorOutput(&ffmpegErr))
	if err != nil {
		return fmt.Errorf("failed to extract speech audio from %s [%s]: %w", videoPath, ffmpegErr.String(), err)
	}
	return os.Rename(tmpPath, outPath)
}

// MeasureVolume runs one amplitude-statistics pass over the whole asset.
// A run that succeeds but yields no parsable statistics returns (nil, nil);
// the caller decides the fallback.
func MeasureVolume(ctx context.Context, path string) (*VolumeProfile, error) {
	ffmpegErr := bytes.Buffer{}
	err := runStream(ctx, ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"map": "0:a:0",
			"af":  "volumedetect",
			"f":   "null",
		}).WithErrorOutput(&ffmpegErr))
	if err != nil {
		return nil, fmt.Errorf("volumedetect failed for %s [%s]: %w", path, ffmpegErr.String(), err)
	}

	return parseVolumeOutput(ffmpegErr.String()), nil
}

func parseVolumeOutput(out string) *VolumeProfile {
	meanMatch := meanVolumeRe.FindStringSubmatch(out)
	maxMatch := maxVolumeRe.FindStringSubmatch(out)
	if meanMatch == nil || maxMatch == nil {
		return nil
	}
	mean, err := strconv.ParseFloat(meanMatch[1], 64)
	if err != nil {
		return nil
	}
	max, err := strconv.ParseFloat(maxMatch[1], 64)
	if err != nil {
		return nil
	}
	return &VolumeProfile{MeanDB: mean, MaxDB: max}
}

// DetectSilence runs one silence-detection pass (threshold -40 dB, minimum
// 0.5 s) and returns the detected ranges. A silence still open at stream end
// is closed at duration.
func DetectSilence(ctx context.Context, path string, duration float64) ([]SilenceRange, error) {
	ffmpegErr := bytes.Buffer{}
	err := runStream(ctx, ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"map": "0:a:0",
			"af":  silenceFilter,
			"f":   "null",
		}).WithErrorOutput(&ffmpegErr))
	if err != nil {
		return nil, fmt.Errorf("silencedetect failed for %s [%s]: %w", path, ffmpegErr.String(), err)
	}
	return parseSilenceOutput(ffmpegErr.String(), duration), nil
}

func parseSilenceOutput(out string, duration float64) []SilenceRange {
	ranges := []SilenceRange{}
	// starts and ends interleave in emission order, walk them together
	starts := silenceStartRe.FindAllStringSubmatch(out, -1)
	ends := silenceEndRe.FindAllStringSubmatch(out, -1)
	for i, s := range starts {
		start, err := strconv.ParseFloat(s[1], 64)
		if err != nil {
			continue
		}
		if start < 0 {
			start = 0
		}
		if i < len(ends) {
			end, err := strconv.ParseFloat(ends[i][1], 64)
			if err != nil {
				continue
			}
			ranges = append(ranges, SilenceRange{Start: start, End: end, Duration: end - start})
		} else if duration > start {
			// silence ran to end of stream
			ranges = append(ranges, SilenceRange{Start: start, End: duration, Duration: duration - start})
		}
	}
	return ranges
}

// DetectScenes runs the scene-change filter over the asset and returns the
// timestamps of detected cuts.
func DetectScenes(ctx context.Context, path string, threshold float64) ([]float64, error) {
	ffmpegErr := bytes.Buffer{}
	err := runStream(ctx, ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"vf": fmt.Sprintf("select='gt(scene,%.2f)',showinfo", threshold),
			"f":  "null",
		}).WithErrorOutput(&ffmpegErr))
	if err != nil {
		return nil, fmt.Errorf("scene detection failed for %s [%s]: %w", path, ffmpegErr.String(), err)
	}

	return parseShowinfoOutput(ffmpegErr.String()), nil
}

func parseShowinfoOutput(out string) []float64 {
	var cuts []float64
	for _, m := range showinfoPtsRe.FindAllStringSubmatch(out, -1) {
		ts, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, ts)
	}
	return cuts
}

// ExtractFrame grabs a single JPEG frame at tsec.
func ExtractFrame(ctx context.Context, videoPath string, tsec float64, outPath string) error {
	ffmpegErr := bytes.Buffer{}
	err := runStream(ctx, ffmpeg.Input(videoPath, ffmpeg.KwArgs{"ss": formatTime(tsec)}).
		Output(outPath, ffmpeg.KwArgs{
			"vframes": "1",
			"q:v":     "2",
		}).OverWriteOutput().WithErrorOutput(&ffmpegErr))
	if err != nil {
		return fmt.Errorf("failed to extract frame at %.2fs from %s [%s]: %w", tsec, videoPath, ffmpegErr.String(), err)
	}
	return nil
}

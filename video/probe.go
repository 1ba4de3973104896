package video

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"gopkg.in/vansante/go-ffprobe.v2"
)

var unsupportedVideoCodecList = []string{"mjpeg", "jpeg", "png"}

type Prober interface {
	ProbeFile(jobID, path string, ffProbeOptions ...string) (Metadata, error)
	ValidateFile(jobID, path string, maxDuration, maxFileSize int64) (Metadata, error)
}

type Probe struct {
	IgnoreErrMessages []string
}

func (p Probe) ProbeFile(jobID string, path string, ffProbeOptions ...string) (Metadata, error) {
	md, err := p.runProbe(path, ffProbeOptions...)
	if err == nil {
		return md, nil
	}

	// ignore these probing errors if found and re-run with fatal loglevel to obtain the probe data
	errMsg := strings.ToLower(err.Error())
	for _, ignoreMsg := range p.IgnoreErrMessages {
		if strings.Contains(errMsg, ignoreMsg) {
			log.Log(jobID, "ignoring probe error", "err", err)
			return p.runProbe(path, "-loglevel", "fatal")
		}
	}
	return Metadata{}, err
}

// ValidateFile probes path and rejects it when it exceeds the configured
// duration or size limits.
func (p Probe) ValidateFile(jobID string, path string, maxDuration, maxFileSize int64) (Metadata, error) {
	md, err := p.ProbeFile(jobID, path)
	if err != nil {
		return md, err
	}
	return md, validateLimits(md, maxDuration, maxFileSize)
}

func validateLimits(md Metadata, maxDuration, maxFileSize int64) error {
	if maxDuration > 0 && md.Duration > float64(maxDuration) {
		return cerrors.Newf(cerrors.CodeVideoTooLong, "video duration %.0fs exceeds maximum %ds", md.Duration, maxDuration)
	}
	if maxFileSize > 0 && md.SizeBytes > maxFileSize {
		return cerrors.Newf(cerrors.CodeFileTooLarge, "video size %d bytes exceeds maximum %d", md.SizeBytes, maxFileSize)
	}
	return nil
}

func (p Probe) runProbe(path string, ffProbeOptions ...string) (md Metadata, err error) {
	if len(ffProbeOptions) == 0 {
		ffProbeOptions = []string{"-loglevel", "error"}
	}
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer probeCancel()
		data, err = ffprobe.ProbeURL(probeCtx, path, ffProbeOptions...)
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0 // don't impose a timeout as part of the retries
	err = backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3))
	if err != nil {
		return Metadata{}, cerrors.Wrap(cerrors.CodeInvalidInput, "error probing", err)
	}
	return parseProbeOutput(data)
}

func parseProbeOutput(probeData *ffprobe.ProbeData) (Metadata, error) {
	// check for a valid video stream
	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return Metadata{}, cerrors.New(cerrors.CodeInvalidInput, "error checking for video: no video stream found")
	}
	// check for unsupported video stream(s)
	for _, codec := range unsupportedVideoCodecList {
		if strings.ToLower(videoStream.CodecName) == codec {
			return Metadata{}, cerrors.Newf(cerrors.CodeInvalidInput, "error checking for video: %s is not supported", videoStream.CodecName)
		}
	}
	// We rely on this being present to get required information about the input video, so error out if it isn't
	if probeData.Format == nil {
		return Metadata{}, cerrors.New(cerrors.CodeInvalidInput, "error parsing input video: format information missing")
	}
	// parse bitrate
	bitRateValue := videoStream.BitRate
	if bitRateValue == "" {
		bitRateValue = probeData.Format.BitRate
	}
	var bitrate int64
	if bitRateValue != "" {
		var err error
		bitrate, err = strconv.ParseInt(bitRateValue, 10, 64)
		if err != nil {
			return Metadata{}, cerrors.Wrap(cerrors.CodeInvalidInput, "error parsing bitrate from probed data", err)
		}
	}
	// parse filesize
	size, err := strconv.ParseInt(probeData.Format.Size, 10, 64)
	if err != nil {
		return Metadata{}, cerrors.Wrap(cerrors.CodeInvalidInput, "error parsing filesize from probed data", err)
	}
	// parse fps
	fps, err := parseFps(videoStream.AvgFrameRate)
	if err != nil {
		return Metadata{}, cerrors.Wrap(cerrors.CodeInvalidInput, "error parsing avg fps from probed data", err)
	}
	// if fps is 0, try parsing the RFrameRate in the probed data
	if fps == 0 {
		fps, err = parseFps(videoStream.RFrameRate)
		if err != nil {
			return Metadata{}, cerrors.Wrap(cerrors.CodeInvalidInput, "error parsing real fps from probed data", err)
		}
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil {
		duration = probeData.Format.DurationSeconds
	}

	return Metadata{
		Duration:  duration,
		Width:     int64(videoStream.Width),
		Height:    int64(videoStream.Height),
		FPS:       fps,
		Format:    probeData.Format.FormatName,
		Codec:     videoStream.CodecName,
		BitRate:   bitrate,
		SizeBytes: size,
	}, nil
}

func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		fps, err := strconv.ParseFloat(framerate, 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing framerate: %w", err)
		}
		return fps, nil
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate numerator: %w", err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("error parsing framerate denominator: %w", err)
	}

	if den == 0 {
		// 0/0 can be valid for a video track i.e. mjpeg
		if num == 0 {
			return 0, nil
		}

		// If only denominator is 0 then the framerate is invalid
		return 0, fmt.Errorf("invalid framerate denominator 0")
	}

	return float64(num) / float64(den), nil
}

package video

import (
	"testing"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/stretchr/testify/require"
	"gopkg.in/vansante/go-ffprobe.v2"
)

func TestItRejectsWhenNoVideoTrackPresent(t *testing.T) {
	_, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType: "audio",
			},
		},
	})
	require.ErrorContains(t, err, "no video stream found")
	require.Equal(t, cerrors.CodeInvalidInput, cerrors.CodeOf(err))
}

func TestItRejectsWhenMJPEGVideoTrackPresent(t *testing.T) {
	_, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType: "video",
				CodecName: "mjpeg",
			},
		},
	})
	require.ErrorContains(t, err, "mjpeg is not supported")

	_, err = parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType: "video",
				CodecName: "jpeg",
			},
		},
	})
	require.ErrorContains(t, err, "jpeg is not supported")
}

func TestItRejectsWhenFormatMissing(t *testing.T) {
	_, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType: "video",
			},
		},
	})
	require.ErrorContains(t, err, "format information missing")
}

func TestParseProbeOutput(t *testing.T) {
	md, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType:    "video",
				CodecName:    "h264",
				Width:        1920,
				Height:       1080,
				AvgFrameRate: "30000/1001",
				BitRate:      "2500000",
				Duration:     "90.5",
			},
		},
		Format: &ffprobe.Format{
			FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
			Size:       "52428800",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "h264", md.Codec)
	require.Equal(t, int64(1920), md.Width)
	require.Equal(t, int64(1080), md.Height)
	require.InDelta(t, 29.97, md.FPS, 0.01)
	require.Equal(t, int64(2500000), md.BitRate)
	require.Equal(t, 90.5, md.Duration)
	require.Equal(t, int64(52428800), md.SizeBytes)
	require.Equal(t, "mov,mp4,m4a,3gp,3g2,mj2", md.Format)
}

func TestDurationFallsBackToFormat(t *testing.T) {
	md, err := parseProbeOutput(&ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{
				CodecType:    "video",
				CodecName:    "h264",
				AvgFrameRate: "25/1",
			},
		},
		Format: &ffprobe.Format{
			FormatName:      "mp4",
			Size:            "1024",
			BitRate:         "900000",
			DurationSeconds: 120,
		},
	})
	require.NoError(t, err)
	require.Equal(t, float64(120), md.Duration)
	require.Equal(t, int64(900000), md.BitRate)
}

func TestValidateLimits(t *testing.T) {
	md := Metadata{Duration: 7300, SizeBytes: 100}
	err := validateLimits(md, 7200, 1000)
	require.Equal(t, cerrors.CodeVideoTooLong, cerrors.CodeOf(err))

	md = Metadata{Duration: 60, SizeBytes: 5000}
	err = validateLimits(md, 7200, 1000)
	require.Equal(t, cerrors.CodeFileTooLarge, cerrors.CodeOf(err))

	require.NoError(t, validateLimits(Metadata{Duration: 60, SizeBytes: 100}, 7200, 1000))
	// zero limits disable the checks
	require.NoError(t, validateLimits(Metadata{Duration: 1e9, SizeBytes: 1 << 60}, 0, 0))
}

func TestParseFps(t *testing.T) {
	tests := []struct {
		framerate string
		expected  float64
		errors    bool
	}{
		{"", 0, false},
		{"30", 30, false},
		{"30000/1001", 29.97002997002997, false},
		{"25/1", 25, false},
		{"0/0", 0, false},
		{"1/0", 0, true},
		{"abc", 0, true},
		{"abc/1", 0, true},
	}
	for _, tt := range tests {
		fps, err := parseFps(tt.framerate)
		if tt.errors {
			require.Error(t, err, tt.framerate)
			continue
		}
		require.NoError(t, err, tt.framerate)
		require.Equal(t, tt.expected, fps, tt.framerate)
	}
}

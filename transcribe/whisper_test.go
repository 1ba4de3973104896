package transcribe

import (
	"testing"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/stretchr/testify/require"
)

const whisperJSON = `{
	"systeminfo": "AVX = 1 | AVX2 = 1",
	"result": {
		"language": "en"
	},
	"transcription": [
		{
			"timestamps": {"from": "00:00:00,000", "to": "00:00:04,500"},
			"offsets": {"from": 0, "to": 4500},
			"text": " Welcome back to the channel."
		},
		{
			"timestamps": {"from": "00:00:04,500", "to": "00:00:09,120"},
			"offsets": {"from": 4500, "to": 9120},
			"text": " Today we build something amazing."
		}
	]
}`

func TestParseWhisperOutput(t *testing.T) {
	result, err := parseWhisperOutput([]byte(whisperJSON), 90)
	require.NoError(t, err)
	require.Equal(t, "en", result.Language)
	require.Equal(t, float64(90), result.Duration)
	require.Len(t, result.Segments, 2)

	require.Equal(t, 0, result.Segments[0].ID)
	require.Equal(t, float64(0), result.Segments[0].Start)
	require.Equal(t, 4.5, result.Segments[0].End)
	require.Equal(t, " Welcome back to the channel.", result.Segments[0].Text)

	require.Equal(t, 1, result.Segments[1].ID)
	require.Equal(t, 4.5, result.Segments[1].Start)
	require.Equal(t, 9.12, result.Segments[1].End)

	require.Equal(t, " Welcome back to the channel. Today we build something amazing.", result.Text)
}

func TestParseWhisperOutputDropsMalformedSegments(t *testing.T) {
	payload := `{
		"result": {"language": "vi"},
		"transcription": [
			{"offsets": {"from": 1000, "to": 1000}, "text": " zero length"},
			{"offsets": {"from": 2000, "to": 5000}, "text": " kept"},
			{"offsets": {"from": 500, "to": 800}, "text": " out of order"}
		]
	}`
	result, err := parseWhisperOutput([]byte(payload), 10)
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	require.Equal(t, " kept", result.Segments[0].Text)
	require.Equal(t, 0, result.Segments[0].ID)
}

func TestParseWhisperOutputNoSpeech(t *testing.T) {
	result, err := parseWhisperOutput([]byte(`{"result": {"language": "en"}, "transcription": []}`), 30)
	require.NoError(t, err)
	require.Empty(t, result.Segments)
	require.Empty(t, result.Text)
	require.Equal(t, float64(30), result.Duration)
}

func TestParseWhisperOutputExtendsDuration(t *testing.T) {
	// transcript can run past the container duration reported by the probe
	payload := `{"transcription": [{"offsets": {"from": 0, "to": 95000}, "text": "x"}]}`
	result, err := parseWhisperOutput([]byte(payload), 90)
	require.NoError(t, err)
	require.Equal(t, float64(95), result.Duration)
}

func TestParseWhisperOutputBadJSON(t *testing.T) {
	_, err := parseWhisperOutput([]byte("not json"), 30)
	require.Error(t, err)
	require.Equal(t, cerrors.CodeTranscriptionFailed, cerrors.CodeOf(err))
}

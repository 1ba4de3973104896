package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelforge/clip-engine/clients"
	cerrors "github.com/reelforge/clip-engine/errors"
)

func TestParseAnalysisRequest(t *testing.T) {
	require := require.New(t)

	payload := []byte(`{
		"source": {"type": "hosted-url", "url": "https://videohub.example/watch?v=abc123"},
		"options": {"clipDuration": 45, "clipCount": 3, "minScore": 0, "orientation": "landscape"}
	}`)
	req, err := ParseAnalysisRequest(payload)
	require.NoError(err)
	require.Equal(clients.SourceHostedURL, req.Source.Type)
	require.Equal("https://videohub.example/watch?v=abc123", req.Source.URL)
	require.Equal(45, req.Options.ClipDuration)
	require.Equal(3, req.Options.ClipCount)
	require.NotNil(req.Options.MinScore)
	require.Zero(*req.Options.MinScore)
	require.Equal("landscape", req.Options.Orientation)
}

func TestParseAnalysisRequestEmptyOptions(t *testing.T) {
	require := require.New(t)

	req, err := ParseAnalysisRequest([]byte(`{"source": {"type": "upload", "path": "/data/in.mp4"}}`))
	require.NoError(err)
	require.Equal(clients.SourceUpload, req.Source.Type)
	require.Equal("/data/in.mp4", req.Source.Path)
	require.Nil(req.Options.MinScore)
	require.Zero(req.Options.ClipDuration)
}

func TestParseAnalysisRequestRejectsBadPayloads(t *testing.T) {
	payloads := map[string]string{
		"empty object":             `{}`,
		"unknown source type":      `{"source": {"type": "ftp-url", "url": "ftp://x"}}`,
		"extra source field":       `{"source": {"type": "upload", "path": "/in.mp4", "mode": "fast"}}`,
		"extra top-level field":    `{"source": {"type": "upload", "path": "/in.mp4"}, "priority": 1}`,
		"clip duration below min":  `{"source": {"type": "upload", "path": "/in.mp4"}, "options": {"clipDuration": 10}}`,
		"clip duration fractional": `{"source": {"type": "upload", "path": "/in.mp4"}, "options": {"clipDuration": 60.5}}`,
		"clip count above max":     `{"source": {"type": "upload", "path": "/in.mp4"}, "options": {"clipCount": 50}}`,
		"min score above max":      `{"source": {"type": "upload", "path": "/in.mp4"}, "options": {"minScore": 1.5}}`,
		"bad orientation":          `{"source": {"type": "upload", "path": "/in.mp4"}, "options": {"orientation": "square"}}`,
		"not json":                 `clip me maybe`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnalysisRequest([]byte(payload))
			require.Error(t, err)
			require.True(t, cerrors.IsCode(err, cerrors.CodeInvalidInput))
		})
	}
}

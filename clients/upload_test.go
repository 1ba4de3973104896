package clients

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/stretchr/testify/require"
)

func TestUploadCopy(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "recording.mov")
	require.NoError(t, os.WriteFile(srcPath, []byte("mov bytes"), 0644))

	uploadsDir := t.TempDir()
	u := NewUploadCopier(uploadsDir)
	outPath, err := u.Acquire(context.Background(), "job-up1", Source{Type: SourceUpload, Path: srcPath})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(uploadsDir, "job-up1.mov"), outPath)

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, []byte("mov bytes"), contents)

	// the original stays where it was
	_, err = os.Stat(srcPath)
	require.NoError(t, err)
}

func TestUploadCopyDefaultsExtension(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "noext")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0644))

	u := NewUploadCopier(t.TempDir())
	outPath, err := u.Acquire(context.Background(), "job-up2", Source{Type: SourceUpload, Path: srcPath})
	require.NoError(t, err)
	require.Equal(t, ".mp4", filepath.Ext(outPath))
}

func TestUploadCopyMissingSource(t *testing.T) {
	u := NewUploadCopier(t.TempDir())
	_, err := u.Acquire(context.Background(), "job-up3", Source{Type: SourceUpload, Path: "/nonexistent/file.mp4"})
	require.Equal(t, cerrors.CodeInvalidInput, cerrors.CodeOf(err))
}

func TestSourceValidate(t *testing.T) {
	require.NoError(t, Source{Type: SourceHostedURL, URL: "https://videos.example.com/watch?v=x"}.Validate())
	require.NoError(t, Source{Type: SourceHTTPURL, URL: "http://cdn.example.com/a.mp4"}.Validate())

	err := Source{Type: SourceHostedURL}.Validate()
	require.Equal(t, cerrors.CodeInvalidInput, cerrors.CodeOf(err))

	err = Source{Type: SourceHTTPURL, URL: "ftp://cdn.example.com/a.mp4"}.Validate()
	require.ErrorContains(t, err, "unsupported url scheme")

	err = Source{Type: "magnet"}.Validate()
	require.ErrorContains(t, err, "unknown source type")

	err = Source{Type: SourceUpload}.Validate()
	require.ErrorContains(t, err, "source path is required")

	err = Source{Type: SourceUpload, Path: "/nonexistent/file.mp4"}.Validate()
	require.ErrorContains(t, err, "not readable")

	f := filepath.Join(t.TempDir(), "ok.mp4")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
	require.NoError(t, Source{Type: SourceUpload, Path: f}.Validate())
}

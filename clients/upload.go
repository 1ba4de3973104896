package clients

import (
	"context"
	"io"
	"os"
	"path/filepath"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/progress"
)

// UploadCopier moves an already-uploaded local file into the uploads
// directory under the job id.
type UploadCopier struct {
	UploadsDir string
}

func NewUploadCopier(uploadsDir string) *UploadCopier {
	return &UploadCopier{UploadsDir: uploadsDir}
}

func (u *UploadCopier) Acquire(ctx context.Context, jobID string, src Source) (string, error) {
	in, err := os.Open(src.Path)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeInvalidInput, "error opening uploaded file", err)
	}
	defer in.Close()

	ext := filepath.Ext(src.Path)
	if ext == "" {
		ext = ".mp4"
	}
	outPath := filepath.Join(u.UploadsDir, jobID+ext)
	out, err := os.Create(outPath)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, "error creating upload copy", err)
	}

	hasher := progress.NewReadHasher(in)
	written, err := io.Copy(out, hasher)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outPath)
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, "error copying uploaded file", err)
	}

	log.Log(jobID, "upload copied", "source", src.Path, "bytes", written, "sha256", hasher.SHA256(), "file", outPath)
	return outPath, nil
}

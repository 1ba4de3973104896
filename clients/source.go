// Package clients contains the acquisition adapters that bring a source
// video onto local disk, one per supported source variant.
package clients

import (
	"context"
	"net/url"
	"os"

	cerrors "github.com/reelforge/clip-engine/errors"
)

type SourceType string

const (
	SourceHostedURL SourceType = "hosted-url"
	SourceHTTPURL   SourceType = "http-url"
	SourceUpload    SourceType = "upload"
)

// Source is the tagged input variant of an analysis request. URL is set for
// the two URL variants, Path for direct uploads.
type Source struct {
	Type SourceType `json:"type"`
	URL  string     `json:"url,omitempty"`
	Path string     `json:"path,omitempty"`
}

func (s Source) Validate() error {
	switch s.Type {
	case SourceHostedURL, SourceHTTPURL:
		if s.URL == "" {
			return cerrors.New(cerrors.CodeInvalidInput, "source url is required")
		}
		u, err := url.Parse(s.URL)
		if err != nil {
			return cerrors.Wrap(cerrors.CodeInvalidInput, "invalid source url", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return cerrors.Newf(cerrors.CodeInvalidInput, "unsupported url scheme %q", u.Scheme)
		}
	case SourceUpload:
		if s.Path == "" {
			return cerrors.New(cerrors.CodeInvalidInput, "source path is required")
		}
		info, err := os.Stat(s.Path)
		if err != nil {
			return cerrors.Wrap(cerrors.CodeInvalidInput, "source file not readable", err)
		}
		if !info.Mode().IsRegular() {
			return cerrors.Newf(cerrors.CodeInvalidInput, "source path %s is not a regular file", s.Path)
		}
	default:
		return cerrors.Newf(cerrors.CodeInvalidInput, "unknown source type %q", s.Type)
	}
	return nil
}

// Acquirer downloads or copies one source variant into the uploads
// directory and returns the resulting local path.
type Acquirer interface {
	Acquire(ctx context.Context, jobID string, src Source) (string, error)
}

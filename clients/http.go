package clients

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/metrics"
	"github.com/reelforge/clip-engine/progress"
)

// MaxDownloadDuration bounds a direct HTTP download end to end, body read
// included.
const MaxDownloadDuration = 5 * time.Minute

// HTTPDownloader fetches a video over plain HTTP GET with a content-type
// allow-list and a hard size cap.
type HTTPDownloader struct {
	AllowedContentTypes []string
	MaxFileSize         int64
	UploadsDir          string

	client *http.Client
}

func NewHTTPDownloader(allowedContentTypes []string, maxFileSize int64, uploadsDir string) *HTTPDownloader {
	return &HTTPDownloader{
		AllowedContentTypes: allowedContentTypes,
		MaxFileSize:         maxFileSize,
		UploadsDir:          uploadsDir,
		client:              newRetryableHTTPClient(),
	}
}

func newRetryableHTTPClient() *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 5                          // Retry a maximum of this+1 times
	client.RetryWaitMin = 200 * time.Millisecond // Wait at least this long between retries
	client.RetryWaitMax = 5 * time.Second        // Wait at most this long between retries (exponential backoff)
	client.Logger = log.NewRetryableHTTPLogger()
	client.CheckRetry = metrics.HttpRetryHook
	client.HTTPClient = &http.Client{
		// Give up on requests that take more than this long - the file is probably
		// too big for us to process or the connection is hanging
		Timeout: MaxDownloadDuration,
	}

	return client.StandardClient()
}

func (d *HTTPDownloader) Acquire(ctx context.Context, jobID string, src Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, MaxDownloadDuration)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeInvalidInput, "error creating download request", err)
	}
	resp, err := metrics.MonitorRequest(metrics.Metrics.SourceClient, d.client, req)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, "error on download request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", cerrors.Newf(cerrors.CodeDownloadFailed, "bad status code from download request: %d %s", resp.StatusCode, resp.Status)
	}

	mediatype, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !contentTypeAllowed(d.AllowedContentTypes, mediatype) {
		return "", cerrors.Newf(cerrors.CodeInvalidInput, "unsupported content type %q", mediatype)
	}
	if d.MaxFileSize > 0 && resp.ContentLength > d.MaxFileSize {
		return "", cerrors.Newf(cerrors.CodeFileTooLarge, "content length %d bytes exceeds maximum %d", resp.ContentLength, d.MaxFileSize)
	}

	outPath := filepath.Join(d.UploadsDir, jobID+extensionForContentType(mediatype, src.URL))
	tmpPath := outPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, "error creating download file", err)
	}
	defer os.Remove(tmpPath)

	var body io.Reader = resp.Body
	if d.MaxFileSize > 0 {
		body = io.LimitReader(resp.Body, d.MaxFileSize+1)
	}
	hasher := progress.NewReadHasher(body)
	written, err := io.Copy(out, hasher)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, fmt.Sprintf("error downloading %s", log.RedactURL(src.URL)), err)
	}
	if d.MaxFileSize > 0 && written > d.MaxFileSize {
		return "", cerrors.Newf(cerrors.CodeFileTooLarge, "download exceeded maximum size %d bytes", d.MaxFileSize)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, "error moving download into place", err)
	}

	log.Log(jobID, "http download complete", "url", src.URL, "bytes", written, "sha256", hasher.SHA256(), "file", outPath)
	return outPath, nil
}

func contentTypeAllowed(allowed []string, mediatype string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, ct := range allowed {
		if strings.EqualFold(ct, mediatype) {
			return true
		}
	}
	return false
}

// extensionForContentType picks the output extension from the response
// content type, falling back to the URL path.
func extensionForContentType(mediatype, rawURL string) string {
	switch mediatype {
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".mp4"
}

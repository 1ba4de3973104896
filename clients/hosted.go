package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/subprocess"
)

const hostedProbeTimeout = 60 * time.Second

// HostedDownloader shells out to an extractor binary (yt-dlp) to fetch
// videos from hosted streaming sites.
type HostedDownloader struct {
	Bin         string
	CookiesFile string
	UploadsDir  string
	MaxFileSize int64
}

// HostedMetadata is what the extractor reports about a remote video
// without downloading it.
type HostedMetadata struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Width    int64   `json:"width"`
	Height   int64   `json:"height"`
	FPS      float64 `json:"fps"`
	FileSize int64   `json:"fileSize"`
	Format   string  `json:"format"`
	Codec    string  `json:"codec"`
	BitRate  int64   `json:"bitrate"`
}

func NewHostedDownloader(bin, cookiesFile, uploadsDir string, maxFileSize int64) *HostedDownloader {
	return &HostedDownloader{Bin: bin, CookiesFile: cookiesFile, UploadsDir: uploadsDir, MaxFileSize: maxFileSize}
}

func (d *HostedDownloader) Acquire(ctx context.Context, jobID string, src Source) (string, error) {
	args := d.downloadArgs(jobID, src.URL)
	log.Log(jobID, "starting extractor download", "url", src.URL, "bin", d.Bin)

	cmd := exec.CommandContext(ctx, d.Bin, args...)
	output := subprocess.NewTail(10)
	subprocess.LogOutputs(jobID, cmd, output)
	if err := cmd.Run(); err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed,
			fmt.Sprintf("extractor failed [%s]", output.String()), err)
	}

	outFile, err := d.findOutput(jobID)
	if err != nil {
		return "", err
	}
	log.Log(jobID, "extractor download complete", "file", outFile)
	return outFile, nil
}

func (d *HostedDownloader) downloadArgs(jobID, url string) []string {
	args := []string{
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--no-playlist",
		"--max-filesize", fmt.Sprintf("%d", d.MaxFileSize),
		"--retries", "5",
		"--extractor-retries", "3",
		"--no-abort-on-error",
		"-o", filepath.Join(d.UploadsDir, jobID+".%(ext)s"),
	}
	if d.CookiesFile != "" {
		args = append(args, "--cookies", d.CookiesFile)
	}
	return append(args, url)
}

// findOutput locates the downloaded file by job id prefix. The extractor
// decides the final extension, so the exact name is not known up front.
func (d *HostedDownloader) findOutput(jobID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.UploadsDir, jobID+".*"))
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeDownloadFailed, "error locating extractor output", err)
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, nil
	}
	return "", cerrors.New(cerrors.CodeDownloadFailed, "extractor produced no output file")
}

// ProbeMetadata asks the extractor for the remote video's metadata without
// downloading anything.
func (d *HostedDownloader) ProbeMetadata(ctx context.Context, url string) (*HostedMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, hostedProbeTimeout)
	defer cancel()

	args := []string{"--dump-json", "--no-playlist"}
	if d.CookiesFile != "" {
		args = append(args, "--cookies", d.CookiesFile)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, d.Bin, args...)
	stdOut := bytes.Buffer{}
	stdErr := subprocess.NewTail(10)
	cmd.Stdout = &stdOut
	cmd.Stderr = stdErr
	if err := cmd.Run(); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeDownloadFailed,
			fmt.Sprintf("extractor probe failed [%s]", stdErr.String()), err)
	}
	return parseExtractorMetadata(stdOut.Bytes())
}

func parseExtractorMetadata(data []byte) (*HostedMetadata, error) {
	var raw struct {
		Title          string  `json:"title"`
		Duration       float64 `json:"duration"`
		Width          int64   `json:"width"`
		Height         int64   `json:"height"`
		FPS            float64 `json:"fps"`
		FileSize       int64   `json:"filesize"`
		FileSizeApprox int64   `json:"filesize_approx"`
		Ext            string  `json:"ext"`
		VCodec         string  `json:"vcodec"`
		TBR            float64 `json:"tbr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeDownloadFailed, "error parsing extractor metadata", err)
	}
	size := raw.FileSize
	if size == 0 {
		size = raw.FileSizeApprox
	}
	return &HostedMetadata{
		Title:    raw.Title,
		Duration: raw.Duration,
		Width:    raw.Width,
		Height:   raw.Height,
		FPS:      raw.FPS,
		FileSize: size,
		Format:   raw.Ext,
		Codec:    raw.VCodec,
		BitRate:  int64(raw.TBR * 1000),
	}, nil
}

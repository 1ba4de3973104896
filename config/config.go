package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

var Version string

const (
	DefaultClipDuration = 60
	DefaultClipCount    = 5
	DefaultMinScore     = 0.6
	DefaultOrientation  = "portrait"
)

type Cli struct {
	StorageDir    string
	MaxDuration   int64
	MaxFileSize   int64
	RetentionDays int
	SweepInterval time.Duration
	QueueCapacity int

	MetricsPort  int
	PprofPort    int
	Verbosity    string
	PrintVersion bool

	TextWeight   float64
	AudioWeight  float64
	VisualWeight float64

	MaxConcurrentClips int
	FFmpegPreset       string
	OutputCRF          int
	AudioBitrate       string
	SceneFilter        bool

	ExtractorBin      string
	HostedCookiesFile string
	TranscriberBin    string
	TranscriberModel  string
	WordListsFile     string

	DownloadURLBase string

	HTTPContentTypes []string

	AIEnabled        bool
	AIBaseURL        *url.URL
	AIAPIKey         string
	AIModel          string
	AIBackupModel    string
	AIVisionModel    string
	AIRateLimit      float64
	AIRequestTimeout time.Duration
}

func (cli *Cli) UploadsDir() string {
	return filepath.Join(cli.StorageDir, "uploads")
}

func (cli *Cli) ProcessingDir() string {
	return filepath.Join(cli.StorageDir, "processing")
}

func (cli *Cli) ClipsDir() string {
	return filepath.Join(cli.StorageDir, "clips")
}

func (cli *Cli) FramesDir() string {
	return filepath.Join(cli.StorageDir, "frames")
}

func (cli *Cli) EnsureDirs() error {
	for _, dir := range []string{cli.UploadsDir(), cli.ProcessingDir(), cli.ClipsDir(), cli.FramesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (cli *Cli) Validate() error {
	if cli.StorageDir == "" {
		return fmt.Errorf("storage-dir is required")
	}
	if cli.MaxDuration <= 0 {
		return fmt.Errorf("max-duration must be positive, got %d", cli.MaxDuration)
	}
	if cli.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive, got %d", cli.MaxFileSize)
	}
	if cli.TextWeight < 0 || cli.AudioWeight < 0 || cli.VisualWeight < 0 {
		return fmt.Errorf("analyzer weights must be non-negative")
	}
	sum := cli.TextWeight + cli.AudioWeight + cli.VisualWeight
	if diff := sum - 1; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("analyzer weights must sum to 1, got %f", sum)
	}
	if cli.MaxConcurrentClips < 1 {
		return fmt.Errorf("max-concurrent-clips must be at least 1, got %d", cli.MaxConcurrentClips)
	}
	return nil
}

package config

import (
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// LoadConfig parses flags, environment variables (CLIP_ENGINE_ prefix) and an
// optional plain config file into a validated Cli.
func LoadConfig(name string, args []string) (Cli, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cli := Cli{}

	fs.String("config", "", "config file (optional)")
	fs.BoolVar(&cli.PrintVersion, "version", false, "print application version")
	fs.StringVar(&cli.Verbosity, "v", "", "Log verbosity.  {4|5|6}")
	fs.IntVar(&cli.MetricsPort, "metrics-port", 2112, "Prometheus metrics listen port")
	fs.IntVar(&cli.PprofPort, "pprof-port", 6061, "Pprof listen port")
	fs.StringVar(&cli.StorageDir, "storage-dir", "/var/lib/clip-engine", "Root directory for uploads, processing files, clips and frames")
	fs.Int64Var(&cli.MaxDuration, "max-duration", 7200, "Reject source videos longer than this many seconds")
	fs.Int64Var(&cli.MaxFileSize, "max-file-size", 2*1024*1024*1024, "Reject source videos bigger than this many bytes")
	fs.IntVar(&cli.RetentionDays, "retention-days", 7, "Age in days after which the sweep deletes finished jobs and their clips")
	fs.DurationVar(&cli.SweepInterval, "sweep-interval", 24*time.Hour, "How often the retention sweep runs")
	fs.IntVar(&cli.QueueCapacity, "queue-capacity", 100, "Maximum number of queued jobs")

	fs.Float64Var(&cli.TextWeight, "text-weight", 0.4, "Combiner weight for the text modality")
	fs.Float64Var(&cli.AudioWeight, "audio-weight", 0.3, "Combiner weight for the audio modality")
	fs.Float64Var(&cli.VisualWeight, "visual-weight", 0.3, "Combiner weight for the visual modality")

	fs.IntVar(&cli.MaxConcurrentClips, "max-concurrent-clips", 3, "Number of parallel clip encodes per job")
	fs.StringVar(&cli.FFmpegPreset, "ffmpeg-preset", "medium", "x264 preset used for clip encoding")
	fs.IntVar(&cli.OutputCRF, "output-crf", 23, "x264 CRF used for clip encoding")
	fs.StringVar(&cli.AudioBitrate, "audio-bitrate", "128k", "AAC bitrate used for clip encoding")
	fs.BoolVar(&cli.SceneFilter, "scene-filter", false, "Use the ffmpeg scene-detection filter instead of the duration heuristic")

	fs.StringVar(&cli.ExtractorBin, "extractor-bin", "yt-dlp", "Path to the hosted-video extractor binary")
	fs.StringVar(&cli.HostedCookiesFile, "hosted-cookies-file", "", "Netscape-format cookie jar passed to the extractor")
	fs.StringVar(&cli.TranscriberBin, "transcriber-bin", "whisper-cli", "Path to the transcriber binary")
	fs.StringVar(&cli.TranscriberModel, "transcriber-model", "models/ggml-base.bin", "Path to the transcriber model file")
	fs.StringVar(&cli.WordListsFile, "word-lists-file", "", "YAML file overriding the built-in keyword, action-verb, emotion and question word lists")

	fs.StringVar(&cli.DownloadURLBase, "download-url-base", "/api/clips/download", "Path prefix clips are served from, used to assemble download URLs")
	CommaSliceFlag(fs, &cli.HTTPContentTypes, "http-content-types", []string{"video/mp4", "video/quicktime", "video/webm"}, "Accepted content types for http-url sources")

	fs.BoolVar(&cli.AIEnabled, "ai", false, "Enable the AI co-processor for emotion and face scoring")
	URLVarFlag(fs, &cli.AIBaseURL, "ai-base-url", "https://api.openai.com/v1", "Base URL of the OpenAI-compatible chat completions API")
	fs.StringVar(&cli.AIAPIKey, "ai-api-key", "", "API key for the AI co-processor")
	fs.StringVar(&cli.AIModel, "ai-model", "gpt-4o-mini", "Primary text model")
	fs.StringVar(&cli.AIBackupModel, "ai-backup-model", "gpt-3.5-turbo", "Backup text model used when the primary fails")
	fs.StringVar(&cli.AIVisionModel, "ai-vision-model", "gpt-4o", "Vision model used for face counting")
	fs.Float64Var(&cli.AIRateLimit, "ai-rate-limit", 1, "AI requests per second")
	fs.DurationVar(&cli.AIRequestTimeout, "ai-request-timeout", 30*time.Second, "Per-request timeout for AI calls")

	err := ff.Parse(
		fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("CLIP_ENGINE"),
	)
	if err != nil {
		return cli, err
	}
	if len(fs.Args()) > 0 {
		return cli, fmt.Errorf("unexpected extra arguments on command line: %v", fs.Args())
	}
	if err := cli.Validate(); err != nil {
		return cli, err
	}
	return cli, nil
}

func parseURL(s string, dest **url.URL) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if _, err = url.ParseQuery(u.RawQuery); err != nil {
		return err
	}
	*dest = u
	return nil
}

func URLVarFlag(fs *flag.FlagSet, dest **url.URL, name, value, usage string) {
	if err := parseURL(value, dest); err != nil {
		panic(err)
	}
	fs.Func(name, usage, func(s string) error {
		return parseURL(s, dest)
	})
}

func CommaSliceFlag(fs *flag.FlagSet, dest *[]string, name string, value []string, usage string) {
	*dest = value
	fs.Func(name, usage, func(s string) error {
		if s == "" {
			*dest = []string{}
			return nil
		}
		*dest = strings.Split(s, ",")
		return nil
	})
}

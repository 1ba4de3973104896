package config

import (
	"flag"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cli, err := LoadConfig("cli-test", []string{})
	require.NoError(t, err)
	require.Equal(t, "/var/lib/clip-engine", cli.StorageDir)
	require.Equal(t, int64(7200), cli.MaxDuration)
	require.Equal(t, int64(2*1024*1024*1024), cli.MaxFileSize)
	require.Equal(t, 7, cli.RetentionDays)
	require.Equal(t, 24*time.Hour, cli.SweepInterval)
	require.Equal(t, 0.4, cli.TextWeight)
	require.Equal(t, 0.3, cli.AudioWeight)
	require.Equal(t, 0.3, cli.VisualWeight)
	require.Equal(t, 3, cli.MaxConcurrentClips)
	require.Equal(t, []string{"video/mp4", "video/quicktime", "video/webm"}, cli.HTTPContentTypes)
	require.Equal(t, "https://api.openai.com/v1", cli.AIBaseURL.String())
	require.False(t, cli.AIEnabled)
}

func TestLoadConfigFromFlagsAndEnv(t *testing.T) {
	t.Setenv("CLIP_ENGINE_MAX_DURATION", "600")
	cli, err := LoadConfig("cli-test", []string{
		"-storage-dir=/tmp/clips",
		"-http-content-types=video/mp4",
		"-ai-base-url=http://localhost:8080/v1",
	})
	require.NoError(t, err)
	require.Equal(t, "/tmp/clips", cli.StorageDir)
	require.Equal(t, int64(600), cli.MaxDuration)
	require.Equal(t, []string{"video/mp4"}, cli.HTTPContentTypes)
	require.Equal(t, "http://localhost:8080/v1", cli.AIBaseURL.String())
}

func TestLoadConfigRejectsBadWeights(t *testing.T) {
	_, err := LoadConfig("cli-test", []string{"-text-weight=0.9"})
	require.ErrorContains(t, err, "sum to 1")

	_, err = LoadConfig("cli-test", []string{"-text-weight=-0.2", "-audio-weight=0.9", "-visual-weight=0.3"})
	require.ErrorContains(t, err, "non-negative")
}

func TestURLVarFlag(t *testing.T) {
	fs := flag.NewFlagSet("cli-test", flag.ContinueOnError)
	var dest *url.URL
	URLVarFlag(fs, &dest, "url", "http://example.com", "")
	require.NoError(t, fs.Parse([]string{"-url=https://cdn.example.com/v1"}))
	require.Equal(t, "https://cdn.example.com/v1", dest.String())

	fs2 := flag.NewFlagSet("cli-test", flag.ContinueOnError)
	var dest2 *url.URL
	URLVarFlag(fs2, &dest2, "url", "http://example.com", "")
	require.Error(t, fs2.Parse([]string{"-url=http://example.com/?bad=%zz"}))
}

func TestCommaSliceFlag(t *testing.T) {
	fs := flag.NewFlagSet("cli-test", flag.PanicOnError)
	var single, multi, keepDefault, setEmpty []string
	CommaSliceFlag(fs, &single, "single", []string{}, "")
	CommaSliceFlag(fs, &multi, "multi", []string{}, "")
	CommaSliceFlag(fs, &keepDefault, "default", []string{"one", "two", "three"}, "")
	CommaSliceFlag(fs, &setEmpty, "empty", []string{"foo"}, "")
	err := fs.Parse([]string{
		"-single=one",
		"-multi=one,two,three",
		"-empty=",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"one"}, single)
	require.Equal(t, []string{"one", "two", "three"}, multi)
	require.Equal(t, []string{"one", "two", "three"}, keepDefault)
	require.Equal(t, []string{}, setEmpty)
}

// Package transcribe wraps the whisper.cpp CLI to produce time-stamped
// transcripts from speech audio.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/subprocess"
)

// Segment is one time-stamped fragment of recognized speech.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a full transcript. Text is the concatenation of the segment
// texts and Duration is at least the end of the last segment.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, jobID, wavPath string, duration float64) (*Result, error)
}

// Whisper shells out to whisper-cli with a GGML model. The input must be a
// 16 kHz mono 16-bit PCM WAV or the binary rejects it.
type Whisper struct {
	Bin   string
	Model string
}

func NewWhisper(bin, model string) *Whisper {
	return &Whisper{Bin: bin, Model: model}
}

func (w *Whisper) Transcribe(ctx context.Context, jobID, wavPath string, duration float64) (*Result, error) {
	// the binary changes its working directory, relative paths break
	absPath, err := filepath.Abs(wavPath)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeTranscriptionFailed, "error resolving audio path", err)
	}
	modelPath, err := filepath.Abs(w.Model)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeTranscriptionFailed, "error resolving model path", err)
	}
	outPrefix := strings.TrimSuffix(absPath, filepath.Ext(absPath))
	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)

	args := []string{
		"-m", modelPath,
		"-f", absPath,
		"-l", "auto",
		"-oj",
		"-of", outPrefix,
		"-np",
	}

	start := time.Now()
	log.Log(jobID, "starting transcription", "bin", w.Bin, "model", modelPath, "file", absPath)

	cmd := exec.CommandContext(ctx, w.Bin, args...)
	stdErr := subprocess.NewTail(20)
	subprocess.LogOutputs(jobID, cmd, stdErr)
	if err := cmd.Run(); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeTranscriptionFailed,
			fmt.Sprintf("transcriber failed [%s]", stdErr.String()), err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeTranscriptionFailed, "error reading transcriber output", err)
	}
	result, err := parseWhisperOutput(data, duration)
	if err != nil {
		return nil, err
	}

	log.Log(jobID, "transcription complete", "segments", len(result.Segments),
		"language", result.Language, "took", time.Since(start))
	return result, nil
}

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperOutput converts the whisper-cli JSON sidecar into a Result.
// Offsets are emitted in milliseconds. Zero-length and out-of-order entries
// are dropped so segments are strictly ordered with end > start.
func parseWhisperOutput(data []byte, duration float64) (*Result, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeTranscriptionFailed, "error parsing transcriber output", err)
	}

	result := &Result{
		Language: out.Result.Language,
		Duration: duration,
		Segments: []Segment{},
	}
	var text strings.Builder
	lastStart := -1.0
	for _, seg := range out.Transcription {
		segStart := float64(seg.Offsets.From) / 1000
		segEnd := float64(seg.Offsets.To) / 1000
		if segEnd <= segStart || segStart < lastStart {
			continue
		}
		lastStart = segStart
		result.Segments = append(result.Segments, Segment{
			ID:    len(result.Segments),
			Start: segStart,
			End:   segEnd,
			Text:  seg.Text,
		})
		text.WriteString(seg.Text)
		if segEnd > result.Duration {
			result.Duration = segEnd
		}
	}
	result.Text = text.String()
	return result, nil
}

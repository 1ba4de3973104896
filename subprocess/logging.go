// Package subprocess handles output capture for the child processes the
// engine spawns (extractor, transcriber, ffmpeg).
package subprocess

import (
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	"github.com/reelforge/clip-engine/log"
)

// verbosity level at which child process output is copied into the job log
const childOutputVerbosity = 6

// lineLogger retains everything in tail and copies complete lines into the
// job log when verbose child logging is enabled. Carriage returns count as
// line breaks, extractors rewrite progress lines with bare CRs.
type lineLogger struct {
	jobID string
	bin   string
	tail  *Tail

	mu   sync.Mutex
	line []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	if l.tail != nil {
		_, _ = l.tail.Write(p)
	}
	if !glog.V(childOutputVerbosity) {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range p {
		if b == '\n' || b == '\r' {
			if len(l.line) > 0 {
				log.Log(l.jobID, "child output", "bin", l.bin, "line", log.RedactURL(string(l.line)))
				l.line = l.line[:0]
			}
			continue
		}
		l.line = append(l.line, b)
	}
	return len(p), nil
}

// LogOutputs wires cmd's stdout and stderr to one writer that keeps the
// last lines in tail for error reporting and streams lines into the job
// log. Assigning the same writer to both lets os/exec serialize the two
// streams. Must be called before cmd starts.
func LogOutputs(jobID string, cmd *exec.Cmd, tail *Tail) {
	w := &lineLogger{jobID: jobID, bin: filepath.Base(cmd.Path), tail: tail}
	cmd.Stdout = w
	cmd.Stderr = w
}

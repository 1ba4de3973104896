package subprocess

import (
	"strings"
	"sync"
)

// Tail is an io.Writer retaining the last maxLines complete lines written to
// it. Child process stderr is piped through it so failures can carry the tail
// of the output without holding the whole stream in memory. Carriage returns
// count as line breaks because extractor progress output uses them.
type Tail struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial strings.Builder
}

func NewTail(maxLines int) *Tail {
	return &Tail{max: maxLines}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range p {
		if b == '\n' || b == '\r' {
			if t.partial.Len() > 0 {
				t.push(t.partial.String())
				t.partial.Reset()
			}
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *Tail) push(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[1:]
	}
}

// String returns the retained lines joined by newlines, including any
// unterminated final line.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.lines)+1)
	out = append(out, t.lines...)
	if t.partial.Len() > 0 {
		out = append(out, t.partial.String())
	}
	return strings.Join(out, "\n")
}

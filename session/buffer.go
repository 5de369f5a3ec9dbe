package session

import (
	"strings"
	"sync"
	"time"
)

// Segment is one finalized piece of transcript. Segments are never edited;
// the only way to remove one is Buffer.Clear.
type Segment struct {
	ID         string
	Text       string
	CapturedAt time.Time
	IsFinal    bool
}

// Buffer holds the finalized segments in arrival order plus the interim text
// for speech that is still being recognized.
type Buffer struct {
	mu       sync.Mutex
	segments []Segment
	interim  string
}

func (b *Buffer) Append(s Segment) {
	b.mu.Lock()
	b.segments = append(b.segments, s)
	b.mu.Unlock()
}

func (b *Buffer) SetInterim(text string) {
	b.mu.Lock()
	b.interim = text
	b.mu.Unlock()
}

// Clear drops all segments and the interim text together.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.segments = nil
	b.interim = ""
	b.mu.Unlock()
}

// Segments returns a copy of the finalized segments.
func (b *Buffer) Segments() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Segment(nil), b.segments...)
}

func (b *Buffer) Interim() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interim
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// Text joins every segment with newlines, for copying the whole transcript.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := make([]string, len(b.segments))
	for i, s := range b.segments {
		lines[i] = s.Text
	}
	return strings.Join(lines, "\n")
}

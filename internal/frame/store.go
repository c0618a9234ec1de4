// Package frame implements the FrameStore: the latest JPEG, timestamp,
// and quality tier per session code. Grounded on the original Python
// MemoryFrameStore (server/app/store.py in original_source/), which
// keeps three parallel dicts under a single lock — reproduced here as
// one struct per code instead, replacing the possibility of the three
// maps drifting out of sync.
package frame

import (
	"bytes"
	"sync"
	"time"

	"github.com/clashrelay/streamcore/internal/apperr"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality maps an X-Quality-Level header value to a known tier,
// defaulting to medium for absent or unrecognized values.
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return Quality(s)
	default:
		return QualityMedium
	}
}

var jpegSOI = []byte{0xFF, 0xD8}

// ValidJPEG reports whether b begins with the JPEG SOI marker.
func ValidJPEG(b []byte) bool {
	return len(b) >= 2 && bytes.Equal(b[:2], jpegSOI)
}

type entry struct {
	jpeg    []byte
	savedAt time.Time
	quality Quality
}

// Entry is a read-only copy of a FrameStore entry returned to callers.
type Entry struct {
	JPEG    []byte
	SavedAt time.Time
	Quality Quality
}

// Store is a keyed map from session code to the latest uploaded frame.
// One entry per code by construction — a Save always replaces, never
// appends — which bounds memory use without an explicit size limit.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Save atomically replaces the entry for code. Rejects payloads that
// do not begin with the JPEG SOI marker.
func (s *Store) Save(code string, jpeg []byte, quality Quality) error {
	if !ValidJPEG(jpeg) {
		return apperr.ErrInvalidPayload
	}
	e := &entry{jpeg: jpeg, savedAt: time.Now(), quality: quality}
	s.mu.Lock()
	s.entries[code] = e
	s.mu.Unlock()
	return nil
}

// GetLatest returns the current entry for code, if any.
func (s *Store) GetLatest(code string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[code]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return Entry{JPEG: e.jpeg, SavedAt: e.savedAt, Quality: e.quality}, true
}

// Age returns how long it has been since the last write for code.
func (s *Store) Age(code string) (time.Duration, bool) {
	s.mu.RLock()
	e, ok := s.entries[code]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return time.Since(e.savedAt), true
}

// Delete removes the entry for code, used on session teardown.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	delete(s.entries, code)
	s.mu.Unlock()
}

// Codes returns every code with a current entry.
func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for c := range s.entries {
		out = append(out, c)
	}
	return out
}

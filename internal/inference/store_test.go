package inference

import (
	"testing"
	"time"

	"github.com/clashrelay/streamcore/internal/detect"
)

func TestStoreSaveRejectsOlderTimestamp(t *testing.T) {
	s := NewStore(time.Minute)
	newer := Result{Timestamp: time.Now()}
	older := Result{Timestamp: newer.Timestamp.Add(-time.Second)}

	if !s.Save("1234", newer) {
		t.Fatal("first save should always succeed")
	}
	if s.Save("1234", older) {
		t.Error("save with an older timestamp must be rejected")
	}

	got, ok := s.Get("1234")
	if !ok || !got.Timestamp.Equal(newer.Timestamp) {
		t.Error("stale save must not clobber the newer result")
	}
}

func TestStoreGetExpiresAfterTTL(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	s.Save("1234", Result{Timestamp: time.Now()})

	if _, ok := s.Get("1234"); !ok {
		t.Fatal("fresh entry should be present")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := s.Get("1234"); ok {
		t.Error("entry should expire after the TTL")
	}
}

func TestStoreListActiveExcludesExpired(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	s.Save("fresh", Result{Timestamp: time.Now()})
	s.Save("stale", Result{Timestamp: time.Now().Add(-time.Hour)})

	active := s.ListActive()
	if len(active) != 1 || active[0] != "fresh" {
		t.Errorf("expected only [fresh], got %v", active)
	}
}

func TestStoreSweepExpiredRemovesOldEntries(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	s.Save("1234", Result{Timestamp: time.Now().Add(-time.Hour)})

	removed := s.SweepExpired()
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if _, ok := s.Get("1234"); ok {
		t.Error("swept entry should be gone")
	}
}

func TestEncodeAnnotatedSetsBase64Field(t *testing.T) {
	var r Result
	r.EncodeAnnotated([]byte{0xFF, 0xD8})
	if r.AnnotatedFrameB64 == "" {
		t.Error("EncodeAnnotated should populate AnnotatedFrameB64")
	}
}

func TestResultEmbedsDetectResult(t *testing.T) {
	r := Result{Result: detect.Result{Detections: []detect.Detection{{Class: "tower"}}}}
	if len(r.Detections) != 1 || r.Detections[0].Class != "tower" {
		t.Error("Result should expose the embedded detect.Result's fields directly")
	}
}

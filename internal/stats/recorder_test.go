package stats

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderWritesEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	r, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	r.SessionCreated("1234")
	r.InferenceOK("1234", 42)
	r.InferenceError("1234", errors.New("detector offline"))
	r.SessionEvicted("1234", "idle_timeout")

	// record() is fire-and-forget over a buffered channel; give the
	// writer goroutine a moment to drain before reading back.
	time.Sleep(50 * time.Millisecond)

	var count int64
	if err := r.db.Model(&Event{}).Where("code = ?", "1234").Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 recorded events, got %d", count)
	}
}

func TestRecorderCloseDrainsPendingEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	r, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 10; i++ {
		r.SessionCreated("1234")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Close only returns after the writer goroutine has drained events,
	// so every row must already be committed by the time we reopen.
	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	var count int64
	if err := reopened.db.Model(&Event{}).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 10 {
		t.Errorf("Close should drain every buffered event before returning, got %d", count)
	}
}

func TestDurationDetailFormatsMilliseconds(t *testing.T) {
	if got := durationDetail(1500); got != "1.5s" {
		t.Errorf("durationDetail(1500) = %q, want %q", got, "1.5s")
	}
}

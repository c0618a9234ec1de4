// Package stats implements a write-only audit trail of session and
// inference lifecycle events, backed by gorm with the pure-Go
// glebarez/go-sqlite driver. It records past events only — it never
// reintroduces persisted session/frame state; see DESIGN.md for why an
// audit log of past events is a different thing from persisting
// current relay state.
package stats

import (
	"log"
	"time"

	"github.com/glebarez/go-sqlite"
	"gorm.io/gorm"
)

// Event is one row of the audit trail.
type Event struct {
	ID        uint `gorm:"primaryKey"`
	Code      string
	Kind      string // session_created, session_evicted, inference_ok, inference_error
	Detail    string
	CreatedAt time.Time
}

// Recorder appends Events on a background channel so callers on the
// hot upload/inference path never block on a disk write.
type Recorder struct {
	db     *gorm.DB
	events chan Event
	done   chan struct{}
}

// Open migrates the schema at dbPath and starts the writer goroutine.
func Open(dbPath string) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, err
	}
	r := &Recorder{db: db, events: make(chan Event, 256), done: make(chan struct{})}
	go r.run()
	return r, nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.events {
		e.CreatedAt = time.Now()
		if err := r.db.Create(&e).Error; err != nil {
			log.Printf("stats: write event kind=%s code=%s: %v", e.Kind, e.Code, err)
		}
	}
}

func (r *Recorder) record(code, kind, detail string) {
	select {
	case r.events <- Event{Code: code, Kind: kind, Detail: detail}:
	default:
		log.Printf("stats: event buffer full, dropping kind=%s code=%s", kind, code)
	}
}

func (r *Recorder) SessionCreated(code string)              { r.record(code, "session_created", "") }
func (r *Recorder) SessionEvicted(code, reason string)       { r.record(code, "session_evicted", reason) }
func (r *Recorder) InferenceOK(code string, ms int64)        { r.record(code, "inference_ok", durationDetail(ms)) }
func (r *Recorder) InferenceError(code string, err error)    { r.record(code, "inference_error", err.Error()) }

func durationDetail(ms int64) string {
	return time.Duration(ms * int64(time.Millisecond)).String()
}

// Close stops accepting new events and flushes pending writes.
func (r *Recorder) Close() error {
	close(r.events)
	<-r.done
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

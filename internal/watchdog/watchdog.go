// Package watchdog implements the periodic sweep that evicts idle
// sessions and closes their peers, drives the inference dispatcher's
// tick, and prunes expired inference results. Follows a
// background-loop idiom (a single goroutine running on a fixed ticker,
// logging and continuing through individual failures rather than
// dying), generalized from a single-stream loop into a per-code sweep
// over the whole registry.
package watchdog

import (
	"context"
	"log"
	"time"

	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/inference"
	"github.com/clashrelay/streamcore/internal/session"
)

// Recorder is the subset of *stats.Recorder the watchdog needs to
// audit evictions, kept narrow the same way httpapi.Dispatcher is.
type Recorder interface {
	SessionEvicted(code, reason string)
}

// Watchdog periodically evicts idle sessions and drives inference dispatch.
type Watchdog struct {
	registry     *session.Registry
	frames       *frame.Store
	dispatcher   *inference.Dispatcher
	recorder     Recorder
	interval     time.Duration
	sessionIdle  time.Duration
	frameTimeout time.Duration
}

func New(registry *session.Registry, frames *frame.Store, dispatcher *inference.Dispatcher, recorder Recorder, interval, sessionIdle, frameTimeout time.Duration) *Watchdog {
	return &Watchdog{
		registry:     registry,
		frames:       frames,
		dispatcher:   dispatcher,
		recorder:     recorder,
		interval:     interval,
		sessionIdle:  sessionIdle,
		frameTimeout: frameTimeout,
	}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watchdog) tick() {
	for _, code := range w.registry.Sweep(w.sessionIdle) {
		log.Printf("watchdog: evicting idle session code=%s", code)
		w.registry.CloseAll(code)
		w.frames.Delete(string(code))
		w.dispatcher.Forget(string(code))
		if w.recorder != nil {
			w.recorder.SessionEvicted(string(code), "idle_timeout")
		}
	}

	for _, code := range w.staleFrameCodes() {
		log.Printf("watchdog: evicting stale frame code=%s", code)
		w.registry.CloseAll(session.Code(code))
		w.frames.Delete(code)
		w.dispatcher.Forget(code)
		if w.recorder != nil {
			w.recorder.SessionEvicted(code, "stale_frame")
		}
	}

	w.dispatcher.Tick()
}

// staleFrameCodes returns codes whose latest frame is older than
// FrameTimeout — a narrower rule than the whole-session idle timeout: a
// broadcaster can stop sending frames while a viewer is still connected.
func (w *Watchdog) staleFrameCodes() []string {
	var stale []string
	for _, code := range w.frames.Codes() {
		age, ok := w.frames.Age(code)
		if ok && age > w.frameTimeout {
			stale = append(stale, code)
		}
	}
	return stale
}

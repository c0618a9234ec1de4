package inference

import (
	"log"
	"sync"
	"time"

	"github.com/clashrelay/streamcore/internal/detect"
	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/shardlock"
)

// Dispatcher runs Detector/TimerReader analysis over the latest frame
// for each code on a fixed interval, never letting a slow inference
// block the next upload. Reworked from a single-stream background
// worker loop into a per-code, try-acquire dispatch so one code's slow
// model run cannot starve another code's uploads or its own next
// inference tick.
type Dispatcher struct {
	frames   *frame.Store
	results  *Store
	detector detect.Detector
	timer    detect.TimerReader
	locks    *shardlock.Map[string]
	interval time.Duration

	lastRunMu sync.Mutex
	lastRun   map[string]time.Time

	// OnComplete, if set, is called after every run with the elapsed
	// time and any Detect error (Annotate and ReadTimer failures are only
	// logged and reported as nil), letting the caller (e.g. the
	// stats recorder) observe inference outcomes without this package
	// depending on a storage layer.
	OnComplete func(code string, elapsed time.Duration, err error)
}

func NewDispatcher(frames *frame.Store, results *Store, detector detect.Detector, timer detect.TimerReader, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		frames:   frames,
		results:  results,
		detector: detector,
		timer:    timer,
		locks:    shardlock.New[string](),
		interval: interval,
		lastRun:  make(map[string]time.Time),
	}
}

// Tick is called by the watchdog loop as a backstop sweep over every
// code with a stored frame, catching any code an upload-triggered run
// missed (e.g. a slow trailing request). It also prunes expired entries
// from the result store.
func (d *Dispatcher) Tick() {
	for _, code := range d.frames.Codes() {
		d.maybeRun(code)
	}
	d.results.SweepExpired()
}

// TriggerAsync is called from the upload handler after a frame is
// saved. It returns immediately; the actual detection (if not already
// in flight and the interval has elapsed) runs on its own goroutine, so
// uploads never wait on inference.
func (d *Dispatcher) TriggerAsync(code string) {
	go d.maybeRun(code)
}

func (d *Dispatcher) maybeRun(code string) {
	release, ok := d.locks.TryLock(code)
	if !ok {
		// Prior inference for this code is still in flight; skip this
		// tick rather than queue up behind it.
		return
	}
	defer release()

	d.lastRunMu.Lock()
	last, seen := d.lastRun[code]
	throttled := seen && time.Since(last) < d.interval
	if !throttled {
		d.lastRun[code] = time.Now()
	}
	d.lastRunMu.Unlock()
	if throttled {
		return
	}

	entry, ok := d.frames.GetLatest(code)
	if !ok {
		return
	}
	d.run(code, entry.JPEG)
}

func (d *Dispatcher) run(code string, jpeg []byte) {
	start := time.Now()
	result, err := d.detector.Detect(jpeg)
	if err != nil {
		log.Printf("inference: code=%s detect failed: %v", code, err)
		if d.OnComplete != nil {
			d.OnComplete(code, time.Since(start), err)
		}
		return
	}

	annotated, err := d.detector.Annotate(jpeg, result.Detections)
	if err != nil {
		log.Printf("inference: code=%s annotate failed: %v", code, err)
		annotated = jpeg
	}

	reading, err := d.timer.ReadTimer(jpeg)
	var timerPtr *detect.TimerReading
	if err != nil {
		log.Printf("inference: code=%s timer read failed: %v", code, err)
	} else {
		timerPtr = &reading
	}

	out := Result{
		Result:    result,
		Timer:     timerPtr,
		Timestamp: time.Now(),
	}
	out.EncodeAnnotated(annotated)

	d.results.Save(code, out)
	if d.OnComplete != nil {
		d.OnComplete(code, time.Since(start), nil)
	}
}

// Forget drops per-code dispatch bookkeeping, called on session eviction.
func (d *Dispatcher) Forget(code string) {
	d.lastRunMu.Lock()
	delete(d.lastRun, code)
	d.lastRunMu.Unlock()
	d.locks.Forget(code)
	d.results.Delete(code)
}

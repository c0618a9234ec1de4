package detect

// NoopDetector returns zero detections immediately. Used when
// CASCADE_FILE is unset, so the rest of the pipeline (dispatcher,
// store, fanout) runs unchanged whether or not a real model is
// configured — DESIGN NOTES, "Dynamic dispatch on analyzers".
type NoopDetector struct{}

func (NoopDetector) Detect(jpeg []byte) (Result, error) {
	return Result{}, nil
}

func (NoopDetector) Annotate(jpeg []byte, dets []Detection) ([]byte, error) {
	return jpeg, nil
}

// NoopTimerReader always reports an unreadable clock.
type NoopTimerReader struct{}

func (NoopTimerReader) ReadTimer(jpeg []byte) (TimerReading, error) {
	return TimerReading{Seconds: -1, Confidence: 0, RawText: ""}, nil
}

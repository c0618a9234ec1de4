package detect

import "time"

// BBox is an axis-aligned bounding box in source-image pixel coordinates.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Detection is one classified object found in a frame.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Result is the outcome of one detector pass over a JPEG frame.
type Result struct {
	Detections      []Detection `json:"detections"`
	ImageWidth      int         `json:"image_width"`
	ImageHeight     int         `json:"image_height"`
	InferenceTimeMs int64       `json:"inference_time_ms"`
}

// TimerReading is one OCR pass over the in-match countdown HUD region
// — the second analysis pipeline alongside object detection.
type TimerReading struct {
	Seconds    int       `json:"seconds"`
	Confidence float64   `json:"confidence"`
	RawText    string    `json:"raw_text"`
	Timestamp  time.Time `json:"timestamp"`
}

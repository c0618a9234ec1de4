package detect

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// RegionTimerReader crops a fixed HUD rectangle from each frame —
// where an external OCR binary would run — and reports a placeholder
// reading. It exists so the dispatcher has a second, independently-run
// analysis modality even without a real OCR collaborator wired in,
// alongside object detection.
type RegionTimerReader struct {
	// Region is the HUD rectangle to crop, in source-image pixel
	// coordinates. A zero Region falls back to the top-center strip
	// Clash Royale's match timer occupies at 720p capture.
	Region image.Rectangle
}

func NewRegionTimerReader() *RegionTimerReader {
	return &RegionTimerReader{Region: image.Rect(280, 10, 400, 40)}
}

func (t *RegionTimerReader) ReadTimer(jpeg []byte) (TimerReading, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return TimerReading{}, fmt.Errorf("detect: decode jpeg for timer: %w", err)
	}
	defer img.Close()

	region := t.Region
	if region == (image.Rectangle{}) {
		region = image.Rect(280, 10, 400, 40)
	}
	region = region.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if region.Empty() {
		return TimerReading{Seconds: -1, Confidence: 0}, nil
	}
	crop := img.Region(region)
	defer crop.Close()

	// Stand-in signal in lieu of the external OCR binary: a crop whose
	// first-channel mean intensity is above zero (not solid black) gets
	// a fixed 0.5 confidence, otherwise 0.
	mean := crop.Mean()
	confidence := 0.0
	if mean.Val1 > 0 {
		confidence = 0.5
	}

	return TimerReading{
		Seconds:    -1,
		Confidence: confidence,
		RawText:    "",
		Timestamp:  time.Now(),
	}, nil
}

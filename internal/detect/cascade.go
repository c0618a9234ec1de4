package detect

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// CascadeDetector is a gocv Haar-cascade classifier standing in for
// the pluggable production model (classifier.Load + DetectMultiScale,
// with CLAHE preprocessing), reworked from a webcam/ffmpeg loop into a
// request/response Detector.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	clahe      gocv.CLAHE
}

// NewCascadeDetector loads a Haar cascade XML file. Returns an error
// if the file cannot be loaded, so callers can fall back to NoopDetector.
func NewCascadeDetector(cascadeFile string) (*CascadeDetector, error) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(cascadeFile) {
		c.Close()
		return nil, fmt.Errorf("detect: could not load cascade file %q", cascadeFile)
	}
	return &CascadeDetector{
		classifier: c,
		clahe:      gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8)),
	}, nil
}

func (d *CascadeDetector) Close() {
	d.classifier.Close()
	d.clahe.Close()
}

func (d *CascadeDetector) Detect(jpeg []byte) (Result, error) {
	start := time.Now()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return Result{}, fmt.Errorf("detect: decode jpeg: %w", err)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(gray, &gray, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	d.clahe.Apply(gray, &gray)

	rects := d.classifier.DetectMultiScaleWithParams(
		gray, 1.1, 5, 0, image.Pt(30, 30), image.Pt(0, 0),
	)

	dets := make([]Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, Detection{
			Class:      "object",
			Confidence: 1.0,
			BBox:       BBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y},
		})
	}

	return Result{
		Detections:      dets,
		ImageWidth:      img.Cols(),
		ImageHeight:     img.Rows(),
		InferenceTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (d *CascadeDetector) Annotate(jpeg []byte, dets []Detection) ([]byte, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return nil, fmt.Errorf("detect: decode jpeg for annotate: %w", err)
	}
	defer img.Close()

	boxColor := color.RGBA{G: 255, A: 255}
	for _, det := range dets {
		rect := image.Rect(det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2)
		gocv.Rectangle(&img, rect, boxColor, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("detect: encode annotated jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

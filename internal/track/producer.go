package track

import (
	"context"
	"image"
	"log"
	"time"

	"github.com/pion/webrtc/v4"
	"gocv.io/x/gocv"

	"github.com/clashrelay/streamcore/internal/frame"
)

const (
	// nominalFPS is the pacing rate frames are pushed to the encoder at,
	// independent of how often the broadcaster actually uploads —
	// WebRTC players expect a steady clock even when the source stalls.
	nominalFPS = 10

	// resizeHysteresisPx: once a target size is chosen, a new upload
	// must differ by more than this many pixels in either dimension
	// before the producer switches scale again, so minor per-frame
	// jitter in source resolution doesn't thrash the resize filter.
	resizeHysteresisPx = 20

	// maxStaleFrames is how many consecutive pacing ticks may reuse the
	// same source frame before the producer gives up and closes.
	maxStaleFrames = 150 // 15s at nominalFPS
)

// FrameTrackProducer pulls the latest JPEG for one session code,
// decodes and resizes it, and feeds the result into an H.264 encoder
// whose RTP output is written onto a per-viewer WebRTC track. Follows
// a Start/Stop-plus-background-pump-goroutine lifecycle, generalized
// from "relay an incoming track" to "turn still JPEGs into a paced
// video track".
type FrameTrackProducer struct {
	code        string
	frames      *frame.Store
	localTrack  *webrtc.TrackLocalStaticRTP
	maxFrameAge time.Duration

	targetWidthForQuality func(quality string) int
	curQuality            frame.Quality
	targetWidth           int
	resetScale            bool

	enc *gstEncoder

	curW, curH int

	staleCount int
	lastJPEG   []byte

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFrameTrackProducer creates a producer that will write H.264 RTP
// for code's frames into localTrack once Start is called. Quality is
// re-read from the broadcaster's latest frame on every tick via
// targetWidthForQuality rather than fixed at construction, so a
// mid-stream X-Quality-Level change on /upload takes effect within one
// tick.
func NewFrameTrackProducer(code string, frames *frame.Store, localTrack *webrtc.TrackLocalStaticRTP, maxFrameAge time.Duration, targetWidthForQuality func(string) int) *FrameTrackProducer {
	return &FrameTrackProducer{
		code:                  code,
		frames:                frames,
		localTrack:            localTrack,
		maxFrameAge:           maxFrameAge,
		targetWidthForQuality: targetWidthForQuality,
		done:                  make(chan struct{}),
	}
}

// setQuality re-derives targetWidth when the broadcaster's reported
// quality tier changes, and forces the next resize to apply
// immediately rather than waiting for the hysteresis threshold.
func (p *FrameTrackProducer) setQuality(q frame.Quality) {
	if q == p.curQuality {
		return
	}
	p.curQuality = q
	p.targetWidth = p.targetWidthForQuality(string(q))
	p.resetScale = true
}

// Start begins pacing frames onto the track. It sizes the encoder from
// the frame stored for the code at call time (without waiting for one),
// then runs the pump loop in the background.
func (p *FrameTrackProducer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	// Establish dimensions from whatever frame is available now (or a
	// sane default if the broadcaster hasn't uploaded yet); the
	// encoder pipeline needs a fixed width/height at startup, and
	// later resizes are handled by re-scaling every decoded frame to
	// this fixed size rather than restarting the encoder.
	p.curW, p.curH = 426, 240
	p.setQuality(frame.QualityMedium)
	if entry, ok := p.frames.GetLatest(p.code); ok {
		p.setQuality(entry.Quality)
		if img, err := gocv.IMDecode(entry.JPEG, gocv.IMReadColor); err == nil && !img.Empty() {
			w, h := scaledDims(img.Cols(), img.Rows(), p.targetWidth)
			p.curW, p.curH = w, h
			p.resetScale = false
			img.Close()
		}
	}

	enc, err := startGstEncoder(ctx, p.curW, p.curH, nominalFPS)
	if err != nil {
		cancel()
		return err
	}
	p.enc = enc

	go enc.pumpRTP(ctx, p.localTrack)
	go p.pump(ctx)
	return nil
}

// Stop tears down the encoder subprocess and pacing loop.
func (p *FrameTrackProducer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
	if p.enc != nil {
		p.enc.Close()
	}
}

func (p *FrameTrackProducer) pump(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(time.Second / nominalFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.tick() {
				return
			}
		}
	}
}

// tick decodes, resizes, and pushes one frame. A frame is fresh when
// its age since upload is within maxFrameAge; otherwise the last good
// frame is reused and the stale counter advances. Returns false when
// the producer should stop (too many consecutive stale reuses).
func (p *FrameTrackProducer) tick() bool {
	entry, ok := p.frames.GetLatest(p.code)

	fresh := ok && time.Since(entry.SavedAt) <= p.maxFrameAge
	if fresh {
		p.staleCount = 0
		p.lastJPEG = entry.JPEG
		p.setQuality(entry.Quality)
	} else {
		p.staleCount++
		if p.staleCount > maxStaleFrames {
			log.Printf("track: code=%s exceeded stale-frame limit, closing", p.code)
			return false
		}
	}

	raw, err := p.decodeAndResize(p.lastJPEG)
	if err != nil {
		raw = blankFrame(p.curW, p.curH)
	}
	if err := p.enc.writeFrame(raw); err != nil {
		return false
	}
	return true
}

// decodeAndResize decodes jpeg (or returns a blank frame if jpeg is
// empty) and scales it to the producer's fixed encoder dimensions,
// choosing the interpolation method by how stale the source is: a
// freshly uploaded frame gets linear interpolation for quality, while
// a reused stale frame is resized with nearest-neighbor since no new
// detail exists to preserve and it's cheaper per tick.
func (p *FrameTrackProducer) decodeAndResize(jpeg []byte) ([]byte, error) {
	if len(jpeg) == 0 {
		return blankFrame(p.curW, p.curH), nil
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return nil, err
	}
	defer img.Close()

	w, h := scaledDims(img.Cols(), img.Rows(), p.targetWidth)
	if p.resetScale || abs(w-p.curW) > resizeHysteresisPx || abs(h-p.curH) > resizeHysteresisPx {
		p.curW, p.curH = w, h
		p.resetScale = false
	}

	interp := gocv.InterpolationLinear
	if p.staleCount > 0 {
		interp = gocv.InterpolationNearestNeighbor
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(p.curW, p.curH), 0, 0, interp)

	out := make([]byte, resized.Total()*resized.ElemSize())
	copy(out, resized.ToBytes())
	return out, nil
}

func blankFrame(w, h int) []byte {
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	out := make([]byte, mat.Total()*mat.ElemSize())
	copy(out, mat.ToBytes())
	return out
}

func scaledDims(srcW, srcH, targetWidth int) (int, int) {
	if srcW == 0 {
		return targetWidth, targetWidth * 9 / 16
	}
	// even dimensions keep the BGR raw-frame math and x264enc macroblock
	// sizing simple.
	if targetWidth%2 != 0 {
		targetWidth++
	}
	h := srcH * targetWidth / srcW
	if h%2 != 0 {
		h++
	}
	return targetWidth, h
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

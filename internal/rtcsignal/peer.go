package rtcsignal

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/clashrelay/streamcore/internal/track"
)

// viewerPeer satisfies session.Peer, bundling the pion PeerConnection
// with the FrameTrackProducer feeding it so a single Close tears both
// down together, the same way a *webrtc.PeerConnection and its
// associated pipeline state share one shutdown path.
type viewerPeer struct {
	id       string
	pc       *webrtc.PeerConnection
	producer *track.FrameTrackProducer
	cancel   context.CancelFunc

	closeOnce sync.Once
}

func newViewerPeer(id string, pc *webrtc.PeerConnection, producer *track.FrameTrackProducer, cancel context.CancelFunc) *viewerPeer {
	return &viewerPeer{id: id, pc: pc, producer: producer, cancel: cancel}
}

func (v *viewerPeer) ID() string { return v.id }

func (v *viewerPeer) Close() error {
	var err error
	v.closeOnce.Do(func() {
		v.cancel()
		v.producer.Stop()
		err = v.pc.Close()
	})
	return err
}

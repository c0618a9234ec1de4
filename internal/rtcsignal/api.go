// Package rtcsignal wires incoming /offer requests to a per-viewer
// pion PeerConnection carrying a FrameTrackProducer. Builds on a
// MediaEngine-plus-interceptor-setup pattern, reworked from a websocket
// trickle-ICE signaling channel into a single HTTP offer/answer
// exchange with ICE gathering awaited before responding — this
// service's viewers are simple HTTP clients, not browser peers holding
// a signaling socket open.
package rtcsignal

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a pion API restricted to H.264 video, matching the
// codec the FrameTrackProducer's encoder emits, trimmed to video-only
// since viewers never publish audio.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []webrtc.RTCPFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "goog-remb"}},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("rtcsignal: register h264 codec: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("rtcsignal: register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)), nil
}

// ICEServers builds the ICEServer list from configured STUN URLs.
func ICEServers(stunURLs []string) []webrtc.ICEServer {
	if len(stunURLs) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: stunURLs}}
}

package rtcsignal

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/clashrelay/streamcore/internal/apperr"
	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/session"
	"github.com/clashrelay/streamcore/internal/track"
)

// offerRequest is the JSON body of POST /offer: the code identifying
// which session to view plus the flat {sdp, type} offer fields.
type offerRequest struct {
	Code string `json:"code"`
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// Endpoint handles /offer requests by creating a viewer PeerConnection
// carrying a FrameTrackProducer for the requested code. Builds on an
// HTTP offer/answer handler pattern (SetRemoteDescription →
// CreateAnswer → SetLocalDescription → await ICE gathering → respond
// with JSON SDP), combined with a MediaEngine/codec setup.
type Endpoint struct {
	api         *webrtc.API
	iceServers  []webrtc.ICEServer
	registry    *session.Registry
	frames      *frame.Store
	iceTimeout  time.Duration
	maxFrameAge time.Duration
	targetWidth func(quality string) int
	graceWait   time.Duration
	graceTries  int
}

func NewEndpoint(api *webrtc.API, iceServers []webrtc.ICEServer, registry *session.Registry, frames *frame.Store, iceTimeout, maxFrameAge time.Duration, targetWidth func(string) int) *Endpoint {
	return &Endpoint{
		api:         api,
		iceServers:  iceServers,
		registry:    registry,
		frames:      frames,
		iceTimeout:  iceTimeout,
		maxFrameAge: maxFrameAge,
		targetWidth: targetWidth,
		graceWait:   100 * time.Millisecond,
		graceTries:  10,
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid offer body", http.StatusBadRequest)
		return
	}
	code, ok := session.ParseCode(req.Code)
	if !ok {
		http.Error(w, apperr.ErrInvalidPayload.Error(), http.StatusBadRequest)
		return
	}
	if req.SDP == "" || req.Type == "" {
		http.Error(w, "missing field", http.StatusBadRequest)
		return
	}
	offer := webrtc.SessionDescription{SDP: req.SDP, Type: webrtc.NewSDPType(req.Type)}

	if !e.waitForFirstFrame(string(code)) {
		http.Error(w, apperr.ErrNotFound.Error(), http.StatusNotFound)
		return
	}

	sess := e.registry.GetOrCreate(code)

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		log.Printf("rtcsignal: code=%s create peer connection: %v", code, err)
		http.Error(w, "failed to create peer connection", http.StatusInternalServerError)
		return
	}

	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "clashrelay-"+string(code),
	)
	if err != nil {
		pc.Close()
		http.Error(w, "failed to create track", http.StatusInternalServerError)
		return
	}
	if _, err := pc.AddTrack(localTrack); err != nil {
		pc.Close()
		http.Error(w, "failed to add track", http.StatusInternalServerError)
		return
	}

	viewerID := uuid.NewString()
	producer := track.NewFrameTrackProducer(string(code), e.frames, localTrack, e.maxFrameAge, e.targetWidth)
	ctx, cancel := context.WithCancel(context.Background())
	peer := newViewerPeer(viewerID, pc, producer, cancel)

	if err := e.registry.AttachViewer(sess, peer); err != nil {
		pc.Close()
		if apperr.Is(err, apperr.ErrSessionFull) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			log.Printf("rtcsignal: code=%s viewer=%s peer state=%s, detaching", code, viewerID, state)
			e.registry.Detach(sess, peer)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})
	if err := producer.Start(ctx); err != nil {
		cancel()
		pc.Close()
		e.registry.Detach(sess, peer)
		http.Error(w, "failed to start frame producer", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		cancel()
		pc.Close()
		e.registry.Detach(sess, peer)
		http.Error(w, "failed to set remote description", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cancel()
		pc.Close()
		e.registry.Detach(sess, peer)
		http.Error(w, "failed to create answer", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		cancel()
		pc.Close()
		e.registry.Detach(sess, peer)
		http.Error(w, "failed to set local description", http.StatusInternalServerError)
		return
	}

	select {
	case <-gatherComplete:
	case <-time.After(e.iceTimeout):
		log.Printf("rtcsignal: code=%s viewer=%s ICE gathering timed out, answering with partial candidates", code, viewerID)
	}

	sess.MarkWebRTCEstablished()
	sess.IncConnectionAttempts()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pc.LocalDescription()); err != nil {
		log.Printf("rtcsignal: code=%s viewer=%s encode answer: %v", code, viewerID, err)
	}
}

// waitForFirstFrame grace-polls the FrameStore for an initial upload —
// a viewer racing the broadcaster's first frame should not see a hard
// 404 for an already-registered code.
func (e *Endpoint) waitForFirstFrame(code string) bool {
	if _, ok := e.frames.GetLatest(code); ok {
		return true
	}
	for i := 0; i < e.graceTries; i++ {
		time.Sleep(e.graceWait)
		if _, ok := e.frames.GetLatest(code); ok {
			return true
		}
	}
	return false
}

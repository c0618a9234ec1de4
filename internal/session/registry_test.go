package session

import (
	"testing"
	"time"

	"github.com/clashrelay/streamcore/internal/apperr"
)

type fakePeer struct {
	id     string
	closed bool
}

func (p *fakePeer) ID() string { return p.id }
func (p *fakePeer) Close() error {
	p.closed = true
	return nil
}

func TestRegistryGetOrCreateReusesSession(t *testing.T) {
	r := NewRegistry(2)
	code := Code("1234")
	a := r.GetOrCreate(code)
	b := r.GetOrCreate(code)
	if a != b {
		t.Fatal("GetOrCreate returned distinct sessions for the same code")
	}
}

func TestAttachBroadcasterReplacesPriorOne(t *testing.T) {
	r := NewRegistry(2)
	s := r.GetOrCreate(Code("1234"))

	first := &fakePeer{id: "a"}
	second := &fakePeer{id: "b"}

	r.AttachBroadcaster(s, first)
	r.AttachBroadcaster(s, second)

	if !first.closed {
		t.Error("prior broadcaster was not closed on replacement")
	}
	if second.closed {
		t.Error("new broadcaster should not be closed")
	}
	if !s.Snapshot().HasBroadcaster {
		t.Error("session should report a broadcaster attached")
	}
}

func TestAttachViewerRespectsCap(t *testing.T) {
	r := NewRegistry(1)
	s := r.GetOrCreate(Code("1234"))

	if err := r.AttachViewer(s, &fakePeer{id: "v1"}); err != nil {
		t.Fatalf("first viewer rejected: %v", err)
	}
	err := r.AttachViewer(s, &fakePeer{id: "v2"})
	if !apperr.Is(err, apperr.ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}
}

func TestDetachBroadcasterClearsWebRTCEstablished(t *testing.T) {
	r := NewRegistry(2)
	s := r.GetOrCreate(Code("1234"))
	peer := &fakePeer{id: "a"}
	r.AttachBroadcaster(s, peer)
	s.MarkWebRTCEstablished()

	r.Detach(s, peer)

	snap := s.Snapshot()
	if snap.HasBroadcaster {
		t.Error("broadcaster should be detached")
	}
	if snap.WebRTCEstablished {
		t.Error("WebRTCEstablished should reset on broadcaster detach")
	}
}

func TestSweepOnlyRemovesIdleEmptySessions(t *testing.T) {
	r := NewRegistry(2)
	idle := r.GetOrCreate(Code("1111"))
	idle.lastActivity = time.Now().Add(-time.Hour)

	busy := r.GetOrCreate(Code("2222"))
	r.AttachBroadcaster(busy, &fakePeer{id: "a"})
	busy.lastActivity = time.Now().Add(-time.Hour)

	r.GetOrCreate(Code("3333"))

	expired := r.Sweep(time.Minute)
	if len(expired) != 1 || expired[0] != Code("1111") {
		t.Fatalf("expected only code 1111 to expire, got %v", expired)
	}
	if _, ok := r.Get(Code("2222")); !ok {
		t.Error("session with an attached broadcaster must survive Sweep")
	}
	if _, ok := r.Get(Code("3333")); !ok {
		t.Error("recently active session must survive Sweep")
	}
}

func TestCloseAllClosesEveryPeerAndRemovesSession(t *testing.T) {
	r := NewRegistry(2)
	s := r.GetOrCreate(Code("1234"))
	broadcaster := &fakePeer{id: "b"}
	viewer := &fakePeer{id: "v"}
	r.AttachBroadcaster(s, broadcaster)
	if err := r.AttachViewer(s, viewer); err != nil {
		t.Fatal(err)
	}

	r.CloseAll(Code("1234"))

	if !broadcaster.closed || !viewer.closed {
		t.Error("CloseAll must close every attached peer")
	}
	if _, ok := r.Get(Code("1234")); ok {
		t.Error("CloseAll must remove the session from the registry")
	}
}

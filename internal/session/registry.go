package session

import (
	"log"
	"sync"
	"time"

	"github.com/clashrelay/streamcore/internal/apperr"
)

// Registry maintains code -> Session. It is a process-wide singleton
// per DESIGN NOTES ("Global mutable state ... must not rely on lazy
// initialization"); the supervisor constructs it once in cmd/server
// and passes it down explicitly.
type Registry struct {
	mu         sync.Mutex
	sessions   map[Code]*Session
	maxViewers int
}

func NewRegistry(maxViewersPerSession int) *Registry {
	return &Registry{
		sessions:   make(map[Code]*Session),
		maxViewers: maxViewersPerSession,
	}
}

// GetOrCreate returns the session for code, creating it lazily on
// first access. Concurrent callers for the same code observe the same
// *Session instance.
func (r *Registry) GetOrCreate(code Code) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		s = newSession(code, r.maxViewers)
		r.sessions[code] = s
	}
	return s
}

// Get returns the session for code if one exists, without creating it.
func (r *Registry) Get(code Code) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	return s, ok
}

// AttachBroadcaster installs peer as the session's broadcaster. If
// another broadcaster is already attached it is evicted first (last
// writer wins); see DESIGN.md for the broadcaster-replacement policy.
func (r *Registry) AttachBroadcaster(s *Session, peer Peer) {
	s.mu.Lock()
	old := s.broadcaster
	s.broadcaster = peer
	s.lastActivity = time.Now()
	s.connectionAttempts++
	s.mu.Unlock()

	if old != nil && old.ID() != peer.ID() {
		if err := old.Close(); err != nil {
			log.Printf("[session] evict old broadcaster code=%s err=%v", s.code, err)
		}
	}
}

// AttachViewer adds peer as a viewer of s, serialized per-session so
// the MaxViewers cap is never exceeded under concurrent offers.
func (r *Registry) AttachViewer(s *Session, peer Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.viewers) >= s.maxViewers {
		return apperr.ErrSessionFull
	}
	s.viewers[peer.ID()] = peer
	s.lastActivity = time.Now()
	s.connectionAttempts++
	return nil
}

// Detach removes peer (broadcaster or viewer) from s.
func (r *Registry) Detach(s *Session, peer Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broadcaster != nil && s.broadcaster.ID() == peer.ID() {
		s.broadcaster = nil
		s.webrtcEstablished = false
		return
	}
	delete(s.viewers, peer.ID())
}

// CloseAll closes every peer currently attached to s and removes the
// session from the registry. Peer close errors are swallowed — the
// code is removed regardless.
func (r *Registry) CloseAll(code Code) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	if ok {
		delete(r.sessions, code)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, p := range s.allPeers() {
		if err := p.Close(); err != nil {
			log.Printf("[session] close peer=%s code=%s err=%v", p.ID(), code, err)
		}
	}
}

// Sweep removes empty sessions idle longer than timeout. Returns the
// codes removed, for callers that also need to tear down associated
// frame/inference state.
func (r *Registry) Sweep(timeout time.Duration) []Code {
	r.mu.Lock()
	var expired []Code
	for code, s := range r.sessions {
		if s.IsEmpty() && s.IdleFor() > timeout {
			expired = append(expired, code)
			delete(r.sessions, code)
		}
	}
	r.mu.Unlock()
	return expired
}

// Codes returns every currently-registered session code.
func (r *Registry) Codes() []Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Code, 0, len(r.sessions))
	for c := range r.sessions {
		out = append(out, c)
	}
	return out
}

// Snapshots returns a consistent view of every active session, for the
// /metrics endpoint.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

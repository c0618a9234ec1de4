package session

import (
	"sync"
	"time"
)

// Peer is anything the registry can hold a reference to and later
// evict — satisfied by the WebRTC peer connection wrapper in
// internal/rtcsignal. Per DESIGN NOTES, peers refer back to their
// session by Code (an identifier), never by pointer, so eviction is a
// plain map removal plus id invalidation rather than a cycle a garbage
// collector has to reason about.
type Peer interface {
	ID() string
	Close() error
}

// Session is the mutable record for one broadcast code: at most one
// broadcaster, up to MaxViewers viewer peers, and activity counters.
type Session struct {
	mu sync.Mutex

	code        Code
	broadcaster Peer
	viewers     map[string]Peer
	maxViewers  int

	createdAt    time.Time
	lastActivity time.Time

	messageCount        uint64
	connectionAttempts  uint64
	webrtcEstablished   bool
}

func newSession(code Code, maxViewers int) *Session {
	now := time.Now()
	return &Session{
		code:         code,
		viewers:      make(map[string]Peer),
		maxViewers:   maxViewers,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) Code() Code { return s.code }

// TouchActivity updates lastActivity; called on every upload and signaling event.
func (s *Session) TouchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) IncMessageCount() {
	s.mu.Lock()
	s.messageCount++
	s.mu.Unlock()
}

func (s *Session) IncConnectionAttempts() {
	s.mu.Lock()
	s.connectionAttempts++
	s.mu.Unlock()
}

func (s *Session) MarkWebRTCEstablished() {
	s.mu.Lock()
	s.webrtcEstablished = true
	s.mu.Unlock()
}

// Snapshot is a consistent, lock-free view of a Session for stats/health endpoints.
type Snapshot struct {
	Code                Code
	HasBroadcaster      bool
	ViewerCount         int
	MaxViewers          int
	CreatedAt           time.Time
	LastActivity        time.Time
	MessageCount        uint64
	ConnectionAttempts  uint64
	WebRTCEstablished   bool
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Code:               s.code,
		HasBroadcaster:     s.broadcaster != nil,
		ViewerCount:        len(s.viewers),
		MaxViewers:         s.maxViewers,
		CreatedAt:          s.createdAt,
		LastActivity:       s.lastActivity,
		MessageCount:       s.messageCount,
		ConnectionAttempts: s.connectionAttempts,
		WebRTCEstablished:  s.webrtcEstablished,
	}
}

// IsEmpty reports whether the session has neither a broadcaster nor any viewers.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcaster == nil && len(s.viewers) == 0
}

// IdleFor reports how long the session has had no activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// allPeers returns a snapshot slice of every peer attached to the session
// (broadcaster first, then viewers), used by the watchdog to close everything
// atomically with respect to registry mutation.
func (s *Session) allPeers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, 0, len(s.viewers)+1)
	if s.broadcaster != nil {
		out = append(out, s.broadcaster)
	}
	for _, v := range s.viewers {
		out = append(out, v)
	}
	return out
}

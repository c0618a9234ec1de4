// Package ratelimit implements a per-peer sliding-window message quota
// and a per-IP concurrent connection cap. No third-party rate-limiting
// library was available to wire in, so this is a small stdlib
// implementation — see DESIGN.md for the justification.
package ratelimit

import (
	"sync"
	"time"
)

// Window tracks message timestamps per peer ID over a sliding window.
type Window struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	events   map[string][]time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

// Allow records an event for peerID and reports whether it stays
// within the sliding-window quota. Once a peer is rate limited, the
// caller is expected to close it and should call Forget.
func (w *Window) Allow(peerID string) bool {
	now := time.Now()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	events := w.events[peerID]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.events[peerID] = kept

	return len(kept) <= w.limit
}

// Forget drops tracking state for peerID once the peer disconnects.
func (w *Window) Forget(peerID string) {
	w.mu.Lock()
	delete(w.events, peerID)
	w.mu.Unlock()
}

// IPCap enforces a maximum number of concurrent connections per
// remote IP address.
type IPCap struct {
	mu    sync.Mutex
	max   int
	count map[string]int
}

func NewIPCap(max int) *IPCap {
	return &IPCap{max: max, count: make(map[string]int)}
}

// Acquire increments the connection count for ip and reports whether
// it was accepted (false if the cap was already reached, in which
// case the count is left unchanged).
func (c *IPCap) Acquire(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count[ip] >= c.max {
		return false
	}
	c.count[ip]++
	return true
}

// Release decrements the connection count for ip.
func (c *IPCap) Release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count[ip] > 0 {
		c.count[ip]--
		if c.count[ip] == 0 {
			delete(c.count, ip)
		}
	}
}

package ratelimit

import (
	"testing"
	"time"
)

func TestWindowAllowsUpToLimit(t *testing.T) {
	w := NewWindow(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !w.Allow("peer") {
			t.Fatalf("event %d should be within quota", i)
		}
	}
	if w.Allow("peer") {
		t.Error("4th event should exceed the quota")
	}
}

func TestWindowExpiresOldEvents(t *testing.T) {
	w := NewWindow(1, 10*time.Millisecond)
	if !w.Allow("peer") {
		t.Fatal("first event should be allowed")
	}
	time.Sleep(20 * time.Millisecond)
	if !w.Allow("peer") {
		t.Error("event after window expiry should be allowed again")
	}
}

func TestWindowForgetResetsPeer(t *testing.T) {
	w := NewWindow(1, time.Minute)
	w.Allow("peer")
	w.Forget("peer")
	if !w.Allow("peer") {
		t.Error("Forget should reset the peer's quota")
	}
}

func TestWindowIsolatesPeers(t *testing.T) {
	w := NewWindow(1, time.Minute)
	if !w.Allow("a") {
		t.Fatal("peer a should be allowed")
	}
	if !w.Allow("b") {
		t.Error("peer b should not be affected by peer a's quota")
	}
}

func TestIPCapAcquireRelease(t *testing.T) {
	c := NewIPCap(2)
	if !c.Acquire("1.2.3.4") {
		t.Fatal("first acquire should succeed")
	}
	if !c.Acquire("1.2.3.4") {
		t.Fatal("second acquire should succeed")
	}
	if c.Acquire("1.2.3.4") {
		t.Error("third acquire should be rejected at the cap")
	}
	c.Release("1.2.3.4")
	if !c.Acquire("1.2.3.4") {
		t.Error("acquire should succeed again after a release")
	}
}

func TestIPCapReleaseBelowZeroIsNoop(t *testing.T) {
	c := NewIPCap(1)
	c.Release("1.2.3.4")
	if !c.Acquire("1.2.3.4") {
		t.Error("releasing an untracked IP must not corrupt future acquires")
	}
}

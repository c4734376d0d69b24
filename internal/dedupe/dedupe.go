// ABOUTME: TTL-based deduplication of gateway webhook events
// ABOUTME: The gateway redelivers on slow acknowledgment; seen event ids are dropped

// Package dedupe tracks recently seen gateway event identifiers so redelivered
// webhook events are processed exactly once within the window.
package dedupe

import (
	"sync"
	"time"
)

// Tracker remembers event ids for a bounded window. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	window  time.Duration
	maxSize int
}

// NewTracker creates a tracker that remembers ids for the given window,
// holding at most maxSize entries. When full, a sweep drops expired entries;
// if still full the incoming id is admitted anyway (false negatives are
// preferable to unbounded growth; a duplicate slipping through is handled
// downstream by the store's uniqueness checks).
func NewTracker(window time.Duration, maxSize int) *Tracker {
	return &Tracker{
		seen:    make(map[string]time.Time),
		window:  window,
		maxSize: maxSize,
	}
}

// Check reports whether an event id was seen within the window. It does not
// mark the id; callers mark after processing succeeds so a failed event is
// picked up again on redelivery.
func (t *Tracker) Check(eventID string) (duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.seen[eventID]
	return ok && time.Since(at) < t.window
}

// Mark records an event id as seen.
func (t *Tracker) Mark(eventID string) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.seen) >= t.maxSize {
		t.sweepLocked(now)
	}
	t.seen[eventID] = now
}

// Len returns the number of tracked ids, expired entries included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// sweepLocked drops expired entries. Must be called with mu held.
func (t *Tracker) sweepLocked(now time.Time) {
	for id, at := range t.seen {
		if now.Sub(at) >= t.window {
			delete(t.seen, id)
		}
	}
}

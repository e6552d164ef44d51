package domain

import (
	"time"
)

const (
	// CounterWindow is the rolling window over which per-origin request
	// counts accumulate before resetting.
	CounterWindow = 10 * time.Second

	// CounterIdleTTL is how long an inactive counter survives before it is
	// garbage-collected, bounding memory growth from one-shot origins.
	CounterIdleTTL = time.Hour

	// SignatureWindow bounds how long a request signature is retained for
	// rapid-repeat comparison.
	SignatureWindow = 60 * time.Second

	// SignatureCacheSize bounds the recent-signature map. Best-effort state;
	// oldest entries are dropped beyond this.
	SignatureCacheSize = 10000
)

// WindowCounter tracks one origin's request volume and violation history.
// Count resets on every window rollover; Violations is the escalation
// counter and only ever grows until the record is garbage-collected.
type WindowCounter struct {
	Origin          string
	Count           int
	WindowStart     time.Time
	Violations      int
	LastFingerprint uint64
}

// Idle reports whether the counter has seen no window activity for longer
// than CounterIdleTTL and can be collected.
func (c *WindowCounter) Idle(now time.Time) bool {
	return now.Sub(c.WindowStart) > CounterIdleTTL
}

// Roll resets the count window if it has elapsed, preserving Violations and
// LastFingerprint. Returns true if a rollover happened.
func (c *WindowCounter) Roll(now time.Time) bool {
	if now.Sub(c.WindowStart) < CounterWindow {
		return false
	}
	c.Count = 0
	c.WindowStart = now
	return true
}

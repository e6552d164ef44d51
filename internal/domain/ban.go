package domain

import (
	"time"
)

// BanRecord is a live time-bounded denial of service to one origin.
// At most one record exists per origin; a repeated ban overwrites the
// previous expiry rather than stacking.
type BanRecord struct {
	Origin    string    `json:"ip"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reason    string    `json:"reason"`
}

// Expired reports whether the record is logically absent at now.
func (b BanRecord) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// Remaining returns the time left on the ban, zero if expired.
func (b BanRecord) Remaining(now time.Time) time.Duration {
	if b.Expired(now) {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}

// BanOrder instructs the pipeline driver to record a ban alongside a
// rejection.
type BanOrder struct {
	Duration time.Duration
	Reason   string
}

// Verdict is the outcome of a single detector: either pass, or reject with
// a fixed HTTP status and optionally a ban order. Verdicts are values, never
// errors; the first rejecting detector wins and its status is returned to
// the caller unchanged.
type Verdict struct {
	Allowed  bool
	Status   int
	Error    string
	Detector string
	Ban      *BanOrder

	// RetryAfter is the remaining ban time to advertise to the client,
	// zero when the rejection carries no ban.
	RetryAfter time.Duration
}

// Pass returns the allowing verdict.
func Pass() Verdict {
	return Verdict{Allowed: true}
}

// Reject returns a rejecting verdict without a ban.
func Reject(status int, msg string) Verdict {
	return Verdict{Status: status, Error: msg}
}

// RejectAndBan returns a rejecting verdict that also bans the origin.
func RejectAndBan(status int, msg string, d time.Duration, reason string) Verdict {
	return Verdict{Status: status, Error: msg, Ban: &BanOrder{Duration: d, Reason: reason}}
}

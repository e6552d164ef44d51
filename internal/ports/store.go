// Package ports defines the interfaces between the defense core and its
// adapters (storage backends, detectors, outbound notification), following
// hexagonal architecture (ports and adapters pattern).
//
// Design Principles:
//   - Interfaces are small and focused
//   - Dependencies flow inward (core domain has no external dependencies)
//   - Implementations provided by adapters in internal/adapters/
package ports

import (
	"context"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain"
)

// ReputationStore owns all per-origin defense state: ban records, request
// window counters and recent request signatures. Detectors never keep
// long-lived state of their own; everything goes through the store, which
// is what makes the pipeline portable to a multi-instance deployment
// backed by a shared Redis.
//
// Thread Safety: all methods MUST be safe for concurrent calls. Counter
// read-modify-write is "atomic enough": a race that undercounts one
// request is tolerable, a race that loses a ban is not.
type ReputationStore interface {
	// Ban sets or extends the ban record for an origin. A second ban before
	// expiry overwrites the previous expiry (last writer wins), it never
	// stacks.
	Ban(ctx context.Context, origin string, d time.Duration, reason string) error

	// IsBanned reports whether a live ban record exists for the origin.
	IsBanned(ctx context.Context, origin string) (bool, error)

	// RemainingBan returns the time left on a live ban, zero if not banned.
	RemainingBan(ctx context.Context, origin string) (time.Duration, error)

	// Unban removes the ban record, reporting whether one existed.
	Unban(ctx context.Context, origin string) (bool, error)

	// ListBans returns all currently-live ban records.
	ListBans(ctx context.Context) ([]domain.BanRecord, error)

	// TouchCounter loads the origin's window counter (creating it lazily),
	// rolls the window if elapsed, applies mutate, and persists the result.
	// The returned counter is the post-mutation state.
	TouchCounter(ctx context.Context, origin string, mutate func(*domain.WindowCounter)) (domain.WindowCounter, error)

	// RecordSignature upserts a request signature and returns how long ago
	// the identical signature was last seen. seen is false on first sight
	// or after the retention window.
	RecordSignature(ctx context.Context, sig string) (sinceLast time.Duration, seen bool, err error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Sweepable is implemented by stores that need periodic expiry work. Redis
// expires keys natively; the in-memory store relies on the sweeper calling
// this every few minutes.
type Sweepable interface {
	// Sweep evicts expired ban records and idle counters, returning how
	// many entries were removed.
	Sweep(now time.Time) int
}

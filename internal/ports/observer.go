package ports

import "time"

// PipelineObserver receives the outcome of every inspected request. Used by
// the Prometheus adapter; the pipeline treats it as fire-and-forget.
//
// Thread Safety: Implementations MUST be safe for concurrent calls.
type PipelineObserver interface {
	// RequestInspected records one completed inspection and its latency.
	RequestInspected(elapsed time.Duration)

	// RequestRejected records a rejection attributed to one detector.
	RequestRejected(detector string)

	// BanIssued records a new ban attributed to one reason.
	BanIssued(reason string)

	// ActiveBans sets the current number of live ban records. Called
	// periodically by the sweeper, not per request.
	ActiveBans(count int64)
}

package ports

import (
	"context"

	"github.com/gatewarden/gatewarden/internal/domain"
)

// Detector is a single classification rule evaluated against a request.
//
// Implementations:
//   - MethodValidator, TraversalDetector, HeaderInjectionDetector
//   - FloodDetector, RapidRepeatDetector, FingerprintDetector
//   - PayloadShapeDetector, SuspiciousContentDetector
//
// Detectors run in a fixed total order configured by the pipeline; the
// first one to reject wins and its status is returned unchanged. A
// rejecting verdict may carry a ban order which the pipeline enforces
// through the store.
//
// Contract:
//   - MUST be thread-safe; the HTTP layer calls Inspect from many
//     goroutines at once
//   - MUST NOT modify the request
//   - All per-origin state lives in the ReputationStore, never in the
//     detector itself
type Detector interface {
	Inspect(ctx context.Context, req *domain.RequestInfo, store ReputationStore) domain.Verdict

	// Name returns the detector's identifier for logging and metrics.
	// Format: lowercase with underscores (e.g. "flood", "payload_shape").
	Name() string
}

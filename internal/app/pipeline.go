// Package app wires the defense core together: the inspection pipeline that
// drives the detector chain, the background sweeper, and configuration
// hot-reload. It depends only on domain types and ports; concrete adapters
// are injected at startup.
package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// Pipeline inspects every incoming request and produces a single verdict.
//
// Order of evaluation is fixed:
//  1. honeypot decoys, so scanners are caught no matter what state the
//     origin is in
//  2. the ban gate, rejecting origins with a live ban record
//  3. the detector chain, first rejection wins
//
// A verdict with a ban order is enforced here: the pipeline writes the ban,
// bumps metrics and notifies, so detectors stay side-effect free on the
// ban path.
type Pipeline struct {
	store    ports.ReputationStore
	honeypot ports.Detector

	// swapped atomically on config hot-reload
	detectors atomic.Pointer[[]ports.Detector]

	metrics  *domain.DefenseMetrics
	observer ports.PipelineObserver
	notifier ports.Notifier
}

// PipelineOptions collects the pipeline's collaborators. Store, Honeypot and
// Detectors are required; Metrics, Observer and Notifier may be nil.
type PipelineOptions struct {
	Store     ports.ReputationStore
	Honeypot  ports.Detector
	Detectors []ports.Detector
	Metrics   *domain.DefenseMetrics
	Observer  ports.PipelineObserver
	Notifier  ports.Notifier
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		store:    opts.Store,
		honeypot: opts.Honeypot,
		metrics:  opts.Metrics,
		observer: opts.Observer,
		notifier: opts.Notifier,
	}
	p.SetDetectors(opts.Detectors)
	return p
}

// SetDetectors replaces the detector chain. Safe to call while requests are
// in flight; inspections started before the swap finish on the old chain.
func (p *Pipeline) SetDetectors(detectors []ports.Detector) {
	p.detectors.Store(&detectors)
}

// Detectors returns the current chain.
func (p *Pipeline) Detectors() []ports.Detector {
	ptr := p.detectors.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Inspect runs the request through the pipeline and returns the verdict.
// It never returns an error: storage failures are logged and the request is
// allowed through, so a degraded store slows detection rather than taking
// the whole service down.
func (p *Pipeline) Inspect(ctx context.Context, req *domain.RequestInfo) domain.Verdict {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.IncrementRequests()
	}

	v := p.inspect(ctx, req)

	if p.observer != nil {
		p.observer.RequestInspected(time.Since(start))
	}
	if !v.Allowed {
		p.finalizeRejection(ctx, req, &v)
	}
	return v
}

func (p *Pipeline) inspect(ctx context.Context, req *domain.RequestInfo) domain.Verdict {
	if v := p.honeypot.Inspect(ctx, req, p.store); !v.Allowed {
		v.Detector = p.honeypot.Name()
		return v
	}

	if v, enforced := p.enforceBan(ctx, req); enforced {
		return v
	}

	for _, d := range p.Detectors() {
		if v := d.Inspect(ctx, req, p.store); !v.Allowed {
			v.Detector = d.Name()
			return v
		}
	}
	return domain.Pass()
}

// enforceBan rejects origins with a live ban record. The remaining ban time
// is advertised so clients can back off instead of polling.
func (p *Pipeline) enforceBan(ctx context.Context, req *domain.RequestInfo) (domain.Verdict, bool) {
	banned, err := p.store.IsBanned(ctx, req.Origin)
	if err != nil {
		log.Warn().Err(err).Str("origin", req.Origin).Msg("Ban lookup failed, allowing request")
		return domain.Verdict{}, false
	}
	if !banned {
		return domain.Verdict{}, false
	}

	remaining, err := p.store.RemainingBan(ctx, req.Origin)
	if err != nil {
		log.Warn().Err(err).Str("origin", req.Origin).Msg("Remaining-ban lookup failed")
	}

	v := domain.Reject(http.StatusForbidden, "Forbidden")
	v.Detector = "ban_enforcer"
	v.RetryAfter = remaining
	return v, true
}

func (p *Pipeline) finalizeRejection(ctx context.Context, req *domain.RequestInfo, v *domain.Verdict) {
	if p.metrics != nil {
		p.metrics.IncrementRejected()
	}
	if p.observer != nil {
		p.observer.RequestRejected(v.Detector)
	}
	if v.Ban == nil {
		return
	}

	// the rejection stands even if the ban write fails
	if err := p.store.Ban(ctx, req.Origin, v.Ban.Duration, v.Ban.Reason); err != nil {
		log.Error().Err(err).
			Str("origin", req.Origin).
			Str("reason", v.Ban.Reason).
			Msg("Failed to persist ban")
	} else {
		if p.metrics != nil {
			p.metrics.IncrementBans()
		}
		if p.observer != nil {
			p.observer.BanIssued(v.Ban.Reason)
		}
		log.Warn().
			Str("origin", req.Origin).
			Str("reason", v.Ban.Reason).
			Str("detector", v.Detector).
			Dur("duration", v.Ban.Duration).
			Msg("Origin banned")
	}
	// RetryAfter stays zero here: only the ban gate advertises remaining
	// time, so a honeypot 404 stays indistinguishable from a real one

	if p.notifier != nil {
		p.notifier.Notify(ports.Event{
			Kind:      ports.EventBan,
			Origin:    req.Origin,
			Reason:    v.Ban.Reason,
			Duration:  v.Ban.Duration,
			Timestamp: time.Now().UTC(),
		})
	}
}

package detection

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// FloodConfig tunes connection-flood detection. Zero values take the
// production defaults.
type FloodConfig struct {
	// Threshold is the request count per window above which the origin is
	// banned.
	Threshold int
	// WarnThreshold is the early-warning tier: counts above it (but at or
	// below Threshold) only log. Intentionally non-blocking to avoid false
	// positives on legitimate bursts.
	WarnThreshold int
	// BanStep is the per-violation escalation increment.
	BanStep time.Duration
	// BanCap is the longest flood ban regardless of escalation.
	BanCap time.Duration
}

func DefaultFloodConfig() FloodConfig {
	return FloodConfig{
		Threshold:     30,
		WarnThreshold: 20,
		BanStep:       30 * time.Minute,
		BanCap:        1440 * time.Minute,
	}
}

// FloodDetector maintains a rolling 10-second request window per origin
// (in the ReputationStore) and bans origins that exceed the threshold,
// with ban duration escalating per violation: min(violations*step, cap).
//
// Applies only to API-prefixed paths; static page loads fan out into many
// asset requests and must not trip it.
type FloodDetector struct {
	cfg FloodConfig
}

func NewFloodDetector(cfg FloodConfig) *FloodDetector {
	def := DefaultFloodConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = def.WarnThreshold
	}
	if cfg.BanStep <= 0 {
		cfg.BanStep = def.BanStep
	}
	if cfg.BanCap <= 0 {
		cfg.BanCap = def.BanCap
	}
	return &FloodDetector{cfg: cfg}
}

func (*FloodDetector) Name() string { return "flood" }

func (d *FloodDetector) Inspect(ctx context.Context, req *domain.RequestInfo, store ports.ReputationStore) domain.Verdict {
	if !req.IsAPI() {
		return domain.Pass()
	}

	ctr, err := store.TouchCounter(ctx, req.Origin, func(c *domain.WindowCounter) {
		c.Count++
		if c.Count > d.cfg.Threshold {
			c.Violations++
		}
	})
	if err != nil {
		// storage trouble never rejects a request on its own
		log.Warn().Err(err).Str("detector", d.Name()).Msg("Counter update failed, passing")
		return domain.Pass()
	}

	switch {
	case ctr.Count > d.cfg.Threshold:
		banFor := time.Duration(ctr.Violations) * d.cfg.BanStep
		if banFor > d.cfg.BanCap {
			banFor = d.cfg.BanCap
		}
		return domain.RejectAndBan(http.StatusTooManyRequests, "too many requests",
			banFor, "flood")
	case ctr.Count > d.cfg.WarnThreshold:
		log.Warn().
			Str("origin", req.Origin).
			Int("count", ctr.Count).
			Int("threshold", d.cfg.Threshold).
			Msg("Origin approaching flood threshold")
	}
	return domain.Pass()
}

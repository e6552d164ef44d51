package detection

import (
	"context"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

const (
	fingerprintMaxChanges  = 3
	fingerprintBanDuration = 120 * time.Minute
)

// FingerprintDetector derives a fingerprint from non-identity headers
// (User-Agent, Accept-Language, Accept-Encoding, Accept) and watches for it
// changing under one origin. Legitimate users rarely change browser or
// locale mid-session; bots rotating user-agent strings to dodge per-UA
// limits produce exactly this signal.
//
// Applies only to API-prefixed paths.
type FingerprintDetector struct{}

func NewFingerprintDetector() *FingerprintDetector { return &FingerprintDetector{} }

func (*FingerprintDetector) Name() string { return "fingerprint" }

func (d *FingerprintDetector) Inspect(ctx context.Context, req *domain.RequestInfo, store ports.ReputationStore) domain.Verdict {
	if !req.IsAPI() {
		return domain.Pass()
	}

	fp := Fingerprint(req.Header)

	changed := false
	ctr, err := store.TouchCounter(ctx, req.Origin, func(c *domain.WindowCounter) {
		if c.LastFingerprint != 0 && c.LastFingerprint != fp {
			c.Violations++
			changed = true
		}
		c.LastFingerprint = fp
	})
	if err != nil {
		log.Warn().Err(err).Str("detector", d.Name()).Msg("Counter update failed, passing")
		return domain.Pass()
	}

	if changed && ctr.Violations > fingerprintMaxChanges {
		return domain.RejectAndBan(http.StatusForbidden, "access denied",
			fingerprintBanDuration, "fingerprint_anomaly")
	}
	return domain.Pass()
}

// Fingerprint hashes the header tuple with FNV-1a. Deliberately excludes
// the origin itself, and uses a seedless hash so the value is stable
// across processes sharing a Redis store.
func Fingerprint(h http.Header) uint64 {
	f := fnv.New64a()
	f.Write([]byte(h.Get("User-Agent")))
	f.Write([]byte{'|'})
	f.Write([]byte(h.Get("Accept-Language")))
	f.Write([]byte{'|'})
	f.Write([]byte(h.Get("Accept-Encoding")))
	f.Write([]byte{'|'})
	f.Write([]byte(h.Get("Accept")))
	return f.Sum64()
}

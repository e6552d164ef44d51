package detection

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

const (
	repeatInterval      = 1000 * time.Millisecond
	repeatMaxViolations = 5
	repeatBanDuration   = 60 * time.Minute
)

// RapidRepeatDetector flags origins replaying the identical request
// (method, path, normalized body) in under a second. Humans do not
// resubmit the same payload faster than they can blink; retry loops and
// submission bots do.
//
// Signature state is best-effort (bounded, pruned); applies only to
// API-prefixed paths.
type RapidRepeatDetector struct{}

func NewRapidRepeatDetector() *RapidRepeatDetector { return &RapidRepeatDetector{} }

func (*RapidRepeatDetector) Name() string { return "rapid_repeat" }

func (d *RapidRepeatDetector) Inspect(ctx context.Context, req *domain.RequestInfo, store ports.ReputationStore) domain.Verdict {
	if !req.IsAPI() {
		return domain.Pass()
	}

	sig := requestSignature(req)
	since, seen, err := store.RecordSignature(ctx, sig)
	if err != nil {
		log.Warn().Err(err).Str("detector", d.Name()).Msg("Signature lookup failed, passing")
		return domain.Pass()
	}
	if !seen || since > repeatInterval {
		return domain.Pass()
	}

	ctr, err := store.TouchCounter(ctx, req.Origin, func(c *domain.WindowCounter) {
		c.Violations++
	})
	if err != nil {
		log.Warn().Err(err).Str("detector", d.Name()).Msg("Counter update failed, passing")
		return domain.Pass()
	}

	if ctr.Violations >= repeatMaxViolations {
		return domain.RejectAndBan(http.StatusTooManyRequests, "duplicate requests",
			repeatBanDuration, "rapid_repeat")
	}
	return domain.Pass()
}

// requestSignature hashes (origin, method, path, normalized body). The body
// is JSON-compacted when possible so formatting differences do not defeat
// the comparison.
func requestSignature(req *domain.RequestInfo) string {
	h := sha256.New()
	h.Write([]byte(req.Origin))
	h.Write([]byte{0})
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write([]byte(req.Path))
	h.Write([]byte{0})
	h.Write(normalizeBody(req.Body))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeBody(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return trimmed
	}
	return compact.Bytes()
}

package detection

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
	"github.com/gatewarden/gatewarden/pkg/jsondepth"
)

const (
	oversizeBanDuration = 30 * time.Minute
	depthBanDuration    = 60 * time.Minute
)

// PayloadShapeDetector enforces structural limits on request bodies for
// methods that carry one: a declared size cap, and a nesting-depth cap on
// JSON payloads to stop "billion laughs"-style structural bombs.
type PayloadShapeDetector struct{}

func NewPayloadShapeDetector() *PayloadShapeDetector { return &PayloadShapeDetector{} }

func (*PayloadShapeDetector) Name() string { return "payload_shape" }

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func (d *PayloadShapeDetector) Inspect(_ context.Context, req *domain.RequestInfo, _ ports.ReputationStore) domain.Verdict {
	if !hasBody(req.Method) {
		return domain.Pass()
	}

	if req.ContentLength > domain.MaxBodyBytes || int64(len(req.Body)) > domain.MaxBodyBytes {
		return domain.RejectAndBan(http.StatusRequestEntityTooLarge, "payload too large",
			oversizeBanDuration, "oversize_payload")
	}

	if len(req.Body) == 0 {
		return domain.Pass()
	}
	exceeds, err := jsondepth.Exceeds(req.Body, domain.MaxNestingDepth)
	if err != nil {
		// malformed JSON is the business handler's problem, not evidence
		// of malice
		log.Debug().Err(err).Str("origin", req.Origin).Msg("Body depth scan skipped")
		return domain.Pass()
	}
	if exceeds {
		return domain.RejectAndBan(http.StatusBadRequest, "payload too deeply nested",
			depthBanDuration, "nesting_bomb")
	}
	return domain.Pass()
}

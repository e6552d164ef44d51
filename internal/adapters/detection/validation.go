// Package detection implements the detector chain: every classification
// rule the defense pipeline evaluates against an inbound request. Each
// detector is a pure function of (request, origin, store) returning a
// Verdict; all per-origin state lives in the ReputationStore.
package detection

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

const (
	methodBanDuration    = 15 * time.Minute
	traversalBanDuration = 180 * time.Minute
	headerBanDuration    = 360 * time.Minute
)

var allowedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// MethodValidator rejects non-standard HTTP methods outright. Custom verbs
// on a plain web app only ever come from scanners probing for verb
// tunneling, so this bans.
type MethodValidator struct{}

func NewMethodValidator() *MethodValidator { return &MethodValidator{} }

func (MethodValidator) Name() string { return "method" }

func (MethodValidator) Inspect(_ context.Context, req *domain.RequestInfo, _ ports.ReputationStore) domain.Verdict {
	if _, ok := allowedMethods[req.Method]; ok {
		return domain.Pass()
	}
	return domain.RejectAndBan(http.StatusMethodNotAllowed, "method not allowed",
		methodBanDuration, "invalid_method")
}

// traversalTokens are matched against the lower-cased request path. Covers
// the raw sequences plus percent-encoded, double-encoded and overlong-UTF8
// variants scanners use to slip past naive filters.
var traversalTokens = []string{
	"../",
	"..\\",
	"..%2f",
	"..%5c",
	"%2e%2e/",
	"%2e%2e%2f",
	"%2e%2e%5c",
	"%2e%2e\\",
	"..%252f",
	"%252e%252e%252f",
	"%c0%ae",
	"%c0%af",
	"%c1%9c",
}

// TraversalDetector catches path traversal attempts before any path is
// resolved against the filesystem or a router.
type TraversalDetector struct{}

func NewTraversalDetector() *TraversalDetector { return &TraversalDetector{} }

func (TraversalDetector) Name() string { return "path_traversal" }

func (TraversalDetector) Inspect(_ context.Context, req *domain.RequestInfo, _ ports.ReputationStore) domain.Verdict {
	lower := strings.ToLower(req.Path)
	for _, tok := range traversalTokens {
		if strings.Contains(lower, tok) {
			return domain.RejectAndBan(http.StatusBadRequest, "invalid path",
				traversalBanDuration, "path_traversal")
		}
	}
	return domain.Pass()
}

// HeaderInjectionDetector rejects requests whose header values carry raw CR
// or LF bytes, the building blocks of response-splitting and log-forging
// attacks.
type HeaderInjectionDetector struct{}

func NewHeaderInjectionDetector() *HeaderInjectionDetector { return &HeaderInjectionDetector{} }

func (HeaderInjectionDetector) Name() string { return "header_injection" }

func (HeaderInjectionDetector) Inspect(_ context.Context, req *domain.RequestInfo, _ ports.ReputationStore) domain.Verdict {
	for _, values := range req.Header {
		for _, v := range values {
			if strings.ContainsAny(v, "\r\n") {
				return domain.RejectAndBan(http.StatusBadRequest, "invalid header",
					headerBanDuration, "header_injection")
			}
		}
	}
	return domain.Pass()
}

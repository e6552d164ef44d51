package detection

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gatewarden/gatewarden/internal/adapters/storage"
	"github.com/gatewarden/gatewarden/internal/domain"
)

func apiRequest(method, path string, body []byte) *domain.RequestInfo {
	return &domain.RequestInfo{
		Origin:        "203.0.113.5",
		Method:        method,
		Path:          path,
		Header:        http.Header{},
		Body:          body,
		ContentLength: int64(len(body)),
		ReceivedAt:    time.Now(),
	}
}

func TestMethodValidator(t *testing.T) {
	d := NewMethodValidator()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"} {
		v := d.Inspect(ctx, apiRequest(m, "/api/appeals", nil), store)
		assert.True(t, v.Allowed, "method %s must pass", m)
	}

	v := d.Inspect(ctx, apiRequest("TRACE", "/api/appeals", nil), store)
	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusMethodNotAllowed, v.Status)
	if assert.NotNil(t, v.Ban) {
		assert.Equal(t, 15*time.Minute, v.Ban.Duration)
	}
}

func TestTraversalDetector(t *testing.T) {
	d := NewTraversalDetector()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	malicious := []string{
		"/files/../../etc/passwd",
		"/files/..%2f..%2fetc/passwd",
		"/files/%2e%2e%2fsecret",
		"/files/..%252fconfig",
		"/files/%c0%af%c0%afboot",
		`/files/..\windows\system32`,
	}
	for _, p := range malicious {
		v := d.Inspect(ctx, apiRequest("GET", p, nil), store)
		assert.False(t, v.Allowed, "path %q must be rejected", p)
		assert.Equal(t, http.StatusBadRequest, v.Status)
		if assert.NotNil(t, v.Ban, "path %q must ban", p) {
			assert.Equal(t, 180*time.Minute, v.Ban.Duration)
		}
	}

	benign := []string{"/", "/api/appeals", "/assets/app..js", "/dots..in..path"}
	for _, p := range benign {
		v := d.Inspect(ctx, apiRequest("GET", p, nil), store)
		assert.True(t, v.Allowed, "path %q must pass", p)
	}
}

func TestHeaderInjectionDetector(t *testing.T) {
	d := NewHeaderInjectionDetector()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	req := apiRequest("GET", "/api/appeals", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	v := d.Inspect(ctx, req, store)
	assert.True(t, v.Allowed)

	req = apiRequest("GET", "/api/appeals", nil)
	req.Header["X-Custom"] = []string{"value\r\nSet-Cookie: pwned=1"}
	v = d.Inspect(ctx, req, store)
	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusBadRequest, v.Status)
	if assert.NotNil(t, v.Ban) {
		assert.Equal(t, 360*time.Minute, v.Ban.Duration)
	}

	req = apiRequest("GET", "/api/appeals", nil)
	req.Header["X-Other"] = []string{"bare\nnewline"}
	v = d.Inspect(ctx, req, store)
	assert.False(t, v.Allowed)
}

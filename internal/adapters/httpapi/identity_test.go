package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, strict bool) *IdentityResolver {
	r, err := NewIdentityResolver(nil, strict)
	require.NoError(t, err)
	return r
}

func TestIdentityResolver_DirectClient(t *testing.T) {
	r := newResolver(t, true)

	origin, spoofed := r.Resolve("198.51.100.7:51234", http.Header{})
	assert.Equal(t, "198.51.100.7", origin)
	assert.False(t, spoofed)
}

func TestIdentityResolver_TrustedProxyHeaders(t *testing.T) {
	r := newResolver(t, true)

	// 173.245.48.1 is inside the default trusted ranges
	h := http.Header{}
	h.Set("CF-Connecting-IP", "203.0.113.5")
	origin, spoofed := r.Resolve("173.245.48.1:443", h)
	assert.Equal(t, "203.0.113.5", origin)
	assert.False(t, spoofed)

	// left-most X-Forwarded-For entry is the original client
	h = http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1, 173.245.48.1")
	origin, spoofed = r.Resolve("173.245.48.1:443", h)
	assert.Equal(t, "203.0.113.5", origin)
	assert.False(t, spoofed)

	// the real-IP header wins over X-Forwarded-For
	h.Set("CF-Connecting-IP", "203.0.113.9")
	origin, _ = r.Resolve("173.245.48.1:443", h)
	assert.Equal(t, "203.0.113.9", origin)
}

func TestIdentityResolver_LoopbackTrusted(t *testing.T) {
	r := newResolver(t, true)

	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.5")
	origin, spoofed := r.Resolve("127.0.0.1:9999", h)
	assert.Equal(t, "203.0.113.5", origin)
	assert.False(t, spoofed)
}

func TestIdentityResolver_SpoofedHeaders(t *testing.T) {
	r := newResolver(t, true)

	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.5")
	origin, spoofed := r.Resolve("198.51.100.7:51234", h)
	assert.True(t, spoofed, "forwarded header from an untrusted peer is spoofing")
	assert.Equal(t, "198.51.100.7", origin, "the spoofed header is never believed")
}

func TestIdentityResolver_NormalizesMappedIPv6(t *testing.T) {
	r := newResolver(t, true)

	origin, _ := r.Resolve("[::ffff:198.51.100.7]:443", http.Header{})
	assert.Equal(t, "198.51.100.7", origin)

	h := http.Header{}
	h.Set("CF-Connecting-IP", "::ffff:203.0.113.5")
	origin, _ = r.Resolve("127.0.0.1:1", h)
	assert.Equal(t, "203.0.113.5", origin)
}

func TestIdentityResolver_UnparseableForwardedFallsBack(t *testing.T) {
	r := newResolver(t, true)

	h := http.Header{}
	h.Set("X-Forwarded-For", "not-an-ip")
	origin, spoofed := r.Resolve("127.0.0.1:1", h)
	assert.Equal(t, "127.0.0.1", origin)
	assert.False(t, spoofed)
}

func TestIdentityMiddleware_StrictRejectsSpoofing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(newResolver(t, true).Middleware())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, OriginFrom(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.7:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// without the spoofed header the same peer is fine
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.7:51234"
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "198.51.100.7", w.Body.String())
}

func TestIdentityMiddleware_LenientIgnoresSpoofedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(newResolver(t, false).Middleware())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, OriginFrom(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.7:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "198.51.100.7", w.Body.String(), "header ignored, never trusted")
}

package detection

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/adapters/storage"
	"github.com/gatewarden/gatewarden/internal/domain"
)

func TestFloodDetector_ThresholdBoundary(t *testing.T) {
	d := NewFloodDetector(DefaultFloodConfig())
	ctx := context.Background()
	store := storage.NewMemoryStore()

	// 30 requests inside one window: zero rejections
	for i := 0; i < 30; i++ {
		v := d.Inspect(ctx, apiRequest("GET", "/api/appeals", nil), store)
		assert.True(t, v.Allowed, "request %d must pass", i+1)
	}

	// the 31st trips it
	v := d.Inspect(ctx, apiRequest("GET", "/api/appeals", nil), store)
	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusTooManyRequests, v.Status)
	require.NotNil(t, v.Ban)
	assert.Equal(t, 30*time.Minute, v.Ban.Duration, "first violation bans 30 minutes")
	assert.Equal(t, "flood", v.Ban.Reason)
}

func TestFloodDetector_Escalation(t *testing.T) {
	d := NewFloodDetector(DefaultFloodConfig())
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	store.SetClock(func() time.Time { return clock })

	trip := func() time.Duration {
		for i := 0; i < 30; i++ {
			v := d.Inspect(ctx, apiRequest("GET", "/api/appeals", nil), store)
			require.True(t, v.Allowed)
		}
		v := d.Inspect(ctx, apiRequest("GET", "/api/appeals", nil), store)
		require.False(t, v.Allowed)
		require.NotNil(t, v.Ban)
		return v.Ban.Duration
	}

	assert.Equal(t, 30*time.Minute, trip())

	// previous ban expires, counter window rolls, violations survive
	clock = clock.Add(31 * time.Minute)
	assert.Equal(t, 60*time.Minute, trip())
}

func TestFloodDetector_EscalationCap(t *testing.T) {
	d := NewFloodDetector(DefaultFloodConfig())
	ctx := context.Background()
	store := storage.NewMemoryStore()

	// origin with a long violation history already at the window edge
	_, err := store.TouchCounter(ctx, "203.0.113.5", func(c *domain.WindowCounter) {
		c.Count = 30
		c.Violations = 100
	})
	require.NoError(t, err)

	v := d.Inspect(ctx, apiRequest("GET", "/api/appeals", nil), store)
	require.False(t, v.Allowed)
	require.NotNil(t, v.Ban)
	assert.Equal(t, 1440*time.Minute, v.Ban.Duration, "escalation capped at 24h")
}

func TestFloodDetector_IgnoresNonAPIPaths(t *testing.T) {
	d := NewFloodDetector(DefaultFloodConfig())
	ctx := context.Background()
	store := storage.NewMemoryStore()

	for i := 0; i < 100; i++ {
		v := d.Inspect(ctx, apiRequest("GET", "/", nil), store)
		assert.True(t, v.Allowed)
	}
}

func TestFloodDetector_IndependentOrigins(t *testing.T) {
	d := NewFloodDetector(DefaultFloodConfig())
	ctx := context.Background()
	store := storage.NewMemoryStore()

	for i := 0; i < 31; i++ {
		req := apiRequest("GET", "/api/appeals", nil)
		req.Origin = "198.51.100.1"
		d.Inspect(ctx, req, store)
	}

	// a different origin is unaffected
	req := apiRequest("GET", "/api/appeals", nil)
	req.Origin = "198.51.100.2"
	v := d.Inspect(ctx, req, store)
	assert.True(t, v.Allowed)
}

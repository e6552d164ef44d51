package detection

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/adapters/storage"
)

func TestRapidRepeatDetector_BansAfterFiveViolations(t *testing.T) {
	d := NewRapidRepeatDetector()
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	store.SetClock(func() time.Time { return clock })

	body := []byte(`{"reason":"please unban me"}`)

	// first occurrence seeds the signature
	v := d.Inspect(ctx, apiRequest("POST", "/api/appeals", body), store)
	require.True(t, v.Allowed)

	// four rapid repeats accumulate violations without rejecting
	for i := 0; i < 4; i++ {
		clock = clock.Add(200 * time.Millisecond)
		v = d.Inspect(ctx, apiRequest("POST", "/api/appeals", body), store)
		assert.True(t, v.Allowed, "repeat %d accumulates without rejecting", i+1)
	}

	// fifth rapid repeat crosses the violation threshold
	clock = clock.Add(200 * time.Millisecond)
	v = d.Inspect(ctx, apiRequest("POST", "/api/appeals", body), store)
	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusTooManyRequests, v.Status)
	require.NotNil(t, v.Ban)
	assert.Equal(t, 60*time.Minute, v.Ban.Duration)
}

func TestRapidRepeatDetector_SlowRepeatsPass(t *testing.T) {
	d := NewRapidRepeatDetector()
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	store.SetClock(func() time.Time { return clock })

	body := []byte(`{"reason":"retry"}`)
	for i := 0; i < 10; i++ {
		v := d.Inspect(ctx, apiRequest("POST", "/api/appeals", body), store)
		assert.True(t, v.Allowed)
		clock = clock.Add(2 * time.Second)
	}
}

func TestRapidRepeatDetector_DifferentBodiesAreDistinct(t *testing.T) {
	d := NewRapidRepeatDetector()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	for i := 0; i < 10; i++ {
		body := []byte(`{"n":` + string(rune('0'+i)) + `}`)
		v := d.Inspect(ctx, apiRequest("POST", "/api/appeals", body), store)
		assert.True(t, v.Allowed, "distinct bodies never look like repeats")
	}
}

func TestRapidRepeatDetector_IgnoresNonAPIPaths(t *testing.T) {
	d := NewRapidRepeatDetector()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	for i := 0; i < 10; i++ {
		v := d.Inspect(ctx, apiRequest("GET", "/", nil), store)
		assert.True(t, v.Allowed)
	}
}

func TestRequestSignature_NormalizesJSONFormatting(t *testing.T) {
	a := apiRequest("POST", "/api/appeals", []byte(`{"a": 1,  "b": 2}`))
	b := apiRequest("POST", "/api/appeals", []byte(`{"a":1,"b":2}`))
	assert.Equal(t, requestSignature(a), requestSignature(b))

	c := apiRequest("POST", "/api/appeals", []byte(`{"a":1,"b":3}`))
	assert.NotEqual(t, requestSignature(a), requestSignature(c))
}

func TestRequestSignature_OriginScoped(t *testing.T) {
	a := apiRequest("POST", "/api/appeals", []byte(`{}`))
	b := apiRequest("POST", "/api/appeals", []byte(`{}`))
	b.Origin = "198.51.100.9"
	assert.NotEqual(t, requestSignature(a), requestSignature(b))
}

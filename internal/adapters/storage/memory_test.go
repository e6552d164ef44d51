package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/domain"
)

// fakeClock drives a MemoryStore through time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.SetClock(clock.Now)
	return store, clock
}

func TestMemoryStore_BanPersistsUntilExpiry(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "203.0.113.5", 10*time.Minute, "flood"))

	banned, err := store.IsBanned(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, banned)

	clock.Advance(9 * time.Minute)
	banned, _ = store.IsBanned(ctx, "203.0.113.5")
	assert.True(t, banned, "ban must hold until expiry")

	clock.Advance(time.Minute)
	banned, _ = store.IsBanned(ctx, "203.0.113.5")
	assert.False(t, banned, "ban must lift at expiry")
}

func TestMemoryStore_BanExtendsNotStacks(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "198.51.100.1", 60*time.Minute, "first"))
	clock.Advance(10 * time.Minute)
	require.NoError(t, store.Ban(ctx, "198.51.100.1", 5*time.Minute, "second"))

	records, err := store.ListBans(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1, "re-ban must overwrite, not stack")
	assert.Equal(t, "second", records[0].Reason)
	assert.Equal(t, clock.Now().Add(5*time.Minute), records[0].ExpiresAt)

	remaining, _ := store.RemainingBan(ctx, "198.51.100.1")
	assert.Equal(t, 5*time.Minute, remaining)
}

func TestMemoryStore_Unban(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	existed, err := store.Unban(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, store.Ban(ctx, "203.0.113.9", time.Hour, "honeypot:/admin"))
	existed, err = store.Unban(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, existed)

	banned, _ := store.IsBanned(ctx, "203.0.113.9")
	assert.False(t, banned)
}

func TestMemoryStore_RemainingBanZeroWhenClear(t *testing.T) {
	store, _ := newTestStore()
	remaining, err := store.RemainingBan(context.Background(), "192.0.2.77")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestMemoryStore_CounterWindowRoll(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	inc := func(c *domain.WindowCounter) { c.Count++ }

	for i := 0; i < 3; i++ {
		ctr, err := store.TouchCounter(ctx, "10.0.0.1", inc)
		require.NoError(t, err)
		assert.Equal(t, i+1, ctr.Count)
	}

	clock.Advance(domain.CounterWindow)
	ctr, err := store.TouchCounter(ctx, "10.0.0.1", inc)
	require.NoError(t, err)
	assert.Equal(t, 1, ctr.Count, "count resets on window rollover")
}

func TestMemoryStore_ViolationsSurviveRollover(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_, err := store.TouchCounter(ctx, "10.0.0.2", func(c *domain.WindowCounter) {
		c.Count++
		c.Violations++
	})
	require.NoError(t, err)

	clock.Advance(domain.CounterWindow + time.Second)
	ctr, err := store.TouchCounter(ctx, "10.0.0.2", func(c *domain.WindowCounter) { c.Count++ })
	require.NoError(t, err)
	assert.Equal(t, 1, ctr.Violations, "violations are the escalation counter, not reset per window")
	assert.Equal(t, 1, ctr.Count)
}

func TestMemoryStore_CounterGCAfterIdle(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_, err := store.TouchCounter(ctx, "10.0.0.3", func(c *domain.WindowCounter) {
		c.Violations = 5
	})
	require.NoError(t, err)

	clock.Advance(domain.CounterIdleTTL + time.Minute)
	ctr, err := store.TouchCounter(ctx, "10.0.0.3", nil)
	require.NoError(t, err)
	assert.Zero(t, ctr.Violations, "idle counter is recreated fresh")
}

func TestMemoryStore_RecordSignature(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_, seen, err := store.RecordSignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, seen, "first sight")

	clock.Advance(500 * time.Millisecond)
	since, seen, err := store.RecordSignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 500*time.Millisecond, since)

	clock.Advance(domain.SignatureWindow + time.Second)
	_, seen, err = store.RecordSignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, seen, "outside the retention window")
}

func TestMemoryStore_SignaturePruneOnOverflow(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	for i := 0; i < domain.SignatureCacheSize; i++ {
		_, _, err := store.RecordSignature(ctx, fmt.Sprintf("old-%d", i))
		require.NoError(t, err)
	}
	clock.Advance(domain.SignatureWindow + time.Second)

	_, _, err := store.RecordSignature(ctx, "fresh")
	require.NoError(t, err)

	store.mu.RLock()
	size := len(store.sigs)
	store.mu.RUnlock()
	assert.LessOrEqual(t, size, 2, "stale entries dropped once the bound is exceeded")
}

func TestMemoryStore_Sweep(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "203.0.113.1", time.Minute, "x"))
	require.NoError(t, store.Ban(ctx, "203.0.113.2", time.Hour, "y"))
	_, err := store.TouchCounter(ctx, "203.0.113.3", nil)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	removed := store.Sweep(clock.Now())
	assert.Equal(t, 1, removed, "only the expired ban goes")

	records, _ := store.ListBans(ctx)
	assert.Len(t, records, 1)

	clock.Advance(domain.CounterIdleTTL)
	removed = store.Sweep(clock.Now())
	assert.Equal(t, 2, removed, "remaining ban and idle counter collected")
}

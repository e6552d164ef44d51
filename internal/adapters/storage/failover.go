package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// degradedLogInterval throttles the "backend unreachable" error log so an
// extended Redis outage does not flood the logs once per request.
const degradedLogInterval = 30 * time.Second

// Failover serves from a primary (shared, durable) store and degrades to a
// process-local fallback when the primary is unreachable. Reads fail over
// per call; ban writes go to BOTH stores so a decided ban is enforced even
// while persistence is degraded, and is already durable when the primary
// recovers.
//
// This favors availability over the durability guarantee: an explicit,
// documented trade-off, not a bug.
type Failover struct {
	primary  ports.ReputationStore
	fallback *MemoryStore

	lastDegradedLog atomic.Int64
}

// NewFailover wraps primary with an in-memory fallback.
func NewFailover(primary ports.ReputationStore, fallback *MemoryStore) *Failover {
	if fallback == nil {
		fallback = NewMemoryStore()
	}
	return &Failover{primary: primary, fallback: fallback}
}

func (f *Failover) degraded(op string, err error) {
	now := time.Now().UnixNano()
	last := f.lastDegradedLog.Load()
	if now-last > int64(degradedLogInterval) && f.lastDegradedLog.CompareAndSwap(last, now) {
		log.Error().Err(err).Str("op", op).
			Msg("Reputation store backend unreachable, serving from in-memory fallback")
	}
}

func (f *Failover) Ban(ctx context.Context, origin string, d time.Duration, reason string) error {
	// always written to the fallback first: enforcement must not wait on,
	// or be lost to, a struggling backend
	if err := f.fallback.Ban(ctx, origin, d, reason); err != nil {
		return err
	}
	if err := f.primary.Ban(ctx, origin, d, reason); err != nil {
		f.degraded("ban", err)
	}
	return nil
}

func (f *Failover) IsBanned(ctx context.Context, origin string) (bool, error) {
	banned, err := f.primary.IsBanned(ctx, origin)
	if err != nil {
		f.degraded("is_banned", err)
		return f.fallback.IsBanned(ctx, origin)
	}
	if banned {
		return true, nil
	}
	// a ban taken while degraded may exist only in the fallback
	return f.fallback.IsBanned(ctx, origin)
}

func (f *Failover) RemainingBan(ctx context.Context, origin string) (time.Duration, error) {
	d, err := f.primary.RemainingBan(ctx, origin)
	if err != nil {
		f.degraded("remaining_ban", err)
		return f.fallback.RemainingBan(ctx, origin)
	}
	if d > 0 {
		return d, nil
	}
	return f.fallback.RemainingBan(ctx, origin)
}

func (f *Failover) Unban(ctx context.Context, origin string) (bool, error) {
	existedFallback, _ := f.fallback.Unban(ctx, origin)
	existedPrimary, err := f.primary.Unban(ctx, origin)
	if err != nil {
		f.degraded("unban", err)
		return existedFallback, nil
	}
	return existedPrimary || existedFallback, nil
}

func (f *Failover) ListBans(ctx context.Context) ([]domain.BanRecord, error) {
	records, err := f.primary.ListBans(ctx)
	if err != nil {
		f.degraded("list_bans", err)
		return f.fallback.ListBans(ctx)
	}
	return records, nil
}

func (f *Failover) TouchCounter(ctx context.Context, origin string, mutate func(*domain.WindowCounter)) (domain.WindowCounter, error) {
	ctr, err := f.primary.TouchCounter(ctx, origin, mutate)
	if err != nil {
		f.degraded("touch_counter", err)
		return f.fallback.TouchCounter(ctx, origin, mutate)
	}
	return ctr, nil
}

func (f *Failover) RecordSignature(ctx context.Context, sig string) (time.Duration, bool, error) {
	since, seen, err := f.primary.RecordSignature(ctx, sig)
	if err != nil {
		f.degraded("record_signature", err)
		return f.fallback.RecordSignature(ctx, sig)
	}
	return since, seen, nil
}

// Sweep only touches the fallback; the primary expires keys natively.
func (f *Failover) Sweep(now time.Time) int {
	return f.fallback.Sweep(now)
}

func (f *Failover) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}

func (f *Failover) Close() error {
	_ = f.fallback.Close()
	return f.primary.Close()
}

// Package storage provides the ReputationStore implementations: a
// process-local in-memory store, a Redis-backed shared store, and a
// failover wrapper that degrades from Redis to memory when the backend is
// unreachable.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/domain"
)

// MemoryStore keeps all reputation state in process-local maps. It is the
// explicit degraded mode when no Redis is configured: bans do not survive a
// restart and are not shared across instances.
//
// Expiry is lazy on read; the periodic sweeper calls Sweep to evict what
// reads never touch.
type MemoryStore struct {
	mu       sync.RWMutex
	bans     map[string]domain.BanRecord
	counters map[string]*domain.WindowCounter
	sigs     map[string]time.Time

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bans:     make(map[string]domain.BanRecord),
		counters: make(map[string]*domain.WindowCounter),
		sigs:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests exercising expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Ban(_ context.Context, origin string, d time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[origin] = domain.BanRecord{
		Origin:    origin,
		ExpiresAt: s.now().Add(d),
		Reason:    reason,
	}
	return nil
}

func (s *MemoryStore) IsBanned(_ context.Context, origin string) (bool, error) {
	s.mu.RLock()
	rec, ok := s.bans[origin]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if rec.Expired(now) {
		s.mu.Lock()
		// re-check under the write lock; a newer ban may have landed
		if cur, still := s.bans[origin]; still && cur.Expired(s.now()) {
			delete(s.bans, origin)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) RemainingBan(_ context.Context, origin string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.bans[origin]
	if !ok {
		return 0, nil
	}
	return rec.Remaining(s.now()), nil
}

func (s *MemoryStore) Unban(_ context.Context, origin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bans[origin]
	if !ok {
		return false, nil
	}
	delete(s.bans, origin)
	return !rec.Expired(s.now()), nil
}

func (s *MemoryStore) ListBans(_ context.Context) ([]domain.BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]domain.BanRecord, 0, len(s.bans))
	for _, rec := range s.bans {
		if !rec.Expired(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) TouchCounter(_ context.Context, origin string, mutate func(*domain.WindowCounter)) (domain.WindowCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ctr, ok := s.counters[origin]
	if !ok || ctr.Idle(now) {
		ctr = &domain.WindowCounter{Origin: origin, WindowStart: now}
		s.counters[origin] = ctr
	} else {
		ctr.Roll(now)
	}
	if mutate != nil {
		mutate(ctr)
	}
	return *ctr, nil
}

func (s *MemoryStore) RecordSignature(_ context.Context, sig string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	last, seen := s.sigs[sig]
	s.sigs[sig] = now

	if len(s.sigs) > domain.SignatureCacheSize {
		s.pruneSignaturesLocked(now)
	}

	if !seen || now.Sub(last) > domain.SignatureWindow {
		return 0, false, nil
	}
	return now.Sub(last), true, nil
}

// pruneSignaturesLocked drops signatures outside the retention window.
// Best-effort state: if everything is fresh the map stays above the bound
// until entries age out.
func (s *MemoryStore) pruneSignaturesLocked(now time.Time) {
	for sig, last := range s.sigs {
		if now.Sub(last) > domain.SignatureWindow {
			delete(s.sigs, sig)
		}
	}
}

// Sweep evicts expired bans, idle counters and stale signatures. Called by
// the background sweeper every few minutes.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for origin, rec := range s.bans {
		if rec.Expired(now) {
			delete(s.bans, origin)
			removed++
		}
	}
	for origin, ctr := range s.counters {
		if ctr.Idle(now) {
			delete(s.counters, origin)
			removed++
		}
	}
	for sig, last := range s.sigs {
		if now.Sub(last) > domain.SignatureWindow {
			delete(s.sigs, sig)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

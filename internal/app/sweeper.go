package app

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// DefaultSweepInterval is how often expired state is evicted and gauges are
// refreshed. Expiry is already enforced lazily on every read; the sweep only
// reclaims memory for origins that stopped sending traffic.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically evicts expired bans and idle counters from stores
// that do not expire natively, and refreshes the active-ban and memory
// gauges.
type Sweeper struct {
	store    ports.ReputationStore
	metrics  *domain.DefenseMetrics
	observer ports.PipelineObserver
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(store ports.ReputationStore, metrics *domain.DefenseMetrics, observer ports.PipelineObserver, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		metrics:  metrics,
		observer: observer,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; the loop runs until
// Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
	log.Info().Dur("interval", s.interval).Msg("Reputation sweeper started")
}

func (s *Sweeper) sweep(ctx context.Context) {
	if sw, ok := s.store.(ports.Sweepable); ok {
		if removed := sw.Sweep(time.Now()); removed > 0 {
			log.Debug().Int("removed", removed).Msg("Swept expired reputation state")
		}
	}

	records, err := s.store.ListBans(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to refresh active-ban gauge")
	} else {
		n := int64(len(records))
		if s.metrics != nil {
			s.metrics.SetActiveBans(n)
		}
		if s.observer != nil {
			s.observer.ActiveBans(n)
		}
	}

	if s.metrics != nil {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		s.metrics.SetMemoryUsage(float64(ms.Alloc) / (1024 * 1024))
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

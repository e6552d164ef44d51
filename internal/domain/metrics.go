package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	TotalRequests  int64
	Rejected       int64
	BansIssued     int64
	ActiveBans     int64
	MemoryUsageMB  float64
	Uptime         time.Duration
	StartTime      time.Time
}

// DefenseMetrics collects process-lifetime counters for the health endpoint
// and the Prometheus adapter. Counter updates are lock-free.
type DefenseMetrics struct {
	totalRequests atomic.Int64
	rejected      atomic.Int64
	bansIssued    atomic.Int64
	activeBans    atomic.Int64

	MemoryUsageMB float64
	StartTime     time.Time

	mu sync.RWMutex
}

func NewDefenseMetrics() *DefenseMetrics {
	return &DefenseMetrics{
		StartTime: time.Now(),
	}
}

func (m *DefenseMetrics) IncrementRequests() {
	m.totalRequests.Add(1)
}

func (m *DefenseMetrics) IncrementRejected() {
	m.rejected.Add(1)
}

func (m *DefenseMetrics) IncrementBans() {
	m.bansIssued.Add(1)
}

func (m *DefenseMetrics) SetActiveBans(n int64) {
	m.activeBans.Store(n)
}

func (m *DefenseMetrics) SetMemoryUsage(mb float64) {
	m.mu.Lock()
	m.MemoryUsageMB = mb
	m.mu.Unlock()
}

func (m *DefenseMetrics) TotalRequests() int64 {
	return m.totalRequests.Load()
}

func (m *DefenseMetrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		TotalRequests: m.totalRequests.Load(),
		Rejected:      m.rejected.Load(),
		BansIssued:    m.bansIssued.Load(),
		ActiveBans:    m.activeBans.Load(),
		MemoryUsageMB: m.MemoryUsageMB,
		Uptime:        time.Since(m.StartTime),
		StartTime:     m.StartTime,
	}
}

package forgeclient

import "sync"

// Metrics are the per-process counters the Hybrid Forge Client maintains.
// Aggregation across processes is delegated to the metrics collaborator
// (out of scope here).
type Metrics struct {
	mu                 sync.RWMutex
	compoundQueries    int64
	fineGrainedQueries int64
	fallbacks          int64
	totalPointsSaved   int64
}

// Snapshot is the read-only view returned by GetMetrics, including the
// derived fallbackRate and efficiency ratios.
type Snapshot struct {
	CompoundQueries    int64
	FineGrainedQueries int64
	Fallbacks          int64
	TotalPointsSaved   int64
	FallbackRate       float64
	Efficiency         float64
}

func (m *Metrics) recordCompound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compoundQueries++
}

func (m *Metrics) recordFineGrained(calls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fineGrainedQueries += int64(calls)
}

func (m *Metrics) recordFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

// recordPointsSaved adds max(0, 5-reportedCompoundCost) for a
// fallback-free compound call; it never decreases totalPointsSaved.
func (m *Metrics) recordPointsSaved(reportedCompoundCost int) {
	saved := 5 - reportedCompoundCost
	if saved < 0 {
		saved = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPointsSaved += int64(saved)
}

// Snapshot returns the current counters plus derived ratios.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalQueries := m.compoundQueries + m.fineGrainedQueries
	fallbackRate := 0.0
	if denom := m.compoundQueries + m.fallbacks; denom > 0 {
		fallbackRate = float64(m.fallbacks) / float64(denom)
	}
	efficiency := 0.0
	if totalQueries > 0 {
		efficiency = float64(m.totalPointsSaved) / float64(totalQueries)
	}

	return Snapshot{
		CompoundQueries:    m.compoundQueries,
		FineGrainedQueries: m.fineGrainedQueries,
		Fallbacks:          m.fallbacks,
		TotalPointsSaved:   m.totalPointsSaved,
		FallbackRate:       fallbackRate,
		Efficiency:         efficiency,
	}
}

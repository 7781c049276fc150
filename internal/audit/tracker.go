package audit

import (
	"sync"
	"time"
)

// CapabilityStats aggregates handler executions for one capability.
type CapabilityStats struct {
	Executions    int           `json:"executions"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	TotalDuration time.Duration `json:"total_duration"`
}

// SuccessRate returns the fraction of executions that succeeded.
func (s CapabilityStats) SuccessRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Executions)
}

// AvgDuration returns the mean handler duration.
func (s CapabilityStats) AvgDuration() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Executions)
}

// Tracker accumulates in-memory per-capability performance metrics for the
// lifetime of an engine run.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*CapabilityStats
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*CapabilityStats)}
}

// RecordExecution records one handler invocation outcome.
func (t *Tracker) RecordExecution(capability string, d time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[capability]
	if !ok {
		s = &CapabilityStats{}
		t.stats[capability] = s
	}
	s.Executions++
	s.TotalDuration += d
	if success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// Snapshot returns a copy of the accumulated stats.
func (t *Tracker) Snapshot() map[string]CapabilityStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]CapabilityStats, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}

// Package history keeps a bounded in-memory record of completed runs plus
// running aggregate counters. Persistence across restarts lives in the
// sqlite event log, not here.
package history

import (
	"sync"
	"time"
)

// RunRecord is the frozen, read-only view of a completed run.
type RunRecord struct {
	ID          string    `json:"id"`
	ProjectRoot string    `json:"project_root"`
	Stage       string    `json:"stage"`
	Attempts    int       `json:"attempts"`
	Success     bool      `json:"success"`
	Summary     string    `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Stats holds the aggregate counters across all runs since process start.
type Stats struct {
	TotalRuns        int `json:"total_runs"`
	SuccessfulRuns   int `json:"successful_runs"`
	FailedRuns       int `json:"failed_runs"`
	TotalFixAttempts int `json:"total_fix_attempts"`
	SuccessfulFixes  int `json:"successful_fixes"`
}

// DefaultCapacity is the default history ring size.
const DefaultCapacity = 50

// Ring is a bounded, concurrency-safe run history: the oldest record is
// evicted once capacity is exceeded.
type Ring struct {
	mu       sync.Mutex
	capacity int
	records  []RunRecord
	stats    Stats
}

// NewRing creates a Ring with the given capacity (DefaultCapacity if <= 0).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Add freezes a completed run into the ring and updates the counters.
// successfulFixes is the number of fix attempts within the run that
// verified green.
func (r *Ring) Add(rec RunRecord, successfulFixes int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if len(r.records) > r.capacity {
		r.records = r.records[len(r.records)-r.capacity:]
	}

	r.stats.TotalRuns++
	if rec.Success {
		r.stats.SuccessfulRuns++
	} else {
		r.stats.FailedRuns++
	}
	r.stats.TotalFixAttempts += rec.Attempts
	r.stats.SuccessfulFixes += successfulFixes
}

// List returns the recorded runs, newest first.
func (r *Ring) List() []RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RunRecord, len(r.records))
	for i, rec := range r.records {
		out[len(r.records)-1-i] = rec
	}
	return out
}

// Len returns the number of records currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Stats returns a copy of the aggregate counters.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

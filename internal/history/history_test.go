package history

import (
	"fmt"
	"testing"
)

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Add(RunRecord{ID: fmt.Sprintf("run-%d", i)}, 0)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	recs := r.List()
	if recs[0].ID != "run-5" || recs[2].ID != "run-3" {
		t.Errorf("records = %v", recs)
	}
}

func TestListNewestFirst(t *testing.T) {
	r := NewRing(10)
	r.Add(RunRecord{ID: "a"}, 0)
	r.Add(RunRecord{ID: "b"}, 0)
	recs := r.List()
	if recs[0].ID != "b" || recs[1].ID != "a" {
		t.Errorf("records = %v", recs)
	}
}

func TestStatsCounters(t *testing.T) {
	r := NewRing(10)
	r.Add(RunRecord{ID: "a", Success: true, Attempts: 2}, 1)
	r.Add(RunRecord{ID: "b", Success: false, Attempts: 3}, 0)

	s := r.Stats()
	if s.TotalRuns != 2 || s.SuccessfulRuns != 1 || s.FailedRuns != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.TotalFixAttempts != 5 || s.SuccessfulFixes != 1 {
		t.Errorf("fix counters = %+v", s)
	}
}

func TestStatsSurviveEviction(t *testing.T) {
	r := NewRing(1)
	r.Add(RunRecord{ID: "a", Success: true}, 0)
	r.Add(RunRecord{ID: "b", Success: true}, 0)
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
	if s := r.Stats(); s.TotalRuns != 2 {
		t.Errorf("total runs = %d, want 2", s.TotalRuns)
	}
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	r := NewRing(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		r.Add(RunRecord{ID: fmt.Sprintf("r%d", i)}, 0)
	}
	if r.Len() != DefaultCapacity {
		t.Errorf("len = %d, want %d", r.Len(), DefaultCapacity)
	}
}

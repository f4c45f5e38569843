package metrics

import (
	"testing"
	"time"
)

func TestFailureMarksUnhealthy(t *testing.T) {
	m := New()
	m.RecordFailure("validation", "bad url")
	if !m.Healthy() {
		t.Error("caller errors should not mark the service unhealthy")
	}

	m.RecordFailure("dependency_timeout", "feed timed out")
	if m.Healthy() {
		t.Error("dependency timeout should mark unhealthy")
	}

	m.SetLastRun()
	if !m.Healthy() {
		t.Error("successful run should restore health")
	}

	stats := m.GetStats()
	failures := stats["failures"].(map[string]int64)
	if failures["validation"] != 1 || failures["dependency_timeout"] != 1 {
		t.Errorf("failures = %v", failures)
	}
}

func TestProcessingTimeAverage(t *testing.T) {
	m := New()
	m.RecordProcessingTime(100 * time.Millisecond)
	m.RecordProcessingTime(300 * time.Millisecond)
	if m.AverageProcessingTime != 200*time.Millisecond {
		t.Errorf("average = %v", m.AverageProcessingTime)
	}
}

func TestCacheLookupCounters(t *testing.T) {
	m := New()
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	stats := m.GetStats()
	if stats["cache_hits"] != int64(1) || stats["cache_misses"] != int64(2) {
		t.Errorf("stats = %v", stats)
	}
}

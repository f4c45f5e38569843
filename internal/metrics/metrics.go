package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsTotal          int64
	CacheHits          int64
	CacheMisses        int64
	CacheWriteFailures int64
	ShrinkRetries      int64
	CensoredResponses  int64
	RelatedArticles    int64
	Failures           map[string]int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

func New() *Metrics {
	return &Metrics{IsHealthy: true, Failures: make(map[string]int64)}
}

var Global = New()

func (m *Metrics) IncrementRuns() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsTotal++
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.CacheHits++
	} else {
		m.CacheMisses++
	}
}

func (m *Metrics) IncrementCacheWriteFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheWriteFailures++
}

func (m *Metrics) IncrementShrinkRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShrinkRetries++
}

func (m *Metrics) IncrementCensored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CensoredResponses++
}

func (m *Metrics) AddRelatedArticles(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RelatedArticles += int64(n)
}

// RecordFailure counts a failed run by error kind. Dependency and cache
// failures also mark the service unhealthy until the next successful run.
func (m *Metrics) RecordFailure(kind string, err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[kind]++
	m.LastError = err
	m.LastErrorTime = time.Now()
	switch kind {
	case "dependency_failure", "dependency_timeout", "cache_unavailable":
		m.IsHealthy = false
	}
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failures := make(map[string]int64, len(m.Failures))
	for k, v := range m.Failures {
		failures[k] = v
	}

	return map[string]interface{}{
		"runs_total":                 m.RunsTotal,
		"cache_hits":                 m.CacheHits,
		"cache_misses":               m.CacheMisses,
		"cache_write_failures":       m.CacheWriteFailures,
		"shrink_retries":             m.ShrinkRetries,
		"censored_responses":         m.CensoredResponses,
		"related_articles":           m.RelatedArticles,
		"failures":                   failures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}

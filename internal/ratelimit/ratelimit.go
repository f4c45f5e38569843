package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter enforces daily request budgets per completion provider and in total.
// A limit of 0 means unlimited.
type Limiter struct {
	mu        sync.Mutex
	limits    map[string]int
	used      map[string]int
	maxTotal  int
	total     int
	window    time.Duration
	resetTime time.Time
	now       func() time.Time
	logger    *slog.Logger
}

func NewLimiter(limits map[string]int, maxTotal int, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		limits:   make(map[string]int, len(limits)),
		used:     make(map[string]int),
		maxTotal: maxTotal,
		window:   24 * time.Hour,
		now:      time.Now,
		logger:   logger,
	}
	for k, v := range limits {
		l.limits[k] = v
	}
	l.resetTime = l.now().Add(l.window)
	return l
}

// Use consumes one request of provider's budget.
func (rl *Limiter) Use(provider string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	if err := rl.check(provider); err != nil {
		rl.logger.Warn("completion budget exhausted", "provider", provider, "used", rl.used[provider], "limit", rl.limits[provider])
		return err
	}

	rl.used[provider]++
	rl.total++
	rl.logger.Debug("completion usage", "provider", provider, "used", rl.used[provider], "total", rl.total)
	return nil
}

func (rl *Limiter) check(provider string) error {
	if limit := rl.limits[provider]; limit > 0 && rl.used[provider] >= limit {
		return fmt.Errorf("%s: %w (%d/%d)", provider, ErrLimitExceeded, rl.used[provider], limit)
	}
	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		return fmt.Errorf("total: %w (%d/%d)", ErrLimitExceeded, rl.total, rl.maxTotal)
	}
	return nil
}

// GetStats reports usage in the current window. It is served on /metrics.
func (rl *Limiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	stats := map[string]interface{}{
		"total_used":  rl.total,
		"total_limit": rl.maxTotal,
		"reset_time":  rl.resetTime.Format(time.RFC3339),
	}
	for provider, limit := range rl.limits {
		stats[provider+"_limit"] = limit
	}
	for provider, used := range rl.used {
		stats[provider+"_used"] = used
	}
	return stats
}

// checkReset clears counters once the window has passed. Caller holds mu.
func (rl *Limiter) checkReset() {
	now := rl.now()
	if now.After(rl.resetTime) {
		rl.logger.Info("resetting completion budgets", "total_used", rl.total)
		rl.used = make(map[string]int)
		rl.total = 0
		rl.resetTime = now.Add(rl.window)
	}
}

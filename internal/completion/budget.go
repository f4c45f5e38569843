package completion

import (
	"context"
	"sync"

	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/ratelimit"
)

// Budgeted charges every call against a daily request budget before
// passing it on. Text over the provider's input limit is rejected without
// being charged.
type Budgeted struct {
	next     Service
	provider string
	limiter  *ratelimit.Limiter
}

func WithBudget(next Service, provider string, limiter *ratelimit.Limiter) *Budgeted {
	return &Budgeted{next: next, provider: provider, limiter: limiter}
}

// inputLimited is implemented by providers that enforce a local character
// limit.
type inputLimited interface {
	InputLimit() int
}

func (b *Budgeted) charge(text string) error {
	if l, ok := b.next.(inputLimited); ok {
		if err := checkLength(text, l.InputLimit()); err != nil {
			return err
		}
	}
	return b.limiter.Use(b.provider)
}

func (b *Budgeted) Simplify(ctx context.Context, text string) (string, error) {
	if err := b.charge(text); err != nil {
		return "", err
	}
	return b.next.Simplify(ctx, text)
}

func (b *Budgeted) Moderate(ctx context.Context, text string) (model.Sensitivity, error) {
	if err := b.charge(text); err != nil {
		return 0, err
	}
	return b.next.Moderate(ctx, text)
}

func (b *Budgeted) Close() error {
	return Close(b.next)
}

// Switchable lets the provider be replaced while requests are in flight.
// Each call holds a read lock for its whole duration, so Swap returns only
// after the calls running on the previous service have finished.
type Switchable struct {
	mu  sync.RWMutex
	svc Service
}

func NewSwitchable(svc Service) *Switchable {
	return &Switchable{svc: svc}
}

// Swap installs svc and returns the previous service, which is idle by then
// and safe to close.
func (s *Switchable) Swap(svc Service) Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.svc
	s.svc = svc
	return old
}

func (s *Switchable) Simplify(ctx context.Context, text string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.svc == nil {
		return "", ErrNotConfigured
	}
	return s.svc.Simplify(ctx, text)
}

func (s *Switchable) Moderate(ctx context.Context, text string) (model.Sensitivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.svc == nil {
		return 0, ErrNotConfigured
	}
	return s.svc.Moderate(ctx, text)
}

func (s *Switchable) Close() error {
	return Close(s.Swap(nil))
}

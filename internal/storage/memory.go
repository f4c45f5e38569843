package storage

import (
	"context"
	"sync"
	"time"

	"github.com/deusflow/opbop/internal/model"
)

type memoryItem struct {
	bundle    model.CachedBundle
	expiresAt time.Time
}

// MemoryStore keeps bundles in process. A zero ttl keeps them forever.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	m := &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanupLoop()
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) (*model.CachedBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok || m.expired(item, time.Now()) {
		return nil, nil
	}
	b := item.bundle
	return &b, nil
}

// Put keeps the first live bundle stored under a key.
func (m *MemoryStore) Put(_ context.Context, bundle model.CachedBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if item, ok := m.items[bundle.URL]; ok && !m.expired(item, now) {
		return nil
	}
	item := memoryItem{bundle: bundle}
	if m.ttl > 0 {
		item.expiresAt = now.Add(m.ttl)
	}
	m.items[bundle.URL] = item
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) Stats(context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{"total_items": len(m.items)}, nil
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryStore) expired(item memoryItem, now time.Time) bool {
	return !item.expiresAt.IsZero() && now.After(item.expiresAt)
}

func (m *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, item := range m.items {
		if m.expired(item, now) {
			delete(m.items, key)
		}
	}
}

package cache

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/storage"
)

func bundle(url string) model.CachedBundle {
	return model.CachedBundle{
		URL:         url,
		TLDR:        "tldr",
		Simplified:  "simple",
		Sensitivity: model.SensitivityMild,
		Articles:    []model.RelatedArticle{},
		Reliability: model.ReliabilityUnknown,
	}
}

func TestRoundTripIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	g := New(storage.NewMemoryStore(0))

	if err := g.Insert(ctx, bundle("https://News.Example.com/Storm")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := g.FindByURL(ctx, "HTTPS://NEWS.EXAMPLE.COM/STORM")
	if err != nil {
		t.Fatalf("FindByURL: %v", err)
	}
	want := bundle("https://news.example.com/storm")
	if got == nil || !reflect.DeepEqual(*got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFindMissing(t *testing.T) {
	got, err := New(storage.NewMemoryStore(0)).FindByURL(context.Background(), "https://never.example.com")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v; want nil, nil", got, err)
	}
}

func TestNoStoreIsUnavailable(t *testing.T) {
	g := New(nil)
	if g.Available() {
		t.Fatal("gateway without store reported available")
	}
	_, err := g.FindByURL(context.Background(), "https://a.com")
	if !errors.Is(err, apperr.ErrCacheUnavailable) {
		t.Errorf("FindByURL err = %v", err)
	}
	if err := g.Insert(context.Background(), bundle("https://a.com")); !errors.Is(err, apperr.ErrCacheUnavailable) {
		t.Errorf("Insert err = %v", err)
	}
}

type closeTracker struct {
	storage.Store
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReconfigureSwapsAndClosesOld(t *testing.T) {
	ctx := context.Background()
	old := &closeTracker{Store: storage.NewMemoryStore(0)}
	g := New(old)
	if err := g.Insert(ctx, bundle("https://a.com")); err != nil {
		t.Fatal(err)
	}

	if err := g.Reconfigure(storage.NewMemoryStore(0)); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if !old.closed {
		t.Error("old store not closed")
	}
	got, err := g.FindByURL(ctx, "https://a.com")
	if err != nil || got != nil {
		t.Errorf("new store should be empty, got %v, %v", got, err)
	}
}

// slowStore holds Get open until release is closed and fails if the store
// was closed underneath it.
type slowStore struct {
	storage.Store
	started chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

func (s *slowStore) Get(ctx context.Context, url string) (*model.CachedBundle, error) {
	close(s.started)
	<-s.release
	if s.closed.Load() {
		return nil, errors.New("store closed during lookup")
	}
	return s.Store.Get(ctx, url)
}

func (s *slowStore) Close() error {
	s.closed.Store(true)
	return nil
}

func TestReconfigureWaitsForInflightLookup(t *testing.T) {
	old := &slowStore{
		Store:   storage.NewMemoryStore(0),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	g := New(old)

	lookup := make(chan error, 1)
	go func() {
		_, err := g.FindByURL(context.Background(), "https://a.com")
		lookup <- err
	}()
	<-old.started

	swapped := make(chan error, 1)
	go func() { swapped <- g.Reconfigure(storage.NewMemoryStore(0)) }()

	select {
	case <-swapped:
		t.Fatal("Reconfigure returned while a lookup was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(old.release)
	if err := <-lookup; err != nil {
		t.Fatalf("in-flight lookup failed: %v", err)
	}
	if err := <-swapped; err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if !old.closed.Load() {
		t.Error("old store not closed after reconfigure")
	}
}

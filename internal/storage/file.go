package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/deusflow/opbop/internal/model"
)

// FileStore keeps bundles in a JSON file, rewritten on every Put.
type FileStore struct {
	filePath string
	items    map[string]model.CachedBundle
	mu       sync.RWMutex
}

func NewFileStore(filePath string) (*FileStore, error) {
	fs := &FileStore{
		filePath: filePath,
		items:    make(map[string]model.CachedBundle),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var bundles []model.CachedBundle
	if err := json.Unmarshal(data, &bundles); err != nil {
		return fmt.Errorf("failed to unmarshal cache: %w", err)
	}
	for _, b := range bundles {
		if _, exists := fs.items[b.URL]; !exists {
			fs.items[b.URL] = b
		}
	}
	return nil
}

// save writes to a temp file and renames it over the old one. Caller holds mu.
func (fs *FileStore) save() error {
	bundles := make([]model.CachedBundle, 0, len(fs.items))
	for _, b := range fs.items {
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].URL < bundles[j].URL })

	data, err := json.MarshalIndent(bundles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.filePath), ".opbop-cache-*")
	if err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp.Name(), fs.filePath)
}

func (fs *FileStore) Get(_ context.Context, key string) (*model.CachedBundle, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	b, ok := fs.items[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (fs *FileStore) Put(_ context.Context, bundle model.CachedBundle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.items[bundle.URL]; exists {
		return nil
	}
	fs.items[bundle.URL] = bundle
	if err := fs.save(); err != nil {
		delete(fs.items, bundle.URL)
		return err
	}
	return nil
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	b, exists := fs.items[key]
	if !exists {
		return nil
	}
	delete(fs.items, key)
	if err := fs.save(); err != nil {
		fs.items[key] = b
		return err
	}
	return nil
}

func (fs *FileStore) Stats(context.Context) (map[string]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return map[string]int{"total_items": len(fs.items)}, nil
}

func (fs *FileStore) Close() error { return nil }

// Package storage persists cached article bundles. Every backend is safe for
// concurrent use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deusflow/opbop/internal/model"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// Store is a document store keyed by bundle URL. Get returns nil, nil for
// unknown keys. Put does not deduplicate; callers look up before inserting.
// Delete removes every bundle stored under key.
type Store interface {
	Get(ctx context.Context, key string) (*model.CachedBundle, error)
	Put(ctx context.Context, bundle model.CachedBundle) error
	Delete(ctx context.Context, key string) error
	Stats(ctx context.Context) (map[string]int, error)
	Close() error
}

// Open connects the backend named by driver.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(driver) {
	case "", "memory":
		return NewMemoryStore(0), nil
	case "file":
		return NewFileStore(dsn)
	case "sqlite":
		return NewSQLiteStore(ctx, dsn, logger)
	case "postgres":
		return NewPostgresStore(ctx, dsn, logger)
	case "redis":
		return NewRedisStore(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, driver)
	}
}

// MaskDSN hides credentials for logging.
func MaskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/opbop/internal/model"
)

const articlesTable = "articles"

// sqlStore appends one row per Put; Get returns the oldest row for a key.
type sqlStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func (s *sqlStore) initSchema(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) getQuery(key string) (string, []any, error) {
	return s.sb.Select("bundle").
		From(articlesTable).
		Where(sq.Eq{"url": key}).
		OrderBy("id").
		Limit(1).
		ToSql()
}

func (s *sqlStore) putQuery(bundle model.CachedBundle, data []byte) (string, []any, error) {
	createdAt := bundle.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return s.sb.Insert(articlesTable).
		Columns("url", "bundle", "created_at").
		Values(bundle.URL, string(data), createdAt).
		ToSql()
}

func (s *sqlStore) Get(ctx context.Context, key string) (*model.CachedBundle, error) {
	query, args, err := s.getQuery(key)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle: %w", err)
	}

	var b model.CachedBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &b, nil
}

func (s *sqlStore) Put(ctx context.Context, bundle model.CachedBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	query, args, err := s.putQuery(bundle, data)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert bundle: %w", err)
	}
	return nil
}

func (s *sqlStore) deleteQuery(key string) (string, []any, error) {
	return s.sb.Delete(articlesTable).Where(sq.Eq{"url": key}).ToSql()
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	query, args, err := s.deleteQuery(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	return nil
}

func (s *sqlStore) Stats(ctx context.Context) (map[string]int, error) {
	query, args, err := s.sb.Select("COUNT(*)", "COUNT(DISTINCT url)").From(articlesTable).ToSql()
	if err != nil {
		return nil, err
	}
	var total, distinct int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &distinct); err != nil {
		return nil, err
	}
	return map[string]int{"total_items": total, "distinct_urls": distinct}, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

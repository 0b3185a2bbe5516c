package store

import (
	"context"
	"encoding/json"
	"fmt"

	"sentinel-core/pkg/db"
)

// SQLite stores documents and collections in the local SQLite database.
type SQLite struct {
	database *db.Database
	q        *db.Queries
}

// NewSQLite wraps an opened, migrated database.
func NewSQLite(database *db.Database) *SQLite {
	return &SQLite{database: database, q: database.Queries()}
}

func (s *SQLite) Read(ctx context.Context, key string, dst any) (bool, error) {
	doc, err := s.q.GetDocument(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if doc == nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(doc.Value), dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLite) Write(ctx context.Context, key string, value any) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	if err := s.q.PutDocument(ctx, key, string(b)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, collection string, item any) error {
	b, err := encode(item)
	if err != nil {
		return err
	}
	if err := s.q.AppendItem(ctx, collection, string(b)); err != nil {
		return fmt.Errorf("append %s: %w", collection, err)
	}
	return nil
}

func (s *SQLite) Tail(ctx context.Context, collection string, limit int, dst any) error {
	items, err := s.q.ListItems(ctx, collection, limit)
	if err != nil {
		return fmt.Errorf("tail %s: %w", collection, err)
	}
	raw := make([][]byte, len(items))
	for i, it := range items {
		raw[i] = []byte(it.Item)
	}
	return decodeItems(raw, dst)
}

func (s *SQLite) Close() error { return s.database.Close() }

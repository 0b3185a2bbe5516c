package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrKeyRequired is returned when a document or collection name is empty.
var ErrKeyRequired = errors.New("key is required")

// Document is a JSON value stored under a unique key.
type Document struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Item is one entry of an append-only collection.
type Item struct {
	ID         int64
	Collection string
	Item       string
	CreatedAt  time.Time
}

// Queries groups the statements used by the persistent store.
type Queries struct {
	db *sql.DB
}

// GetDocument returns nil when the key does not exist.
func (q *Queries) GetDocument(ctx context.Context, key string) (*Document, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	var d Document
	err := q.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM documents WHERE key = ?`, key,
	).Scan(&d.Key, &d.Value, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// PutDocument inserts or replaces the value stored under key.
func (q *Queries) PutDocument(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrKeyRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// AppendItem adds an entry to the end of a collection.
func (q *Queries) AppendItem(ctx context.Context, collection, item string) error {
	if collection == "" {
		return ErrKeyRequired
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO collection_items (collection, item) VALUES (?, ?)`,
		collection, item)
	return err
}

// ListItems returns up to limit most recent entries of a collection, oldest first.
// A non-positive limit returns the whole collection.
func (q *Queries) ListItems(ctx context.Context, collection string, limit int) ([]Item, error) {
	if collection == "" {
		return nil, ErrKeyRequired
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, collection, item, created_at FROM (
			SELECT id, collection, item, created_at
			FROM collection_items
			WHERE collection = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, collection, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Collection, &it.Item, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountItems reports the size of a collection.
func (q *Queries) CountItems(ctx context.Context, collection string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_items WHERE collection = ?`, collection,
	).Scan(&n)
	return n, err
}

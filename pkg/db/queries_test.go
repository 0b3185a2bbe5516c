package db

import (
	"context"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestDocumentsUpsert(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	doc, err := q.GetDocument(ctx, "risk.state")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected missing document, got %+v", doc)
	}

	if err := q.PutDocument(ctx, "risk.state", `{"a":1}`); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if err := q.PutDocument(ctx, "risk.state", `{"a":2}`); err != nil {
		t.Fatalf("PutDocument overwrite: %v", err)
	}

	doc, err = q.GetDocument(ctx, "risk.state")
	if err != nil || doc == nil {
		t.Fatalf("GetDocument after put: %v %v", doc, err)
	}
	if doc.Value != `{"a":2}` {
		t.Errorf("expected overwritten value, got %s", doc.Value)
	}
}

func TestCollectionsAppendAndList(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3", "4"} {
		if err := q.AppendItem(ctx, "logs.trades", v); err != nil {
			t.Fatalf("AppendItem: %v", err)
		}
	}
	if err := q.AppendItem(ctx, "other", "x"); err != nil {
		t.Fatalf("AppendItem other: %v", err)
	}

	t.Run("limit keeps newest in order", func(t *testing.T) {
		items, err := q.ListItems(ctx, "logs.trades", 2)
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if len(items) != 2 || items[0].Item != "3" || items[1].Item != "4" {
			t.Fatalf("unexpected items: %+v", items)
		}
	})

	t.Run("no limit returns all", func(t *testing.T) {
		items, err := q.ListItems(ctx, "logs.trades", 0)
		if err != nil {
			t.Fatalf("ListItems: %v", err)
		}
		if len(items) != 4 {
			t.Fatalf("expected 4 items, got %d", len(items))
		}
	})

	n, err := q.CountItems(ctx, "other")
	if err != nil || n != 1 {
		t.Fatalf("CountItems: %d %v", n, err)
	}
}

func TestEmptyKeysRejected(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	if _, err := q.GetDocument(ctx, ""); err != ErrKeyRequired {
		t.Errorf("expected ErrKeyRequired, got %v", err)
	}
	if err := q.AppendItem(ctx, "", "x"); err != ErrKeyRequired {
		t.Errorf("expected ErrKeyRequired, got %v", err)
	}
}

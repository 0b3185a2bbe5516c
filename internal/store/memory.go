package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory keeps everything in process memory. Used by tests and dry runs.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	lists map[string][][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string][]byte),
		lists: make(map[string][][]byte),
	}
}

func (m *Memory) Read(_ context.Context, key string, dst any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Write(_ context.Context, key string, value any) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Append(_ context.Context, collection string, item any) error {
	b, err := encode(item)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.lists[collection] = append(m.lists[collection], b)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Tail(_ context.Context, collection string, limit int, dst any) error {
	m.mu.RLock()
	items := m.lists[collection]
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	cp := make([][]byte, len(items))
	copy(cp, items)
	m.mu.RUnlock()
	return decodeItems(cp, dst)
}

// Len reports the size of a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lists[collection])
}

func (m *Memory) Close() error { return nil }

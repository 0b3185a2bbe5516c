// Package store persists JSON documents and append-only collections.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Well-known keys and collections.
const (
	KeyRiskState       = "risk.state"
	KeyStrategies      = "config.strategies"
	KeyTokens          = "config.tokens"
	KeyRecentTrades    = "trades"
	CollectionTradeLog = "logs.trades"
)

// Store is the persistence capability used by the risk gate, the strategy
// loader and the trade log. Values are JSON encoded.
type Store interface {
	// Read decodes the value stored under key into dst. found is false when
	// the key is absent.
	Read(ctx context.Context, key string, dst any) (found bool, err error)
	Write(ctx context.Context, key string, value any) error
	Append(ctx context.Context, collection string, item any) error
	// Tail decodes up to limit most recent collection entries, oldest first,
	// into dst which must be a pointer to a slice.
	Tail(ctx context.Context, collection string, limit int, dst any) error
	Close() error
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

// decodeItems joins raw JSON items into an array and decodes it into dst.
func decodeItems(items [][]byte, dst any) error {
	buf := make([]byte, 0, 2+len(items)*64)
	buf = append(buf, '[')
	for i, it := range items {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, it...)
	}
	buf = append(buf, ']')
	if err := json.Unmarshal(buf, dst); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}
	return nil
}

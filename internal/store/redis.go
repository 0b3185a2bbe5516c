package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores documents as plain keys and collections as lists.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr, password string, dbIndex int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbIndex,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Read(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Write(ctx context.Context, key string, value any) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), b, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Append(ctx context.Context, collection string, item any) error {
	b, err := encode(item)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, r.key(collection), b).Err(); err != nil {
		return fmt.Errorf("append %s: %w", collection, err)
	}
	return nil
}

func (r *Redis) Tail(ctx context.Context, collection string, limit int, dst any) error {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := r.client.LRange(ctx, r.key(collection), start, -1).Result()
	if err != nil {
		return fmt.Errorf("tail %s: %w", collection, err)
	}
	raw := make([][]byte, len(vals))
	for i, v := range vals {
		raw[i] = []byte(v)
	}
	return decodeItems(raw, dst)
}

func (r *Redis) Close() error { return r.client.Close() }

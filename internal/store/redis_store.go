package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore keeps results under "<game>:result:<id>" so several games
// can share one server.
func NewRedisStore(addr, game string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: game + ":result:",
	}
}

func (r *RedisStore) GetResult(ctx context.Context, requestID string) (Result, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+requestID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, false, err
	}
	return result, true, nil
}

func (r *RedisStore) MarkProcessed(ctx context.Context, requestID string, result Result, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+requestID, raw, ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

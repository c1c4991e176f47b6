package guard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FlagValue is stored under a completed request's idempotency key.
const FlagValue = "success"

// FlagStore records requests that completed recently.
type FlagStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Mark(ctx context.Context, name string, ttl time.Duration) error
}

// RedisFlagStore keeps flags as plain string keys under a prefix.
type RedisFlagStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisFlagStore(rdb redis.Cmdable, prefix string) *RedisFlagStore {
	return &RedisFlagStore{rdb: rdb, prefix: prefix}
}

func (s *RedisFlagStore) Key(name string) string { return s.prefix + name }

func (s *RedisFlagStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.Key(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisFlagStore) Mark(ctx context.Context, name string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.Key(name), FlagValue, ttl).Err()
}

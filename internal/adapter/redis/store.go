package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/pscheid92/wastepoints/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// KVStore keeps session state in Redis so several clients on one machine
// (CLI, local view server) share a login.
type KVStore struct {
	rdb    goredis.Cmdable
	prefix string
}

var _ domain.KeyValueStore = (*KVStore)(nil)

func NewKVStore(rdb goredis.Cmdable, prefix string) *KVStore {
	return &KVStore{rdb: rdb, prefix: prefix}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

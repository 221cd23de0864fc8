package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCooldownStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCooldownStore(client redis.UniversalClient, prefix string) *RedisCooldownStore {
	if prefix == "" {
		prefix = "cooldown"
	}
	return &RedisCooldownStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisCooldownStore) Acquire(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	if s.client == nil || ttl <= 0 {
		return true, nil
	}
	return s.client.SetNX(ctx, s.dataKey(namespace, key), "1", ttl).Result()
}

func (s *RedisCooldownStore) Release(ctx context.Context, namespace, key string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.dataKey(namespace, key)).Err()
}

// Keys are digests so raw emails never land in Redis.
func (s *RedisCooldownStore) dataKey(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%s:%s", s.prefix, strings.ToLower(strings.TrimSpace(namespace)), hex.EncodeToString(sum[:]))
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatusCacheStore shares the status cache across replicas so any
// instance can serve a poller regardless of which one handled the signer.
type RedisStatusCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStatusCacheStore(client redis.UniversalClient, prefix string) *RedisStatusCacheStore {
	if prefix == "" {
		prefix = "sign_status"
	}
	return &RedisStatusCacheStore{client: client, prefix: prefix}
}

func (s *RedisStatusCacheStore) key(sessionRef string) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionRef)
}

func (s *RedisStatusCacheStore) Get(ctx context.Context, sessionRef string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	val, err := s.client.Get(ctx, s.key(sessionRef)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStatusCacheStore) Set(ctx context.Context, sessionRef string, value []byte, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(sessionRef), value, ttl).Err()
}

func (s *RedisStatusCacheStore) Invalidate(ctx context.Context, sessionRef string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.key(sessionRef)).Err()
}

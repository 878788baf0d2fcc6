package service

import (
	"context"
	"sync"
	"time"
)

// StatusCacheStore absorbs the polling read load on GetStatus. Entries are
// opaque serialized snapshots keyed by sessionRef; every status transition
// invalidates the key, so stale reads are bounded by the transition paths,
// not the TTL.
type StatusCacheStore interface {
	Get(ctx context.Context, sessionRef string) ([]byte, bool, error)
	Set(ctx context.Context, sessionRef string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, sessionRef string) error
}

type NoopStatusCacheStore struct{}

func NewNoopStatusCacheStore() *NoopStatusCacheStore {
	return &NoopStatusCacheStore{}
}

func (s *NoopStatusCacheStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopStatusCacheStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopStatusCacheStore) Invalidate(context.Context, string) error {
	return nil
}

type statusCacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// InMemoryStatusCacheStore is the single-instance fallback when redis is not
// configured.
type InMemoryStatusCacheStore struct {
	mu      sync.RWMutex
	entries map[string]statusCacheEntry
}

func NewInMemoryStatusCacheStore() *InMemoryStatusCacheStore {
	return &InMemoryStatusCacheStore{entries: map[string]statusCacheEntry{}}
}

func (s *InMemoryStatusCacheStore) Get(_ context.Context, sessionRef string) ([]byte, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.entries[sessionRef]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sessionRef)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

func (s *InMemoryStatusCacheStore) Set(_ context.Context, sessionRef string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.entries[sessionRef] = statusCacheEntry{payload: append([]byte(nil), value...), expiresAt: time.Now().UTC().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStatusCacheStore) Invalidate(_ context.Context, sessionRef string) error {
	s.mu.Lock()
	delete(s.entries, sessionRef)
	s.mu.Unlock()
	return nil
}

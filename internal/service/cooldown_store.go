package service

import (
	"context"
	"sync"
	"time"
)

// CooldownStore admits at most one action per key within a ttl window.
// Acquire reports whether the caller holds the slot.
type CooldownStore interface {
	Acquire(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, namespace, key string) error
}

type NoopCooldownStore struct{}

func NewNoopCooldownStore() *NoopCooldownStore {
	return &NoopCooldownStore{}
}

func (s *NoopCooldownStore) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (s *NoopCooldownStore) Release(context.Context, string, string) error {
	return nil
}

type InMemoryCooldownStore struct {
	mu    sync.Mutex
	store map[string]map[string]time.Time
	now   func() time.Time
}

func NewInMemoryCooldownStore() *InMemoryCooldownStore {
	return &InMemoryCooldownStore{
		store: make(map[string]map[string]time.Time),
		now:   time.Now,
	}
}

func (s *InMemoryCooldownStore) Acquire(_ context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.store[namespace]
	if !ok {
		ns = make(map[string]time.Time)
		s.store[namespace] = ns
	}
	if expiresAt, ok := ns[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	for k, expiresAt := range ns {
		if !now.Before(expiresAt) {
			delete(ns, k)
		}
	}
	ns[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryCooldownStore) Release(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.store[namespace]; ok {
		delete(ns, key)
		if len(ns) == 0 {
			delete(s.store, namespace)
		}
	}
	return nil
}

package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUStore is an in-process cache with a size bound and per-entry TTL.
type LRUStore struct {
	lru *expirable.LRU[string, []float32]
}

// NewLRUStore creates an LRU store. A ttl of zero keeps entries until evicted.
func NewLRUStore(size int, ttl time.Duration) *LRUStore {
	if size <= 0 {
		size = 1
	}
	return &LRUStore{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

// Get returns a copy of the cached vector.
func (s *LRUStore) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneVector(vec), true, nil
}

// Set stores a copy of vec.
func (s *LRUStore) Set(_ context.Context, key string, vec []float32) error {
	s.lru.Add(key, cloneVector(vec))
	return nil
}

// Len returns the number of cached entries.
func (s *LRUStore) Len() int {
	return s.lru.Len()
}

// Close purges the cache.
func (s *LRUStore) Close() error {
	s.lru.Purge()
	return nil
}

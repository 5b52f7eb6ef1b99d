package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// keyPrefix namespaces cache entries in a shared Redis.
const keyPrefix = "sercha-rag:embedding:"

// RedisConfig configures a Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore shares cached vectors between processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis store. It does not dial until first use.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      1,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 256 * time.Millisecond,
		DialTimeout:     2 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
	})
	return &RedisStore{client: client, ttl: cfg.TTL}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get fetches and decodes a vector.
func (s *RedisStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	vec, err := domain.DecodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set encodes and stores a vector with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, key string, vec []float32) error {
	if err := s.client.Set(ctx, keyPrefix+key, domain.EncodeVector(vec), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

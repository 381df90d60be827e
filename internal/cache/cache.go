// Package cache is an optional redis-backed byte cache for routing service
// responses. A Store built without an address is a permanent miss.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "dustsweeper:"

type Config struct {
	Addr   string
	Prefix string
}

type Store struct {
	client *redis.Client
	prefix string
}

// New connects to redis and pings it. An empty address returns a disabled
// store rather than an error.
func New(ctx context.Context, cfg Config) (*Store, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &Store{prefix: prefix}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) Enabled() bool { return s != nil && s.client != nil }

// Get returns the cached value and whether it was present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}

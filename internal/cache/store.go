// Package cache holds short-lived values such as the latest oracle price.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ibrl/internal/config"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New picks the backend named by cfg.Driver. Redis without an address falls back to memory.
func New(cfg config.CacheConfig, logger *zap.Logger) Store {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			if logger != nil {
				logger.Warn("cache.driver=redis without redis_addr; using memory")
			}
			return NewMemoryStore()
		}
		return NewRedisStore(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, "ibrl:")
	default:
		return NewMemoryStore()
	}
}

func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	if s == nil {
		return false, nil
	}
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// A value we cannot read is treated as a miss.
		return false, nil
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}

package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces winboard keys in a shared Redis.
const DefaultRedisPrefix = "winboard:"

// RedisConfig holds Redis connection settings for [NewRedis].
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int

	// Prefix is prepended to the storage key. Defaults to [DefaultRedisPrefix].
	Prefix string

	// Key is the storage key. Defaults to [DefaultKey].
	Key string

	// TTL expires the stored token. Zero keeps it until cleared.
	TTL time.Duration
}

// Redis stores the token as a string key in Redis.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisWithClient(rdb, cfg.Prefix, cfg.Key, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client. Empty prefix and key select
// the defaults. Closing the returned store closes rdb.
func NewRedisWithClient(rdb *redis.Client, prefix, key string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if key == "" {
		key = DefaultKey
	}
	return &Redis{rdb: rdb, key: prefix + key, ttl: ttl}
}

// Key returns the full Redis key, prefix included.
func (r *Redis) Key() string {
	return r.key
}

// Load returns the stored token, or "" when the key is absent or expired.
func (r *Redis) Load(ctx context.Context) (string, error) {
	token, err := r.rdb.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return token, nil
}

// Save stores token, applying the configured TTL.
func (r *Redis) Save(ctx context.Context, token string) error {
	if err := r.rdb.Set(ctx, r.key, token, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Clear deletes the key.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

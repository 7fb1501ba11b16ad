package nonce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Redis implementation
// ---------------------------------------------------------------------------

const redisKeyPrefix = "logi-track:nonce:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore keeps nonces as keys with a native TTL, so it needs no janitor.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) key(nonce string) string {
	return redisKeyPrefix + nonce
}

func (r *RedisStore) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be > 0")
	}
	ok, err := r.client.SetNX(ctx, r.key(nonce), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("nonce already exists: %s", nonce)
	}
	return nil
}

// Consume deletes the key. DEL is atomic, so only one caller sees a count of 1.
func (r *RedisStore) Consume(ctx context.Context, nonce string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("redis consume nonce: %w", err)
	}
	if n == 0 {
		return false, &NonceMissingError{Nonce: nonce}
	}
	return true, nil
}

func (r *RedisStore) Exists(ctx context.Context, nonce string) bool {
	n, err := r.client.Exists(ctx, r.key(nonce)).Result()
	return err == nil && n > 0
}

func (r *RedisStore) ExpireNonces(ctx context.Context) error {
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

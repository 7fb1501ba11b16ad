package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"logi-track/internal/config"
	"logi-track/internal/storage"
)

// Number of random bytes. 16 → 128‑bit
const NONCE_SIZE = 16

// How often expired nonces are pruned from stores without native TTLs.
const JanitorInterval = time.Minute

type NonceStoreType string

// Supported nonce stores.
const (
	Memory NonceStoreType = "memory"
	SQL    NonceStoreType = "sql"
	Redis  NonceStoreType = "redis"
)

type NonceMissingError struct {
	Nonce string
}

// Error implements the error interface.
func (e *NonceMissingError) Error() string {
	return fmt.Sprintf("nonce not found: %s", e.Nonce)
}

type NonceExpiredError struct {
	Nonce  string
	Expiry time.Time
}

// Error implements the error interface.
func (e *NonceExpiredError) Error() string {
	return fmt.Sprintf("nonce expired: %s (expiry: %s)", e.Nonce, e.Expiry)
}

type Store interface {
	// stores a nonce with a TTL.
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	// verifies and deletes the nonce.
	// Returns true if the nonce existed (valid request), false otherwise.
	Consume(ctx context.Context, nonce string) (bool, error)

	Exists(ctx context.Context, nonce string) bool

	ExpireNonces(ctx context.Context) error

	Close() error
}

func generateNonceToken() (string, error) {
	b := make([]byte, NONCE_SIZE)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New creates a nonce, stores it with ttl and returns it.
func New(ctx context.Context, store Store, ttl time.Duration) (string, error) {
	nonce, err := generateNonceToken()
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, nonce, ttl); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}
	return nonce, nil
}

// NewStore builds the Store named by cfg.NonceStore. The sql store keeps
// nonces through provider. Janitors are started for stores that need them.
func NewStore(ctx context.Context, cfg *config.Config, provider storage.Provider) (Store, error) {
	var store Store
	switch NonceStoreType(cfg.NonceStore) {
	case Memory, "":
		ms := NewMemoryStore()
		go ms.janitor(JanitorInterval)
		store = ms
	case SQL:
		if provider == nil {
			return nil, fmt.Errorf("sql nonce store requires a storage provider")
		}
		ss := NewSQLNonceStore(provider)
		go ss.janitor(JanitorInterval)
		store = ss
	case Redis:
		client, err := Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		store = NewRedisStore(client)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.NonceStore)
	}

	slog.Info("Initialized nonce store", "type", cfg.NonceStore)
	return store, nil
}

// Package blobstore keeps the files behind shipment documents.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"logi-track/internal/config"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store is a flat key/value blob store.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL returns a direct download URL for key, or "" when blobs are
	// only served through the API.
	URL(ctx context.Context, key string) (string, error)
}

// How long presigned download URLs stay valid.
const URLExpiry = 15 * time.Minute

// New builds the store selected by documents.store.
func New(ctx context.Context, cfg *config.Documents) (Store, error) {
	switch cfg.Store {
	case "", "local":
		return NewLocalStore(cfg.Local.Path)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown document store %q", cfg.Store)
	}
}

// Key builds a storage key for a new document of a shipment.
func Key(shipmentID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("shipments/%s/%s%s", shipmentID, uuid.NewString(), ext)
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

// Package objectstore persists rendered label artifacts.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"backoffice/internal/config"
	"backoffice/internal/core/apperror"
)

// Store is a flat key/value blob store.
type Store interface {
	WriteFile(ctx context.Context, key string, data []byte, contentType string) error
	// ReadFile opens key for reading. The caller closes the reader.
	ReadFile(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "local":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg.Bucket, cfg.Region, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ValidateKey rejects keys that could escape the store namespace.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return apperror.NewValidation("invalid artifact key").WithDetail("key", key)
	}
	if clean := path.Clean(key); clean != key || clean == "." || strings.HasPrefix(clean, "..") {
		return apperror.NewValidation("invalid artifact key").WithDetail("key", key)
	}
	return nil
}

func notFound(key string) error {
	return apperror.NewNotFound("artifact", key)
}

// Package storage archives uploaded documents so ingestion can run, and re-run, from the original bytes.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/google/uuid"
)

// Store is a flat key/value blob store
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewStore returns the backend selected by cfg.Storage.Backend
func NewStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) (Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", config.StorageLocal:
		return NewLocalStore(cfg.Storage.LocalDir, logger)
	case config.StorageGCS:
		return NewGCSStore(ctx, cfg.Storage.GCSBucket, logger)
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown storage backend %q", cfg.Storage.Backend)
	}
}

// UploadKey builds a unique key for an uploaded file, keeping only its base name
func UploadKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join("uploads", uuid.NewString(), name)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid storage key %q", key)
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// LocalStore keeps blobs as files under a root directory
type LocalStore struct {
	root   string
	logger *observability.Logger
}

// NewLocalStore creates root if needed
func NewLocalStore(root string, logger *observability.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create storage directory %s: %v", root, err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data atomically by renaming a temp file into place
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (err error) {
	_, span := observability.TraceStorageFunction(ctx, "local_put",
		attribute.String("storage.key", key),
		attribute.Int("storage.bytes", len(data)),
	)
	defer observability.FinishSpan(span, &err)

	if err = validateKey(key); err != nil {
		return err
	}

	target := s.path(key)
	if err = os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create directory: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create temp file: %v", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to write %s: %v", key, err)
	}
	if err = tmp.Close(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to close %s: %v", key, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to store %s: %v", key, err)
	}
	return nil
}

// Get reads a blob; a missing key is ErrRecordNotFound
func (s *LocalStore) Get(ctx context.Context, key string) (result0 []byte, err error) {
	_, span := observability.TraceStorageFunction(ctx, "local_get", attribute.String("storage.key", key))
	defer observability.FinishSpan(span, &err)

	if err = validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "stored file %s not found", key)
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read %s: %v", key, err)
	}
	return data, nil
}

// Delete removes a blob; deleting a missing key is not an error
func (s *LocalStore) Delete(ctx context.Context, key string) (err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "local_delete", attribute.String("storage.key", key))
	defer observability.FinishSpan(span, &err)

	if err = validateKey(key); err != nil {
		return err
	}
	if err = os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to delete %s: %v", key, err)
	}
	s.logger.Debug(ctx, "Deleted stored file", map[string]interface{}{"key": key})
	return nil
}

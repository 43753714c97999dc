package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"

	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket. Credentials come from the environment.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *observability.Logger
}

// NewGCSStore opens a client for bucket
func NewGCSStore(ctx context.Context, bucket string, logger *observability.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "gcs bucket is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to create storage client: %v", err)
	}
	return &GCSStore{client: client, bucket: bucket, logger: logger}, nil
}

// Put uploads data, setting the content type from the key's extension
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "gcs_put",
		attribute.String("storage.bucket", s.bucket),
		attribute.String("storage.key", key),
		attribute.Int("storage.bytes", len(data)),
	)
	defer observability.FinishSpan(span, &err)

	if err = validateKey(key); err != nil {
		return err
	}

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.ContentType = ct
	}
	if _, err = w.Write(data); err != nil {
		_ = w.Close()
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to write data to GCS: %v", err)
	}
	if err = w.Close(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to close GCS writer: %v", err)
	}
	return nil
}

// Get downloads a blob; a missing object is ErrRecordNotFound
func (s *GCSStore) Get(ctx context.Context, key string) (result0 []byte, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "gcs_get",
		attribute.String("storage.bucket", s.bucket),
		attribute.String("storage.key", key),
	)
	defer observability.FinishSpan(span, &err)

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "stored file %s not found", key)
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to open %s: %v", key, err)
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close GCS reader", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to read %s: %v", key, err)
	}
	return data, nil
}

// Delete removes an object; a missing object is not an error
func (s *GCSStore) Delete(ctx context.Context, key string) (err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "gcs_delete",
		attribute.String("storage.bucket", s.bucket),
		attribute.String("storage.key", key),
	)
	defer observability.FinishSpan(span, &err)

	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to delete %s: %v", key, err)
	}
	return nil
}

// Close releases the client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

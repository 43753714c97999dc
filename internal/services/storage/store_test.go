package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false}))
	require.NoError(t, err)
	return store
}

func TestLocalStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := UploadKey("playbook.pdf")

	require.NoError(t, store.Put(ctx, key, []byte("%PDF-1.4 body")))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))

	// Deleting twice is fine
	assert.NoError(t, store.Delete(ctx, key))
}

func TestLocalStore_Overwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "uploads/a/notes.txt", []byte("one")))
	require.NoError(t, store.Put(ctx, "uploads/a/notes.txt", []byte("two")))

	data, err := store.Get(ctx, "uploads/a/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Join(store.root, "uploads", "a"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"", "/etc/passwd", "uploads/../../secret"} {
		err := store.Put(context.Background(), key, []byte("x"))
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput), "key %q", key)
	}
}

func TestUploadKey(t *testing.T) {
	key := UploadKey("../../Q3 Playbook.pdf")
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "uploads", parts[0])
	assert.Len(t, parts[1], 36)
	assert.Equal(t, "Q3 Playbook.pdf", parts[2])

	assert.NotEqual(t, UploadKey("a.pdf"), UploadKey("a.pdf"))
	assert.True(t, strings.HasSuffix(UploadKey(`C:\docs\deck.pdf`), "/deck.pdf"))
}

func TestNewStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: "s3"}}
	_, err := NewStore(context.Background(), cfg, observability.NewLogger(&config.OpenTelemetryConfig{}))
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

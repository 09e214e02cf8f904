package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, store.Set(ctx, "a", []byte(`"one"`)))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"one"`), got)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.True(t, shared.IsNotFound(err))

	assert.NoError(t, store.Close())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := []byte(`"value"`)
	require.NoError(t, store.Set(ctx, "a", original))
	original[1] = 'X'

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"value"`), got)

	// Mutating what Get returned must not touch the stored copy either.
	got[1] = 'Y'
	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"value"`), again)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeySettings, []byte(`{"theme":"dark"}`)))
	require.NoError(t, store.Set(ctx, KeyLearning, []byte(`{"words_learned":12}`)))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, KeySettings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(got))

	keys, err := reopened.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestFileStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "a", []byte(`1`)))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "never-there"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = reopened.Get(ctx, "a")
	assert.True(t, shared.IsNotFound(err))
}

func TestFileStore_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewFileStore(path)
	assert.True(t, shared.IsValidation(err))
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "a", []byte(`1`)))
	require.NoError(t, store.Set(ctx, "b", []byte(`2`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

type exportDoc struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

func TestEnvelope_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, SaveJSON(ctx, store, KeySettings, exportDoc{Theme: "dark", Language: "zh-TW"}))

	raw, err := store.Get(ctx, KeySettings)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":"`+SchemaVersion+`"`)

	var out exportDoc
	found, err := LoadJSON(ctx, store, KeySettings, &out, logger.Discard())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, exportDoc{Theme: "dark", Language: "zh-TW"}, out)
}

func TestEnvelope_MissingKey(t *testing.T) {
	var out exportDoc
	found, err := LoadJSON(context.Background(), NewMemoryStore(), KeySettings, &out, logger.Discard())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEnvelope_MergesOntoDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// A document saved before the language field existed.
	require.NoError(t, store.Set(ctx, KeySettings, []byte(`{"data":{"theme":"light"},"version":"0.9.0"}`)))

	out := exportDoc{Theme: "auto", Language: "zh-TW"}
	found, err := LoadJSON(ctx, store, KeySettings, &out, logger.Discard())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "light", out.Theme)
	assert.Equal(t, "zh-TW", out.Language)
}

func TestEnvelope_RejectsCorruptDocument(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeySettings, []byte("garbage")))

	var out exportDoc
	_, err := LoadJSON(ctx, store, KeySettings, &out, logger.Discard())
	assert.True(t, shared.IsValidation(err))
}

type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, shared.NewDomainError("storage", "Get", shared.ErrStorage, "connection reset")
	}
	return f.MemoryStore.Get(ctx, key)
}

func TestResilientStore_RetriesTransientFailures(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	ctx := context.Background()
	require.NoError(t, inner.Set(ctx, "a", []byte(`1`)))

	store := NewResilientStore(inner, "test", logger.Discard())
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`1`), got)
	assert.Equal(t, 3, inner.calls)
}

func TestResilientStore_DoesNotRetryMissingKeys(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore()}
	store := NewResilientStore(inner, "test", logger.Discard())

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 1, inner.calls)
}

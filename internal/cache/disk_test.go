package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 0)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := store.Contains(ctx, "2401.00001")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Get(ctx, "2401.00001")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "2401.00001", []byte(`{"fields":{"Runtime":"Partial"}}`)))
	ok, err = store.Contains(ctx, "2401.00001")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := store.Get(ctx, "2401.00001")
	require.NoError(t, err)
	require.JSONEq(t, `{"fields":{"Runtime":"Partial"}}`, string(got))

	require.Error(t, store.Set(ctx, "bad", []byte("not json")))
}

func TestDiskStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := NewDiskStore(dir, 0)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), "k", []byte(`{"a":1}`)))

	c := New[map[string]int](mustDisk(t, dir))
	v, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (map[string]int, error) {
		t.Fatal("compute must not run for a stored key")
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, v["a"])
}

func TestDiskStoreEvictsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()
	for _, k := range []string{"old", "mid"} {
		require.NoError(t, store.Set(ctx, k, []byte(`{"payload":"xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"}`)))
	}
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(store.path("old"), past, past))

	info, err := os.Stat(store.path("mid"))
	require.NoError(t, err)
	store.sizeLimit = info.Size()*2 + info.Size()/2
	require.NoError(t, store.Set(ctx, "new", []byte(`{"payload":"xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"}`)))

	ok, _ := store.Contains(ctx, "old")
	require.False(t, ok, "oldest entry should be evicted")
	for _, k := range []string{"mid", "new"} {
		ok, _ := store.Contains(ctx, k)
		require.True(t, ok, k)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "tmp-*"))
	require.Empty(t, matches)
}

func mustDisk(t *testing.T, dir string) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(dir, 0)
	require.NoError(t, err)
	return s
}

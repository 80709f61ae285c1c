package blob_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/blob"
	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
)

func newTestFile(t *testing.T) *cache.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.cache")
	f, err := cache.Create(path, cache.Options{DomVersion: 1, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAddGetRoundTrip(t *testing.T) {
	c := blob.New(newTestFile(t), base.NoopLogger{})
	require.NoError(t, c.Add("cover.jpg", []byte("fake jpeg bytes")))

	r, err := c.Get("cover.jpg")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("fake jpeg bytes"), got)
	require.True(t, c.Has("cover.jpg"))
}

func TestAddIsNoOpForIdenticalContent(t *testing.T) {
	c := blob.New(newTestFile(t), base.NoopLogger{})
	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, c.Add("big.bin", data))
	require.NoError(t, c.Add("big.bin", data))

	r, err := c.Get("big.bin")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRemove(t *testing.T) {
	c := blob.New(newTestFile(t), base.NoopLogger{})
	require.NoError(t, c.Add("x", []byte("y")))
	c.Remove("x")
	require.False(t, c.Has("x"))
	_, err := c.Get("x")
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.cache")
	f, err := cache.Create(path, cache.Options{DomVersion: 1, Logger: base.NoopLogger{}})
	require.NoError(t, err)

	c := blob.New(f, base.NoopLogger{})
	require.NoError(t, c.Add("a.ttf", []byte("font bytes")))
	require.NoError(t, c.Save())
	require.NoError(t, f.Flush(true, base.NoDeadline()))
	require.NoError(t, f.Close())

	f2, err := cache.Open(path, cache.Options{DomVersion: 1, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	defer f2.Close()
	c2 := blob.New(f2, base.NoopLogger{})
	require.NoError(t, c2.Load())

	r, err := c2.Get("a.ttf")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("font bytes"), got)
}

package cache

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/internal/base"
)

func newTestFile(t *testing.T, ct CompressionType) (*File, *memStream) {
	t.Helper()
	stream := &memStream{}
	f, err := CreateStream(stream, Options{DomVersion: 42, Compress: ct, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	return f, stream
}

func TestWriteReadRoundTrip(t *testing.T) {
	f, _ := newTestFile(t, CompressionNone)
	payload := []byte("three paragraphs of xhtml content")
	require.NoError(t, f.Write(BlockTypeTextData, 7, payload, false))
	got, err := f.Read(BlockTypeTextData, 7)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestCompressionRoundTrip covers end-to-end scenario 6: write 100KB of
// random bytes compressed, read back, bytes equal and both hashes match.
func TestCompressionRoundTrip(t *testing.T) {
	for _, ct := range []CompressionType{CompressionZlib, CompressionZstd} {
		ct := ct
		t.Run(ct.String(), func(t *testing.T) {
			f, _ := newTestFile(t, ct)
			payload := make([]byte, 100*1024)
			rand.New(rand.NewSource(1)).Read(payload)
			require.NoError(t, f.Write(BlockTypeTextData, 7, payload, true))

			got, err := f.Read(BlockTypeTextData, 7)
			require.NoError(t, err)
			require.Equal(t, payload, got)

			e := f.index.find(BlockTypeTextData, 7)
			require.NotNil(t, e)
			require.True(t, e.Compressed())
			require.Equal(t, hashBytes(payload), e.DataHash)
		})
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	f, _ := newTestFile(t, CompressionNone)
	payload := []byte("hamlet word count data")
	require.NoError(t, f.Write(BlockTypeTextData, 1, payload, false))
	before := *f.index.find(BlockTypeTextData, 1)
	require.NoError(t, f.Write(BlockTypeTextData, 1, payload, false))
	after := *f.index.find(BlockTypeTextData, 1)
	require.Equal(t, before, after)
}

// TestOpenReSaveByteIdentical covers end-to-end scenario 1.
func TestOpenReSaveByteIdentical(t *testing.T) {
	f, stream := newTestFile(t, CompressionZlib)
	require.NoError(t, f.Write(BlockTypeElemData, 0, []byte("<p>a</p><p>b</p><p>c</p>"), true))
	require.NoError(t, f.Write(BlockTypeTextData, 0, []byte("abc"), false))
	require.NoError(t, f.Flush(true, base.NoDeadline()))
	snapshot := append([]byte{}, stream.buf...)

	require.NoError(t, f.Flush(true, base.NoDeadline()))
	require.Equal(t, snapshot, stream.buf)
}

// TestOpenRejectsDirtyHeader covers end-to-end scenario 7: a crash before
// the final Flush(clearDirty=true) leaves the header's dirty flag set, and
// Open must reject the file.
func TestOpenRejectsDirtyHeader(t *testing.T) {
	f, stream := newTestFile(t, CompressionNone)
	require.NoError(t, f.Write(BlockTypeTextData, 0, []byte("partial"), false))
	// Simulate a crash: never call Flush(clearDirty=true).

	_, err := OpenStream(stream, Options{DomVersion: 42, Compress: CompressionNone})
	require.Error(t, err)
	require.ErrorIs(t, err, base.ErrDirty)
}

// TestFreeListReclaimsSpace covers the allocator fragmentation bound from
// spec.md §8: freed blocks are always reused rather than leaked as new file
// growth.
func TestFreeListReclaimsSpace(t *testing.T) {
	f, _ := newTestFile(t, CompressionNone)
	payload := make([]byte, 2000)
	const n = 10
	for i := uint16(0); i < n; i++ {
		require.NoError(t, f.Write(BlockTypeTextData, i, payload, false))
	}
	for i := uint16(0); i < n; i++ {
		f.Free(BlockTypeTextData, i)
	}
	count, totalBytes := f.FreeListSize()
	require.Equal(t, n, count)
	sizeBeforeReuse := f.Size()

	for i := uint16(0); i < n; i++ {
		require.NoError(t, f.Write(BlockTypeRectData, i, payload, false))
	}
	require.Equal(t, sizeBeforeReuse, f.Size(), "reusing exactly the freed capacity must not grow the file")
	require.Greater(t, totalBytes, int64(0))
}

func TestReadStreamZeroCopy(t *testing.T) {
	f, _ := newTestFile(t, CompressionNone)
	payload := []byte("embedded blob bytes")
	require.NoError(t, f.Write(BlockTypeBlobData, 3, payload, false))
	r, err := f.ReadStream(BlockTypeBlobData, 3)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestNotFound(t *testing.T) {
	f, _ := newTestFile(t, CompressionNone)
	_, err := f.Read(BlockTypeTextData, 99)
	require.ErrorIs(t, err, base.ErrNotFound)
}

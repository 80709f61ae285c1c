package cache

import (
	"io"

	"github.com/readflow/domcache/internal/base"
)

// Read returns the logical (decompressed) bytes stored under (typ, index).
func (f *File) Read(typ BlockType, index uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked(typ, index)
}

func (f *File) readLocked(typ BlockType, index uint16) ([]byte, error) {
	e := f.index.find(typ, index)
	if e == nil {
		return nil, base.NotFoundErrorf("domcache: block (%s,%d) not found", typ, index)
	}
	raw, err := f.readRaw(e.BlockFilePos, e.DataSize)
	if err != nil {
		return nil, err
	}
	if hashBytes(raw) != e.PackedHash {
		return nil, base.CorruptionErrorf("domcache: packed hash mismatch for block (%s,%d)", typ, index)
	}
	if !e.Compressed() {
		return raw, nil
	}
	logical, err := f.comp.unpack(raw, int(e.UncompressedSize))
	if err != nil {
		return nil, err
	}
	if hashBytes(logical) != e.DataHash {
		return nil, base.CorruptionErrorf("domcache: data hash mismatch for block (%s,%d)", typ, index)
	}
	return logical, nil
}

// Write stores buf under (typ, index), optionally compressing it. Writes are
// idempotent: if buf is byte-identical (by hash) to what's already stored
// under the same compression mode, the call is a no-op.
func (f *File) Write(typ BlockType, index uint16, buf []byte, compress bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	logicalHash := hashBytes(buf)
	old := f.index.find(typ, index)
	if old != nil && old.DataHash == logicalHash && old.Compressed() == (compress && f.compType != CompressionNone) {
		return nil
	}

	payload := buf
	uncompressedSize := uint32(0)
	if compress && f.compType != CompressionNone {
		packed, ok, err := f.comp.pack(buf)
		if err != nil {
			return err
		}
		if ok {
			payload = packed
			uncompressedSize = uint32(len(buf))
		}
	}
	packedHash := hashBytes(payload)

	dst, err := f.allocBlock(typ, index, int32(len(payload)))
	if err != nil {
		return err
	}
	if err := f.writeRaw(dst.BlockFilePos, payload); err != nil {
		return err
	}
	// Verify the staged write before committing it into the live index, so
	// a torn write never becomes visible as a valid block (SPEC_FULL.md
	// §4.1 staging-write commit protocol).
	verify, err := f.readRaw(dst.BlockFilePos, int32(len(payload)))
	if err != nil {
		return err
	}
	if hashBytes(verify) != packedHash {
		return base.CorruptionErrorf("domcache: write verification failed for block (%s,%d)", typ, index)
	}

	committed := *dst
	committed.DataType = typ
	committed.DataIndex = index
	committed.DataSize = int32(len(payload))
	committed.DataHash = logicalHash
	committed.PackedHash = packedHash
	committed.UncompressedSize = uncompressedSize
	f.index.put(&committed)
	f.indexDirty = true
	f.dirty = true
	return nil
}

// ReadStream returns a lightweight byte-range view over the underlying
// stream for zero-copy access to a block's raw bytes (spec.md §4.1
// "read_stream"). blob.Cache does not use it; it reads blocks through Read.
// The returned reader only supports uncompressed blocks; compressed blocks
// must go through Read.
func (f *File) ReadStream(typ BlockType, index uint16) (io.ReadSeeker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.index.find(typ, index)
	if e == nil {
		return nil, base.NotFoundErrorf("domcache: block (%s,%d) not found", typ, index)
	}
	if e.Compressed() {
		return nil, base.CorruptionErrorf("domcache: ReadStream called on compressed block (%s,%d)", typ, index)
	}
	return io.NewSectionReader(asReaderAt(f.stream), int64(e.BlockFilePos), int64(e.DataSize)), nil
}

func (f *File) readRaw(pos, size int32) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := f.stream.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, base.IoErrorf(err, "domcache: seek to %d", pos)
	}
	if _, err := io.ReadFull(f.stream, buf); err != nil {
		return nil, base.IoErrorf(err, "domcache: read %d bytes at %d", size, pos)
	}
	return buf, nil
}

func (f *File) writeRaw(pos int32, buf []byte) error {
	if _, err := f.stream.Seek(int64(pos), io.SeekStart); err != nil {
		return base.IoErrorf(err, "domcache: seek to %d", pos)
	}
	if _, err := f.stream.Write(buf); err != nil {
		f.dirty = true
		return base.IoErrorf(err, "domcache: write %d bytes at %d", len(buf), pos)
	}
	return nil
}

// allocBlock implements spec.md §4.1's three-step allocation algorithm.
func (f *File) allocBlock(typ BlockType, index uint16, size int32) (*BlockEntry, error) {
	blockSize := alignToSector(size)

	if existing := f.index.find(typ, index); existing != nil && existing.BlockSize >= blockSize {
		e := *existing
		e.DataSize = size
		return &e, nil
	}
	if existing := f.index.find(typ, index); existing != nil {
		f.index.release(existing)
	}
	if reused := f.index.takeFree(blockSize); reused != nil {
		e := *reused
		e.DataType = typ
		e.DataIndex = index
		e.DataSize = size
		return &e, nil
	}
	e := &BlockEntry{
		DataType:     typ,
		DataIndex:    index,
		BlockIndex:   int32(f.index.m.Len() + len(f.index.free)),
		BlockFilePos: f.fileSize,
		BlockSize:    blockSize,
		DataSize:     size,
	}
	f.fileSize += blockSize
	return e, nil
}

// asReaderAt adapts an io.ReadWriteSeeker to io.ReaderAt when possible,
// falling back to a seek+read shim (used for in-memory test streams that
// don't natively implement ReaderAt).
func asReaderAt(s io.ReadWriteSeeker) io.ReaderAt {
	if ra, ok := s.(io.ReaderAt); ok {
		return ra
	}
	return &seekReaderAt{s: s}
}

type seekReaderAt struct {
	s io.ReadWriteSeeker
}

func (r *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.s.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(r.s, p)
}

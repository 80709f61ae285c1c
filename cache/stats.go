package cache

// Free releases the block at (typ, index) back to the free list, if it
// exists. It is a no-op if the block is absent.
func (f *File) Free(typ BlockType, index uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e := f.index.find(typ, index); e != nil {
		f.index.release(e)
		f.indexDirty = true
	}
}

// BlockInfo is a read-only snapshot of one block's index entry, used by
// cmd/domcachectl and by metrics collection.
type BlockInfo struct {
	Type             BlockType
	Index            uint16
	FilePos          int32
	BlockSize        int32
	DataSize         int32
	Compressed       bool
	UncompressedSize uint32
}

// Inspect returns a snapshot of every live block, sorted by (type, index).
func (f *File) Inspect() []BlockInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.index.all()
	out := make([]BlockInfo, len(entries))
	for i, e := range entries {
		out[i] = BlockInfo{
			Type:             e.DataType,
			Index:            e.DataIndex,
			FilePos:          e.BlockFilePos,
			BlockSize:        e.BlockSize,
			DataSize:         e.DataSize,
			Compressed:       e.Compressed(),
			UncompressedSize: e.UncompressedSize,
		}
	}
	return out
}

// FreeListSize returns the number of blocks currently on the free list and
// the sum of their BlockSize, used by the allocator fragmentation-bound
// test (spec.md §8).
func (f *File) FreeListSize() (count int, totalBytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.index.free {
		totalBytes += int64(e.BlockSize)
	}
	return len(f.index.free), totalBytes
}

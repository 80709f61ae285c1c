package cache

import (
	"github.com/readflow/domcache/internal/base"
)

// writeIndexBlock serializes the full block index — every live block
// followed by every free block — into the INDEX block (type BlockTypeIndex,
// index 0). Per spec.md §6, the INDEX entry for itself within that array
// has its data_hash and packed_hash zeroed, and the INDEX block itself
// carries only a packed hash (no data_hash) in the header's pointer to it.
func (f *File) writeIndexBlock() error {
	entries := append(append([]*BlockEntry{}, f.index.all()...), f.index.allFree()...)
	buf := make([]byte, 0, len(entries)*blockEntrySize)
	for _, e := range entries {
		rec := *e
		if rec.DataType == BlockTypeIndex {
			rec.DataHash = 0
			rec.PackedHash = 0
		}
		b := make([]byte, blockEntrySize)
		rec.encode(b)
		buf = append(buf, b...)
	}

	blockSize := alignToSector(int32(len(buf)))
	existing := f.index.find(BlockTypeIndex, 0)
	var dst BlockEntry
	if existing != nil && existing.BlockSize >= blockSize {
		dst = *existing
		dst.DataSize = int32(len(buf))
	} else {
		if existing != nil {
			f.index.release(existing)
		}
		if reused := f.index.takeFree(blockSize); reused != nil {
			dst = *reused
			dst.DataType = BlockTypeIndex
			dst.DataIndex = 0
			dst.DataSize = int32(len(buf))
		} else {
			dst = BlockEntry{
				DataType:     BlockTypeIndex,
				DataIndex:    0,
				BlockFilePos: f.fileSize,
				BlockSize:    blockSize,
				DataSize:     int32(len(buf)),
			}
			f.fileSize += blockSize
		}
	}

	if err := f.writeRaw(dst.BlockFilePos, buf); err != nil {
		return err
	}
	dst.PackedHash = hashBytes(buf)
	dst.DataHash = 0
	f.index.put(&dst)
	f.indexDirty = false
	return nil
}

// readIndex loads the INDEX block described by hdr and rebuilds the live
// map and free list from its contents.
func (f *File) readIndex(hdr *BlockEntry) error {
	if hdr.BlockSize == 0 {
		return nil // freshly created, empty index
	}
	buf, err := f.readRaw(hdr.BlockFilePos, hdr.DataSize)
	if err != nil {
		return err
	}
	if hashBytes(buf) != hdr.PackedHash {
		return base.CorruptionErrorf("domcache: INDEX block packed hash mismatch")
	}
	for off := 0; off+blockEntrySize <= len(buf); off += blockEntrySize {
		e, ok := decodeBlockEntry(buf[off : off+blockEntrySize])
		if !ok {
			return base.CorruptionErrorf("domcache: INDEX block contains a malformed entry at offset %d", off)
		}
		rec := e
		if rec.DataType == BlockTypeFree {
			f.index.free = append(f.index.free, &rec)
		} else {
			f.index.put(&rec)
		}
	}
	// The array's own INDEX entry has zeroed hashes and predates this write;
	// the header's entry is the authoritative live INDEX block.
	live := *hdr
	f.index.put(&live)
	return nil
}

// validateContents re-reads and hash-checks every live block, used by
// Options.ValidateContents (spec.md §4.1 "optional deep validation").
func (f *File) validateContents() error {
	for _, e := range f.index.all() {
		if _, err := f.readLocked(e.DataType, e.DataIndex); err != nil {
			return err
		}
	}
	return nil
}

// Package blob implements the content-addressed BLOB store from
// SPEC_FULL.md §4.5: named binary payloads (embedded images, fonts)
// chunked across cache.BlockTypeBlobData blocks and indexed by a small
// name->block-list map persisted to cache.BlockTypeBlobIndex.
package blob

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
)

// chunkSize bounds how large a single BLOB_DATA block can be; a blob larger
// than this is split across multiple blocks rather than forcing one
// oversized sector-aligned allocation (SPEC_FULL.md §4.5).
const chunkSize = 64 * 1024

// entry is one name's bookkeeping: the content hash used for dedup and the
// list of block indices its bytes are chunked across.
type entry struct {
	name   string
	hash   uint64
	size   uint32
	blocks []uint16
}

// Cache is the per-document BLOB store. It is not safe for concurrent use,
// matching the rest of this module's single-owner design.
type Cache struct {
	file    *cache.File
	log     base.Logger
	entries map[string]*entry
	nextIdx uint16 // next unused block index for BLOB_DATA
}

// New creates an empty Cache over file (used when creating a new document).
func New(file *cache.File, log base.Logger) *Cache {
	if log == nil {
		log = base.DefaultLogger{}
	}
	return &Cache{file: file, log: log, entries: make(map[string]*entry)}
}

// Add stores data under name. If an identical blob (by content hash) is
// already stored under name, Add is a no-op — the content-addressed dedup
// named in SPEC_FULL.md §4.5.
func (c *Cache) Add(name string, data []byte) error {
	hash := xxhash.Sum64(data)
	if existing, ok := c.entries[name]; ok && existing.hash == hash {
		return nil
	}
	if existing, ok := c.entries[name]; ok {
		c.freeBlocks(existing)
	}
	var blocks []uint16
	for off := 0; off < len(data) || (off == 0 && len(data) == 0); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		idx := c.allocBlockIndex()
		if err := c.file.Write(cache.BlockTypeBlobData, idx, data[off:end], true); err != nil {
			return err
		}
		blocks = append(blocks, idx)
		if end == len(data) {
			break
		}
	}
	c.entries[name] = &entry{name: name, hash: hash, size: uint32(len(data)), blocks: blocks}
	return nil
}

// Get returns a reader over the bytes stored under name.
func (c *Cache) Get(name string) (io.ReadSeeker, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, base.NotFoundErrorf("domcache: blob %q not found", name)
	}
	readers := make([]io.ReaderAt, 0, len(e.blocks))
	sizes := make([]int64, 0, len(e.blocks))
	for _, idx := range e.blocks {
		buf, err := c.file.Read(cache.BlockTypeBlobData, idx)
		if err != nil {
			return nil, err
		}
		readers = append(readers, newBytesReaderAt(buf))
		sizes = append(sizes, int64(len(buf)))
	}
	return newConcatSeeker(readers, sizes), nil
}

// Has reports whether name exists in the cache.
func (c *Cache) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Remove deletes name's blob, freeing its blocks.
func (c *Cache) Remove(name string) {
	if e, ok := c.entries[name]; ok {
		c.freeBlocks(e)
		delete(c.entries, name)
	}
}

func (c *Cache) freeBlocks(e *entry) {
	for _, idx := range e.blocks {
		c.file.Free(cache.BlockTypeBlobData, idx)
	}
}

func (c *Cache) allocBlockIndex() uint16 {
	idx := c.nextIdx
	c.nextIdx++
	return idx
}

// Save persists the name->block-list index to cache.BlockTypeBlobIndex.
func (c *Cache) Save() error {
	buf := make([]byte, 0, 256)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(c.entries)))
	buf = append(buf, countBuf[:]...)
	for _, e := range c.entries {
		buf = appendString(buf, e.name)
		var hashBuf [8]byte
		binary.LittleEndian.PutUint64(hashBuf[:], e.hash)
		buf = append(buf, hashBuf[:]...)
		var sizeBuf [4]byte
		binary.LittleEndian.PutUint32(sizeBuf[:], e.size)
		buf = append(buf, sizeBuf[:]...)
		var nBlocksBuf [2]byte
		binary.LittleEndian.PutUint16(nBlocksBuf[:], uint16(len(e.blocks)))
		buf = append(buf, nBlocksBuf[:]...)
		for _, idx := range e.blocks {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], idx)
			buf = append(buf, b[:]...)
		}
	}
	return c.file.Write(cache.BlockTypeBlobIndex, 0, buf, false)
}

// Load reads the name->block-list index from cache.BlockTypeBlobIndex.
func (c *Cache) Load() error {
	buf, err := c.file.Read(cache.BlockTypeBlobIndex, 0)
	if err != nil {
		if base.IsNotFound(err) {
			c.entries = make(map[string]*entry)
			return nil
		}
		return err
	}
	if len(buf) < 4 {
		return base.CorruptionErrorf("domcache: blob index too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	entries := make(map[string]*entry, n)
	var maxIdx uint16
	for i := uint32(0); i < n; i++ {
		name, consumed, err := readString(buf[off:])
		if err != nil {
			return err
		}
		off += consumed
		if off+14 > len(buf) {
			return base.CorruptionErrorf("domcache: blob index entry %d truncated", i)
		}
		hash := binary.LittleEndian.Uint64(buf[off : off+8])
		size := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		nBlocks := binary.LittleEndian.Uint16(buf[off+12 : off+14])
		off += 14
		blocks := make([]uint16, nBlocks)
		for j := range blocks {
			if off+2 > len(buf) {
				return base.CorruptionErrorf("domcache: blob index entry %d block list truncated", i)
			}
			blocks[j] = binary.LittleEndian.Uint16(buf[off : off+2])
			if blocks[j] >= maxIdx {
				maxIdx = blocks[j] + 1
			}
			off += 2
		}
		entries[name] = &entry{name: name, hash: hash, size: size, blocks: blocks}
	}
	c.entries = entries
	c.nextIdx = maxIdx
	return nil
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func readString(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, base.CorruptionErrorf("domcache: blob index string header truncated")
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	if len(buf) < 2+n {
		return "", 0, base.CorruptionErrorf("domcache: blob index string truncated")
	}
	return string(buf[2 : 2+n]), 2 + n, nil
}

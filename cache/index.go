package cache

import (
	"sort"

	"github.com/cockroachdb/swiss"
)

// blockIndex tracks every live block plus a free list of reclaimed blocks
// available for reuse, matching the source's `_index`/`_freeIndex`/`_map`
// triple (spec.md §4.1).
type blockIndex struct {
	m    *swiss.Map[uint32, *BlockEntry] // keyed by blockKey(type,index)
	free []*BlockEntry                  // blocks released by freeBlock, unordered
}

func newBlockIndex() *blockIndex {
	return &blockIndex{
		m: swiss.NewMap[uint32, *BlockEntry](16),
	}
}

func (bi *blockIndex) find(typ BlockType, index uint16) *BlockEntry {
	e, ok := bi.m.Get(blockKey(typ, index))
	if !ok {
		return nil
	}
	return e
}

func (bi *blockIndex) put(e *BlockEntry) {
	bi.m.Put(e.Key(), e)
}

func (bi *blockIndex) delete(e *BlockEntry) {
	bi.m.Delete(e.Key())
}

// release moves e from the live index to the free list, clearing its
// (type,index) identity so a later allocBlock can claim the slot under a
// new identity. The free list is never compacted (spec.md §4.1).
func (bi *blockIndex) release(e *BlockEntry) {
	bi.delete(e)
	e.DataType = BlockTypeFree
	e.DataIndex = 0
	e.DataSize = 0
	e.DataHash = 0
	e.PackedHash = 0
	e.UncompressedSize = 0
	bi.free = append(bi.free, e)
}

// takeFree finds the smallest free block whose BlockSize is at least
// minSize, removes it from the free list and returns it, or returns nil if
// none fits (spec.md §4.1 step 2).
func (bi *blockIndex) takeFree(minSize int32) *BlockEntry {
	best := -1
	for i, e := range bi.free {
		if e.BlockSize < minSize {
			continue
		}
		if best == -1 || e.BlockSize < bi.free[best].BlockSize {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	e := bi.free[best]
	bi.free = append(bi.free[:best], bi.free[best+1:]...)
	return e
}

// all returns every live block, sorted by (type, index) for deterministic
// iteration — used when serializing the INDEX block so repeated saves of
// unchanged content are byte-identical.
func (bi *blockIndex) all() []*BlockEntry {
	out := make([]*BlockEntry, 0, bi.m.Len())
	bi.m.Iter(func(_ uint32, e *BlockEntry) (stop bool) {
		out = append(out, e)
		return false
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DataType != out[j].DataType {
			return out[i].DataType < out[j].DataType
		}
		return out[i].DataIndex < out[j].DataIndex
	})
	return out
}

// allFree returns the free list, sorted by BlockFilePos for determinism.
func (bi *blockIndex) allFree() []*BlockEntry {
	out := make([]*BlockEntry, len(bi.free))
	copy(out, bi.free)
	sort.Slice(out, func(i, j int) bool { return out[i].BlockFilePos < out[j].BlockFilePos })
	return out
}

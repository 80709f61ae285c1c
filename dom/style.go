package dom

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/swiss"
)

// pooledEntry is one content-deduplicated record in a StylePool/FontPool.
type pooledEntry struct {
	id       uint16
	data     []byte
	refcount uint32
}

// pool is a reference-counted, hash-deduplicated record pool scoped to one
// Tree (SPEC_FULL.md §4.3 "added": "not process-global, per design note").
// Style and font records are small, frequently repeated byte blobs (a
// style record is a fixed-size struct of resolved CSS properties; a font
// record is a face descriptor); interning them behind a content hash keeps
// thousands of elements sharing the same computed style to one entry.
type pool struct {
	byHash  *swiss.Map[uint64, *pooledEntry]
	byID    []*pooledEntry // index 0 unused
	nextID  uint16
}

func newPool() *pool {
	p := &pool{byHash: swiss.NewMap[uint64, *pooledEntry](64)}
	p.byID = append(p.byID, nil)
	p.nextID = 1
	return p
}

// Acquire returns the id for rec, creating a new pool entry (refcount 1) or
// bumping the refcount of an existing identical record.
func (p *pool) Acquire(rec []byte) uint16 {
	h := xxhash.Sum64(rec)
	if e, ok := p.byHash.Get(h); ok {
		e.refcount++
		return e.id
	}
	id := p.nextID
	p.nextID++
	e := &pooledEntry{id: id, data: append([]byte(nil), rec...), refcount: 1}
	p.byHash.Put(h, e)
	for len(p.byID) <= int(id) {
		p.byID = append(p.byID, nil)
	}
	p.byID[id] = e
	return id
}

// Release drops one reference to id's record, removing it from the pool
// once its refcount reaches zero.
func (p *pool) Release(id uint16) {
	if id == 0 || int(id) >= len(p.byID) || p.byID[id] == nil {
		return
	}
	e := p.byID[id]
	e.refcount--
	if e.refcount == 0 {
		p.byHash.Delete(xxhash.Sum64(e.data))
		p.byID[id] = nil
	}
}

// Get returns the record bytes for id, or nil if absent.
func (p *pool) Get(id uint16) []byte {
	if id == 0 || int(id) >= len(p.byID) || p.byID[id] == nil {
		return nil
	}
	return p.byID[id].data
}

// Len returns the number of distinct records currently referenced.
func (p *pool) Len() int { return p.byHash.Len() }

// PooledRecord is one pool entry's persisted shape: id, refcount, and raw
// record bytes.
type PooledRecord struct {
	ID       uint16
	Refcount uint32
	Data     []byte
}

// Records snapshots every live entry in id order, for docstore's
// STYLE_DATA/FONT_DATA block save stages.
func (p *pool) Records() []PooledRecord {
	out := make([]PooledRecord, 0, p.byHash.Len())
	for id := 1; id < len(p.byID); id++ {
		e := p.byID[id]
		if e == nil {
			continue
		}
		out = append(out, PooledRecord{ID: e.id, Refcount: e.refcount, Data: e.data})
	}
	return out
}

// Restore replaces the pool's contents from records, preserving ids and
// refcounts — the inverse of Records, used when docstore reloads a
// persisted STYLE_DATA/FONT_DATA block.
func (p *pool) Restore(records []PooledRecord) {
	p.byHash = swiss.NewMap[uint64, *pooledEntry](len(records) + 1)
	p.byID = p.byID[:1]
	p.nextID = 1
	for _, r := range records {
		e := &pooledEntry{id: r.ID, data: r.Data, refcount: r.Refcount}
		for len(p.byID) <= int(r.ID) {
			p.byID = append(p.byID, nil)
		}
		p.byID[r.ID] = e
		p.byHash.Put(xxhash.Sum64(r.Data), e)
		if r.ID >= p.nextID {
			p.nextID = r.ID + 1
		}
	}
}

// StylePool and FontPool are the two reference-counted pools each Tree
// owns, one for resolved style records and one for font face descriptors
// (spec.md §3 "style/font indices... process-wide reference-counted style
// and font pools" — scoped per-Tree per the per-document-scoped design
// note rather than literally process-wide).
type StylePool struct{ *pool }
type FontPool struct{ *pool }

func newStylePool() StylePool { return StylePool{newPool()} }
func newFontPool() FontPool   { return FontPool{newPool()} }

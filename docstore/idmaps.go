package docstore

import (
	"encoding/binary"

	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/dom"
	"github.com/readflow/domcache/internal/base"
)

// mapsDataIndex is the fixed BlockTypeMapsData slot each intern table
// persists to (spec.md §5 stage 8, "save id maps").
type mapsDataIndex uint16

const (
	mapsDataNames mapsDataIndex = iota
	mapsDataAttrNames
	mapsDataNamespaces
	mapsDataValues
)

func encodeStrings(strs []string) []byte {
	buf := make([]byte, 0, 256)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(strs)))
	buf = append(buf, n[:]...)
	for _, s := range strs {
		buf = appendPropString(buf, s)
	}
	return buf
}

func decodeStrings(buf []byte) ([]string, error) {
	if len(buf) < 4 {
		return nil, base.CorruptionErrorf("docstore: id map block too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, consumed, err := readPropString(buf[off:])
		if err != nil {
			return nil, err
		}
		off += consumed
		out = append(out, s)
	}
	return out, nil
}

func (d *Document) saveIDMaps() error {
	tables := []struct {
		idx mapsDataIndex
		t   interface{ Strings() []string }
	}{
		{mapsDataNames, d.tree.Names},
		{mapsDataAttrNames, d.tree.AttrNames},
		{mapsDataNamespaces, d.tree.Namespaces},
		{mapsDataValues, d.tree.Values},
	}
	for _, e := range tables {
		if err := d.file.Write(cache.BlockTypeMapsData, uint16(e.idx), encodeStrings(e.t.Strings()), true); err != nil {
			return err
		}
	}
	return nil
}

// loadIDMaps restores every intern table into an already-constructed tree
// (dom.LoadTree leaves them empty) and re-derives the boxing-tag id set,
// which depends on Names being populated.
func (d *Document) loadIDMaps() error {
	restores := []struct {
		idx mapsDataIndex
		t   interface{ Restore([]string) }
	}{
		{mapsDataNames, d.tree.Names},
		{mapsDataAttrNames, d.tree.AttrNames},
		{mapsDataNamespaces, d.tree.Namespaces},
		{mapsDataValues, d.tree.Values},
	}
	for _, e := range restores {
		buf, err := d.file.Read(cache.BlockTypeMapsData, uint16(e.idx))
		if err != nil {
			return err
		}
		strs, err := decodeStrings(buf)
		if err != nil {
			return err
		}
		e.t.Restore(strs)
	}
	d.tree.RebuildBoxingTagIDs()
	return nil
}

func encodePooledRecords(recs []dom.PooledRecord) []byte {
	buf := make([]byte, 0, 256)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(recs)))
	buf = append(buf, n[:]...)
	for _, r := range recs {
		var hdr [10]byte
		binary.LittleEndian.PutUint16(hdr[0:2], r.ID)
		binary.LittleEndian.PutUint32(hdr[2:6], r.Refcount)
		binary.LittleEndian.PutUint32(hdr[6:10], uint32(len(r.Data)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, r.Data...)
	}
	return buf
}

func decodePooledRecords(buf []byte) ([]dom.PooledRecord, error) {
	if len(buf) < 4 {
		return nil, base.CorruptionErrorf("docstore: pooled-record block too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	out := make([]dom.PooledRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+10 > len(buf) {
			return nil, base.CorruptionErrorf("docstore: pooled record %d header truncated", i)
		}
		id := binary.LittleEndian.Uint16(buf[off : off+2])
		refcount := binary.LittleEndian.Uint32(buf[off+2 : off+6])
		dlen := int(binary.LittleEndian.Uint32(buf[off+6 : off+10]))
		off += 10
		if off+dlen > len(buf) {
			return nil, base.CorruptionErrorf("docstore: pooled record %d data truncated", i)
		}
		out = append(out, dom.PooledRecord{ID: id, Refcount: refcount, Data: append([]byte(nil), buf[off:off+dlen]...)})
		off += dlen
	}
	return out, nil
}

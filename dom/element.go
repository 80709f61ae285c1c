package dom

import "encoding/binary"

// Attr is one interned (namespace, name) -> interned value mapping
// (spec.md §3: "(ns_id u16, attr_id u16, value_id u32)").
type Attr struct {
	NSID    uint16
	AttrID  uint16
	ValueID uint32
}

// mutableElement is the heap-resident form of an element node (spec.md §3
// "Element (mutable)").
type mutableElement struct {
	parent   Handle
	ns, id   uint16
	rend     RendMethod
	children []Handle
	attrs    []Attr
	styleID  uint16
	fontID   uint16
}

func newMutableElement(parent Handle, ns, id uint16) *mutableElement {
	return &mutableElement{parent: parent, ns: ns, id: id}
}

func (e *mutableElement) attrIndex(ns, attrID uint16) int {
	for i, a := range e.attrs {
		if a.NSID == ns && a.AttrID == attrID {
			return i
		}
	}
	return -1
}

func (e *mutableElement) setAttr(ns, attrID uint16, valueID uint32) {
	if i := e.attrIndex(ns, attrID); i >= 0 {
		e.attrs[i].ValueID = valueID
		return
	}
	e.attrs = append(e.attrs, Attr{NSID: ns, AttrID: attrID, ValueID: valueID})
}

func (e *mutableElement) hasAttr(ns, attrID uint16) bool {
	return e.attrIndex(ns, attrID) >= 0
}

func (e *mutableElement) childIndexOf(child Handle) int {
	for i, c := range e.children {
		if c == child {
			return i
		}
	}
	return -1
}

// elementRecordHeaderSize is the fixed prefix of a persistent element
// record: ns, id, rend, pad, styleID, fontID, child_count, attr_count
// (spec.md §3 "Element (persistent)"; the record's owner/parent fields
// already live in the arena record header, see arena/chunk.go, so they are
// not duplicated here).
const elementRecordHeaderSize = 2 + 2 + 1 + 1 + 2 + 2 + 2 + 2

// encode packs e into a byte payload suitable for arena.Manager.AllocRecord.
func (e *mutableElement) encode() []byte {
	buf := make([]byte, elementRecordHeaderSize+4*len(e.children)+8*len(e.attrs))
	binary.LittleEndian.PutUint16(buf[0:2], e.ns)
	binary.LittleEndian.PutUint16(buf[2:4], e.id)
	buf[4] = byte(e.rend)
	buf[5] = 0
	binary.LittleEndian.PutUint16(buf[6:8], e.styleID)
	binary.LittleEndian.PutUint16(buf[8:10], e.fontID)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(e.children)))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(e.attrs)))
	off := elementRecordHeaderSize
	for _, c := range e.children {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(c))
		off += 4
	}
	for _, a := range e.attrs {
		binary.LittleEndian.PutUint16(buf[off:off+2], a.NSID)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], a.AttrID)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], a.ValueID)
		off += 8
	}
	return buf
}

// decodeElement unpacks a payload produced by encode. parent comes from the
// arena record header, not the payload.
func decodeElement(parent Handle, buf []byte) *mutableElement {
	e := &mutableElement{parent: parent}
	e.ns = binary.LittleEndian.Uint16(buf[0:2])
	e.id = binary.LittleEndian.Uint16(buf[2:4])
	e.rend = RendMethod(buf[4])
	e.styleID = binary.LittleEndian.Uint16(buf[6:8])
	e.fontID = binary.LittleEndian.Uint16(buf[8:10])
	childCount := binary.LittleEndian.Uint16(buf[10:12])
	attrCount := binary.LittleEndian.Uint16(buf[12:14])
	off := elementRecordHeaderSize
	e.children = make([]Handle, childCount)
	for i := range e.children {
		e.children[i] = Handle(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	e.attrs = make([]Attr, attrCount)
	for i := range e.attrs {
		e.attrs[i] = Attr{
			NSID:    binary.LittleEndian.Uint16(buf[off : off+2]),
			AttrID:  binary.LittleEndian.Uint16(buf[off+2 : off+4]),
			ValueID: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
		}
		off += 8
	}
	return e
}

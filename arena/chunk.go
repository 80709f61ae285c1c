package arena

import (
	"encoding/binary"
	"errors"

	"github.com/readflow/domcache/internal/base"
)

// errRecordFreed is returned by recordAt when the addressed record has been
// tombstoned; it's a sentinel a sequential walk (Compact, Manager.Each)
// expects and skips, not real corruption.
var errRecordFreed = errors.New("arena: record is freed")

// chunkState names where a chunk's bytes currently live (spec.md §4.2).
type chunkState int

const (
	stateUnloaded chunkState = iota
	stateLoadedClean
	stateLoadedDirty
)

// chunk is one fixed-size region of an arena. Its bytes hold a sequence of
// variable-sized records back to back; new records are appended at tail.
type chunk struct {
	index     uint16
	blockIdx  uint16 // cache.BlockType(kind)'s (type,index) this chunk persists under
	size      int    // fixed chunk size for this arena kind
	state     chunkState
	bytes     []byte // only valid when state != stateUnloaded
	tail      int    // append offset within bytes
	lastUsed  uint64 // LRU clock tick, bumped on every get()
}

func newChunk(index uint16, size int) *chunk {
	return &chunk{index: index, blockIdx: index, size: size, state: stateLoadedDirty, bytes: make([]byte, 0, size)}
}

// fits reports whether payloadSize more bytes (plus the record header) can
// be appended without exceeding the chunk's fixed size.
func (c *chunk) fits(payloadSize int) bool {
	return c.tail+recordHeaderSize+payloadSize <= c.size
}

// append writes a new record and returns its offset within the chunk.
func (c *chunk) append(owner, parent uint32, payload []byte) uint16 {
	if len(payload) > maxRecordPayload {
		panic("arena: payload exceeds maxRecordPayload")
	}
	off := c.tail
	hdr := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], owner)
	binary.LittleEndian.PutUint32(hdr[4:8], parent)
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(payload)))
	c.bytes = append(c.bytes, hdr...)
	c.bytes = append(c.bytes, payload...)
	c.tail += recordHeaderSize + len(payload)
	c.state = stateLoadedDirty
	return uint16(off)
}

// recordAt reads the record at byte offset off: owner, parent, payload. It
// errors with errRecordFreed if the record has been tombstoned.
func (c *chunk) recordAt(off uint16) (owner, parent uint32, payload []byte, err error) {
	owner, parent, plen, live, err := c.recordHeaderAt(off)
	if err != nil {
		return 0, 0, nil, err
	}
	if !live {
		return 0, 0, nil, errRecordFreed
	}
	start := int(off) + recordHeaderSize
	end := start + int(plen)
	if end > len(c.bytes) {
		return 0, 0, nil, base.CorruptionErrorf("arena: record payload out of range at offset %d", off)
	}
	return owner, parent, c.bytes[start:end], nil
}

// recordHeaderAt decodes the header at off without regard to liveness, so a
// sequential walk can always recover the record's true length (and thus the
// offset of the next record) even across a tombstoned hole.
func (c *chunk) recordHeaderAt(off uint16) (owner, parent uint32, payloadLen uint16, live bool, err error) {
	o := int(off)
	if o+recordHeaderSize > len(c.bytes) {
		return 0, 0, 0, false, base.CorruptionErrorf("arena: record offset %d out of range (chunk len %d)", o, len(c.bytes))
	}
	owner = binary.LittleEndian.Uint32(c.bytes[o : o+4])
	parent = binary.LittleEndian.Uint32(c.bytes[o+4 : o+8])
	raw := binary.LittleEndian.Uint16(c.bytes[o+8 : o+10])
	live = raw&tombstoneFlag == 0
	payloadLen = raw &^ tombstoneFlag
	return owner, parent, payloadLen, live, nil
}

// setParent rewrites the parent field in place without touching the
// payload, matching spec.md's "direct field manipulation" requirement for
// set_parent/get_parent.
func (c *chunk) setParent(off uint16, parent uint32) error {
	o := int(off)
	if o+recordHeaderSize > len(c.bytes) {
		return base.CorruptionErrorf("arena: record offset %d out of range", o)
	}
	binary.LittleEndian.PutUint32(c.bytes[o+4:o+8], parent)
	c.state = stateLoadedDirty
	return nil
}

// tombstone marks the record at off as freed by setting tombstoneFlag in
// its payload-length halfword, matching free_record's contract. The
// length's low 15 bits, the header's owner/parent fields, and the old
// payload bytes all stay in place (inert) until a full save repacks the
// chunk; preserving the length lets a sequential walk still step over the
// dead record.
func (c *chunk) tombstone(off uint16) error {
	o := int(off)
	if o+recordHeaderSize > len(c.bytes) {
		return base.CorruptionErrorf("arena: record offset %d out of range", o)
	}
	raw := binary.LittleEndian.Uint16(c.bytes[o+8 : o+10])
	binary.LittleEndian.PutUint16(c.bytes[o+8:o+10], raw|tombstoneFlag)
	c.state = stateLoadedDirty
	return nil
}

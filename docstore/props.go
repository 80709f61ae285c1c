package docstore

import (
	"encoding/binary"

	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
)

// propsRenderedHashKey is the reserved props key SetRenderedContextHash's
// value round-trips under; it's a document property like any other as far
// as stage 7 is concerned, so no separate on-disk block is needed for it.
const propsRenderedHashKey = "\x00renderedContextHash"

func encodeProps(props map[string]string) []byte {
	buf := make([]byte, 0, 256)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(props)))
	buf = append(buf, n[:]...)
	for k, v := range props {
		buf = appendPropString(buf, k)
		buf = appendPropString(buf, v)
	}
	return buf
}

func decodeProps(buf []byte) (map[string]string, error) {
	if len(buf) < 4 {
		return nil, base.CorruptionErrorf("docstore: props block too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	props := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, consumed, err := readPropString(buf[off:])
		if err != nil {
			return nil, err
		}
		off += consumed
		v, consumed, err := readPropString(buf[off:])
		if err != nil {
			return nil, err
		}
		off += consumed
		props[k] = v
	}
	return props, nil
}

func appendPropString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func readPropString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, base.CorruptionErrorf("docstore: props string header truncated")
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	if len(buf) < 4+n {
		return "", 0, base.CorruptionErrorf("docstore: props string truncated")
	}
	return string(buf[4 : 4+n]), 4 + n, nil
}

func (d *Document) saveProps() error {
	props := d.props
	if d.renderedHash != 0 {
		props = make(map[string]string, len(d.props)+1)
		for k, v := range d.props {
			props[k] = v
		}
		var hb [8]byte
		binary.LittleEndian.PutUint64(hb[:], d.renderedHash)
		props[propsRenderedHashKey] = string(hb[:])
	}
	return d.file.Write(cache.BlockTypePropData, 0, encodeProps(props), false)
}

func (d *Document) loadProps() error {
	buf, err := d.file.Read(cache.BlockTypePropData, 0)
	if err != nil {
		if base.IsNotFound(err) {
			d.props = make(map[string]string)
			return nil
		}
		return err
	}
	props, err := decodeProps(buf)
	if err != nil {
		return err
	}
	if hb, ok := props[propsRenderedHashKey]; ok && len(hb) == 8 {
		d.renderedHash = binary.LittleEndian.Uint64([]byte(hb))
		delete(props, propsRenderedHashKey)
	}
	d.props = props
	return nil
}

package dom

import "encoding/binary"

// renderRectSize is the fixed on-disk/in-arena size of an encoded
// RenderRect: twenty four-byte fields.
const renderRectSize = 20 * 4

// RenderRect is the per-element layout accessor record kept in the rect
// arena, indexed by element handle.
type RenderRect struct {
	X, Y                                    int32
	W, H                                    int32
	InnerX, InnerY, InnerW                  int32
	TopOverflow, BottomOverflow             int32
	UsableLeftOverflow, UsableRightOverflow int32
	Baseline                                int32
	Flags                                   uint32
	ListPropNodeIdx                         uint32
	LangNodeIdx                             uint32
	Extra                                   [5]int32
}

func (r *RenderRect) encode() []byte {
	buf := make([]byte, renderRectSize)
	fields := []int32{
		r.X, r.Y, r.W, r.H, r.InnerX, r.InnerY, r.InnerW,
		r.TopOverflow, r.BottomOverflow, r.UsableLeftOverflow, r.UsableRightOverflow,
		r.Baseline,
	}
	off := 0
	for _, f := range fields {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(f))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], r.Flags)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], r.ListPropNodeIdx)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], r.LangNodeIdx)
	off += 4
	for _, e := range r.Extra {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(e))
		off += 4
	}
	return buf
}

func decodeRenderRect(buf []byte) RenderRect {
	var r RenderRect
	vals := make([]int32, 0, 12)
	off := 0
	for i := 0; i < 12; i++ {
		vals = append(vals, int32(binary.LittleEndian.Uint32(buf[off:off+4])))
		off += 4
	}
	r.X, r.Y, r.W, r.H = vals[0], vals[1], vals[2], vals[3]
	r.InnerX, r.InnerY, r.InnerW = vals[4], vals[5], vals[6]
	r.TopOverflow, r.BottomOverflow = vals[7], vals[8]
	r.UsableLeftOverflow, r.UsableRightOverflow = vals[9], vals[10]
	r.Baseline = vals[11]
	r.Flags = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	r.ListPropNodeIdx = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	r.LangNodeIdx = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	for i := range r.Extra {
		r.Extra[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return r
}

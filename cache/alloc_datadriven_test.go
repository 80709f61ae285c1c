package cache

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// TestAllocatorDataDriven exercises the block allocation algorithm
// (spec.md §4.1) against fixtures under testdata/, the same way pebble
// drives its sstable/manifest behavior through cockroachdb/datadriven.
func TestAllocatorDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		f, _ := newTestFile(t, CompressionNone)
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "write":
				typ := parseBlockType(t, d, "type")
				idx := parseUint16(t, d, "index")
				size := parseInt(t, d, "size")
				if err := f.Write(typ, idx, make([]byte, size), false); err != nil {
					return fmt.Sprintf("error: %v", err)
				}
				return "ok"
			case "free":
				typ := parseBlockType(t, d, "type")
				idx := parseUint16(t, d, "index")
				f.Free(typ, idx)
				return "ok"
			case "inspect":
				var sb strings.Builder
				for _, e := range f.index.all() {
					fmt.Fprintf(&sb, "%s[%d] size=%d block=%d\n", e.DataType, e.DataIndex, e.DataSize, e.BlockSize)
				}
				return sb.String()
			case "freelist":
				count, bytes := f.FreeListSize()
				return fmt.Sprintf("count=%d bytes=%d", count, bytes)
			default:
				t.Fatalf("unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}

func parseBlockType(t *testing.T, d *datadriven.TestData, key string) BlockType {
	var s string
	d.ScanArgs(t, key, &s)
	switch s {
	case "TEXT_DATA":
		return BlockTypeTextData
	case "ELEM_DATA":
		return BlockTypeElemData
	case "RECT_DATA":
		return BlockTypeRectData
	default:
		panic("unknown block type " + s)
	}
}

func parseUint16(t *testing.T, d *datadriven.TestData, key string) uint16 {
	var v int
	d.ScanArgs(t, key, &v)
	return uint16(v)
}

func parseInt(t *testing.T, d *datadriven.TestData, key string) int {
	var v int
	d.ScanArgs(t, key, &v)
	return v
}

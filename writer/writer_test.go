package writer

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/arena"
	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/dom"
	"github.com/readflow/domcache/internal/base"
)

// memStream duplicates the minimal in-memory stream test double used by
// cache's and dom's own tests (package-private _test.go helpers don't cross
// package boundaries).
type memStream struct {
	buf []byte
	pos int64
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	m.pos = newPos
	return newPos, nil
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) Sync() error { return nil }

func newTestTree(t *testing.T) *dom.Tree {
	t.Helper()
	stream := &memStream{}
	f, err := cache.CreateStream(stream, cache.Options{DomVersion: 1, Compress: cache.CompressionNone, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	mgr := arena.NewManager(f, arena.Options{MemoryBudget: 1 << 20, Logger: base.NoopLogger{}})
	return dom.NewTree(mgr)
}

// dumpTree renders the subtree rooted at h as indented "<tag>" and
// "#text" lines; attributes are not printed and nothing is persisted
// (writer.go persists nodes in OnTagClose, and persistent nodes dump the
// same as mutable ones).
func dumpTree(tr *dom.Tree, h dom.Handle, depth int, sb *strings.Builder) {
	indent := strings.Repeat("  ", depth)
	if tr.IsText(h) {
		fmt.Fprintf(sb, "%s#text %q\n", indent, tr.TextUTF8(h))
		return
	}
	if tr.IsRoot(h) {
		fmt.Fprintf(sb, "%s#root\n", indent)
	} else {
		name := tr.Names.Lookup(uint32(tr.NodeID(h)))
		fmt.Fprintf(sb, "%s<%s>\n", indent, name)
	}
	for i := 0; i < tr.ChildCount(h); i++ {
		dumpTree(tr, tr.Child(h, i), depth+1, sb)
	}
}

// harness drives an EventHandler from a tiny line-oriented DSL so fixtures
// read like a trace of parser events, matching the shape of the teacher's
// own datadriven allocator tests.
type harness struct {
	t  *testing.T
	tr *dom.Tree
	h  EventHandler
}

func (h *harness) run(d *datadriven.TestData) string {
	switch d.Cmd {
	case "start":
		h.h.OnStart()
		return "ok"
	case "open":
		var name string
		d.ScanArgs(h.t, "name", &name)
		h.h.OnTagOpen("", name)
		return "ok"
	case "attr":
		var name, value string
		d.ScanArgs(h.t, "name", &name)
		d.ScanArgs(h.t, "value", &value)
		h.h.OnTagAttribute("", name, value)
		return "ok"
	case "body":
		h.h.OnTagBody()
		return "ok"
	case "text":
		value := d.Input
		if value == "" {
			d.ScanArgs(h.t, "value", &value)
		}
		h.h.OnText(value, TextFlagNone)
		return "ok"
	case "close":
		var name string
		d.ScanArgs(h.t, "name", &name)
		h.h.OnTagClose("", name, false)
		return "ok"
	case "stop":
		h.h.OnStop()
		return "ok"
	case "render":
		var sb strings.Builder
		dumpTree(h.tr, h.tr.Root(), 0, &sb)
		return sb.String()
	case "attrget":
		var name string
		d.ScanArgs(h.t, "name", &name)
		top, ok := h.h.(interface{ TopElement() dom.Handle })
		require.True(h.t, ok)
		el := top.TopElement()
		nsID := uint16(h.tr.Namespaces.Intern(""))
		attrID := uint16(h.tr.AttrNames.Intern(name))
		valueID, found := h.tr.AttrGet(el, nsID, attrID)
		if !found {
			return "<absent>"
		}
		return h.tr.Values.Lookup(valueID)
	default:
		h.t.Fatalf("unknown command %q", d.Cmd)
		return ""
	}
}

func TestWriterDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata/writer", func(t *testing.T, path string) {
		tr := newTestTree(t)
		w := New(tr, Options{Logger: base.NoopLogger{}})
		h := &harness{t: t, tr: tr, h: w}
		datadriven.RunTest(t, path, h.run)
	})
}

func TestFilterWriterDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata/filter", func(t *testing.T, path string) {
		tr := newTestTree(t)
		w := NewFilter(tr, Options{Logger: base.NoopLogger{}})
		h := &harness{t: t, tr: tr, h: w}
		datadriven.RunTest(t, path, h.run)
	})
}

package dom

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/arena"
	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
)

// memStream is a minimal in-memory io.ReadWriteSeeker+ReaderAt+Sync, the
// same test double cache's own tests use, duplicated here since _test.go
// helpers don't cross package boundaries.
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

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	stream := &memStream{}
	f, err := cache.CreateStream(stream, cache.Options{DomVersion: 1, Compress: cache.CompressionNone, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	mgr := arena.NewManager(f, arena.Options{MemoryBudget: 1 << 20, Logger: base.NoopLogger{}})
	return NewTree(mgr)
}

func TestRootInvariants(t *testing.T) {
	tr := newTestTree(t)
	require.True(t, tr.IsRoot(tr.Root()))
	require.True(t, tr.IsElement(tr.Root()))
	require.Equal(t, uint16(0), tr.NodeID(tr.Root()))
}

func TestParentChildInvariant(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	pTag := uint16(tr.Names.Intern("p"))

	p := tr.InsertChildElement(root, 0, nsID, pTag)
	require.True(t, SameNode(tr.Parent(p), root))
	require.Equal(t, 1, tr.ChildCount(root))
	require.Equal(t, p, tr.Child(root, 0))
	require.Equal(t, 0, tr.ChildIndexOf(root, p))

	txt := tr.InsertChildText(p, 0, "hello world")
	require.True(t, SameNode(tr.Parent(txt), p))
	require.Equal(t, "hello world", tr.TextUTF8(txt))
}

func TestPersistModifyRoundTrip(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	divTag := uint16(tr.Names.Intern("div"))

	div := tr.InsertChildElement(root, 0, nsID, divTag)
	txt := tr.InsertChildText(div, 0, "persisted text")
	tr.SetRendMethod(div, ErmBlock)

	require.False(t, tr.IsPersistent(div))
	persistedDiv := tr.Persist(div)
	require.True(t, tr.IsPersistent(persistedDiv))
	require.True(t, SameNode(div, persistedDiv))

	// The root's child slot must now point at the persistent handle.
	require.Equal(t, persistedDiv, tr.Child(root, 0))
	require.Equal(t, ErmBlock, tr.RendMethod(persistedDiv))

	persistedTxt := tr.Persist(txt)
	require.True(t, SameNode(txt, persistedTxt))
	require.Equal(t, persistedTxt, tr.Child(persistedDiv, 0))
	require.Equal(t, "persisted text", tr.TextUTF8(persistedTxt))

	mutableDiv := tr.Modify(persistedDiv)
	require.False(t, tr.IsPersistent(mutableDiv))
	require.True(t, SameNode(mutableDiv, div))
	require.Equal(t, ErmBlock, tr.RendMethod(mutableDiv))
	require.Equal(t, persistedTxt, tr.Child(mutableDiv, 0))
}

func TestRemoveChildFreesSubtree(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	spanTag := uint16(tr.Names.Intern("span"))

	span := tr.InsertChildElement(root, 0, nsID, spanTag)
	tr.InsertChildText(span, 0, "gone soon")
	require.Equal(t, 1, tr.ChildCount(root))

	tr.RemoveChild(root, 0)
	require.Equal(t, 0, tr.ChildCount(root))
}

func TestUnboxedNavigationSkipsBoxingElements(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	pTag := uint16(tr.Names.Intern("p"))
	boxTag := uint16(tr.Names.Intern("autoBoxing"))

	box := tr.InsertChildElement(root, 0, nsID, boxTag)
	real := tr.InsertChildElement(box, 0, nsID, pTag)

	require.True(t, tr.IsRoot(tr.UnboxedParent(real)))
	require.Equal(t, real, tr.UnboxedFirstChild(root))
}

func TestXPointerV2SkipsBoxingInPath(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	pTag := uint16(tr.Names.Intern("p"))
	boxTag := uint16(tr.Names.Intern("autoBoxing"))

	box := tr.InsertChildElement(root, 0, nsID, boxTag)
	p := tr.InsertChildElement(box, 0, nsID, pTag)
	txt := tr.InsertChildText(p, 0, "abc")

	path := tr.Serialize(XPointer{Node: txt, Offset: 1}, XPointerV2)
	require.Equal(t, "/p[1]/text()[1].1", path)

	resolved, err := tr.Parse(path)
	require.NoError(t, err)
	require.True(t, SameNode(resolved.Node, txt))
	require.Equal(t, 1, resolved.Offset)
}

func TestXPointerSerializeIsDeterministic(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	pTag := uint16(tr.Names.Intern("p"))

	tr.InsertChildElement(root, 0, nsID, pTag)
	p2 := tr.InsertChildElement(root, 1, nsID, pTag)

	a := tr.Serialize(XPointer{Node: p2, Offset: 0}, XPointerV1)
	b := tr.Serialize(XPointer{Node: p2, Offset: 0}, XPointerV1)
	require.Equal(t, a, b)
	require.Equal(t, "/p[2].0", a)
}

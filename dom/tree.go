package dom

import (
	"github.com/readflow/domcache/arena"
	"github.com/readflow/domcache/internal/base"
)

// boxingTagNames are the anonymous wrapper tags named in spec.md §4.3;
// elements carrying one of these tag ids are transparent to unboxed
// navigation and to XPointer V2 traversal (§4.3.3).
var boxingTagNames = []string{"autoBoxing", "tabularBox", "floatBox", "inlineBox", "rubyBox", "pseudoElem"}

// Tree is a single document's DOM: the node accessor API, mutation
// operations, and persist/modify conversion described in spec.md §4.3. It
// owns its own interned-string tables and style/font pools — never
// package-level state, per the per-document-scoped design note.
type Tree struct {
	mgr *arena.Manager

	elements map[uint32]*mutableElement
	elemAddr map[uint32]arena.Address
	texts    map[uint32]*mutableText
	textAddr map[uint32]arena.Address
	rectAddr map[uint32]arena.Address

	nextElemCounter  uint32
	nextTextCounter  uint32
	freeElemCounters []uint32
	freeTextCounters []uint32

	root Handle

	Names      *internTable
	AttrNames  *internTable
	Namespaces *internTable
	Values     *internTable
	Styles     StylePool
	Fonts      FontPool

	boxingTagIDs map[uint16]bool

	// SourceEncoding records the document's declared source encoding as
	// metadata only (SPEC_FULL.md §4.3 "added, supplemented from
	// original_source"); no transcoding happens in this package.
	SourceEncoding string
}

// NewTree creates an empty Tree with a freshly allocated root element
// (spec.md §3 "Document root. A fixed root element handle allocated at
// document construction.").
func NewTree(mgr *arena.Manager) *Tree {
	t := &Tree{
		mgr:         mgr,
		elements:    make(map[uint32]*mutableElement),
		elemAddr:    make(map[uint32]arena.Address),
		texts:       make(map[uint32]*mutableText),
		textAddr:    make(map[uint32]arena.Address),
		rectAddr:    make(map[uint32]arena.Address),
		Names:       newInternTable(),
		AttrNames:   newInternTable(),
		Namespaces:  newInternTable(),
		Values:      newInternTable(),
		Styles:      newStylePool(),
		Fonts:       newFontPool(),
	}
	t.boxingTagIDs = make(map[uint16]bool, len(boxingTagNames))
	for _, name := range boxingTagNames {
		t.boxingTagIDs[uint16(t.Names.Intern(name))] = true
	}
	t.nextElemCounter = 1
	t.nextTextCounter = 1
	root := t.allocElemHandle()
	t.elements[root.counter()] = newMutableElement(NullHandle, 0, 0) // id 0: "unknown/root"
	t.root = root
	return t
}

// Root returns the document's fixed root handle.
func (t *Tree) Root() Handle { return t.root }

// LoadTree reconstructs a Tree's handle->address maps from arenas that
// have already been loaded into mgr via arena.Manager.Load for every kind.
// Nothing on disk records which owner handle each record belongs to except
// the records themselves, so this walks every live record once via
// arena.Manager.Each — the counterpart to the incremental bookkeeping
// Persist/Modify maintain during normal operation. Interned-string tables,
// style/font pools, and document properties are restored separately by the
// caller (docstore), which must also call RebuildBoxingTagIDs once Names
// is populated.
func LoadTree(mgr *arena.Manager) (*Tree, error) {
	t := &Tree{
		mgr:        mgr,
		elements:   make(map[uint32]*mutableElement),
		elemAddr:   make(map[uint32]arena.Address),
		texts:      make(map[uint32]*mutableText),
		textAddr:   make(map[uint32]arena.Address),
		rectAddr:   make(map[uint32]arena.Address),
		Names:      newInternTable(),
		AttrNames:  newInternTable(),
		Namespaces: newInternTable(),
		Values:     newInternTable(),
		Styles:     newStylePool(),
		Fonts:      newFontPool(),
	}
	t.boxingTagIDs = make(map[uint16]bool)

	var maxElemCounter, maxTextCounter uint32
	if err := mgr.Each(arena.KindElement, func(addr arena.Address, owner, _ uint32, _ []byte) error {
		h := Handle(owner)
		t.elemAddr[h.counter()] = addr
		if c := h.counter(); c > maxElemCounter {
			maxElemCounter = c
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := mgr.Each(arena.KindText, func(addr arena.Address, owner, _ uint32, _ []byte) error {
		h := Handle(owner)
		t.textAddr[h.counter()] = addr
		if c := h.counter(); c > maxTextCounter {
			maxTextCounter = c
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := mgr.Each(arena.KindRect, func(addr arena.Address, owner, _ uint32, _ []byte) error {
		t.rectAddr[Handle(owner).counter()] = addr
		return nil
	}); err != nil {
		return nil, err
	}
	t.nextElemCounter = maxElemCounter + 1
	t.nextTextCounter = maxTextCounter + 1
	t.root = PersistedRootHandle()
	if _, ok := t.elemAddr[t.root.counter()]; !ok {
		return nil, base.CorruptionErrorf("dom: reloaded arena has no root element record")
	}
	return t, nil
}

// RebuildBoxingTagIDs re-derives the boxing-element id set from the current
// Names table. Call after restoring the id maps (Names.Restore) when
// reconstructing a Tree via LoadTree, since NewTree's usual
// intern-at-construction-time path doesn't run in that case.
func (t *Tree) RebuildBoxingTagIDs() {
	t.boxingTagIDs = make(map[uint16]bool, len(boxingTagNames))
	for _, name := range boxingTagNames {
		t.boxingTagIDs[uint16(t.Names.Intern(name))] = true
	}
}

func (t *Tree) allocElemHandle() Handle {
	var c uint32
	if n := len(t.freeElemCounters); n > 0 {
		c, t.freeElemCounters = t.freeElemCounters[n-1], t.freeElemCounters[:n-1]
	} else {
		c = t.nextElemCounter
		t.nextElemCounter++
	}
	return newHandle(c, true, false)
}

func (t *Tree) allocTextHandle() Handle {
	var c uint32
	if n := len(t.freeTextCounters); n > 0 {
		c, t.freeTextCounters = t.freeTextCounters[n-1], t.freeTextCounters[:n-1]
	} else {
		c = t.nextTextCounter
		t.nextTextCounter++
	}
	return newHandle(c, false, false)
}

// IsElement reports whether h is an element node.
func (t *Tree) IsElement(h Handle) bool { return h.IsElement() }

// IsText reports whether h is a text node.
func (t *Tree) IsText(h Handle) bool { return h.IsText() }

// IsPersistent reports whether h's storage currently lives in an arena.
func (t *Tree) IsPersistent(h Handle) bool { return h.IsPersistent() }

// IsRoot reports whether h is the document root.
func (t *Tree) IsRoot(h Handle) bool { return SameNode(h, t.root) }

func (t *Tree) element(h Handle) *mutableElement {
	c := h.counter()
	if h.IsPersistent() {
		addr := t.elemAddr[c]
		_, parentRaw, payload, err := t.mgr.Get(arena.KindElement, addr)
		if err != nil {
			panic(err) // arena corruption is unrecoverable, matching cache's fatal-I/O stance
		}
		return decodeElement(Handle(parentRaw), payload)
	}
	return t.elements[c]
}

func (t *Tree) text(h Handle) *mutableText {
	c := h.counter()
	if h.IsPersistent() {
		addr := t.textAddr[c]
		_, parentRaw, payload, err := t.mgr.Get(arena.KindText, addr)
		if err != nil {
			panic(err)
		}
		return decodeText(Handle(parentRaw), payload)
	}
	return t.texts[c]
}

// Parent returns h's parent handle, or NullHandle for the root.
func (t *Tree) Parent(h Handle) Handle {
	if h.IsElement() {
		return t.element(h).parent
	}
	return t.text(h).parent
}

// ChildCount returns the number of children of element h.
func (t *Tree) ChildCount(h Handle) int { return len(t.element(h).children) }

// Child returns h's i-th child.
func (t *Tree) Child(h Handle, i int) Handle { return t.element(h).children[i] }

// ChildIndexOf returns the index of child within h's children, or -1.
func (t *Tree) ChildIndexOf(h, child Handle) int { return t.element(h).childIndexOf(child) }

// NodeID returns an element's interned tag id.
func (t *Tree) NodeID(h Handle) uint16 { return t.element(h).id }

// NSID returns an element's interned namespace id.
func (t *Tree) NSID(h Handle) uint16 { return t.element(h).ns }

// SetTagID re-tags element h with a different interned tag id, used by
// writer's lib.ru heuristic to retroactively rename a <pre> to a <div>
// without rebuilding the node.
func (t *Tree) SetTagID(h Handle, id uint16) {
	t.mutate(h, func(e *mutableElement) { e.id = id })
}

// AttrGet returns the interned value id for (ns, attrID) on element h.
func (t *Tree) AttrGet(h Handle, ns, attrID uint16) (uint32, bool) {
	e := t.element(h)
	if i := e.attrIndex(ns, attrID); i >= 0 {
		return e.attrs[i].ValueID, true
	}
	return 0, false
}

// AttrHas reports whether element h carries attribute (ns, attrID).
func (t *Tree) AttrHas(h Handle, ns, attrID uint16) bool { return t.element(h).hasAttr(ns, attrID) }

// AttrSet sets element h's (ns, attrID) attribute to valueID, overwriting
// any existing value (spec.md §3 invariant: unique (ns_id,attr_id) keys).
func (t *Tree) AttrSet(h Handle, ns, attrID uint16, valueID uint32) {
	t.mutate(h, func(e *mutableElement) { e.setAttr(ns, attrID, valueID) })
}

// RendMethod returns element h's resolved render method.
func (t *Tree) RendMethod(h Handle) RendMethod { return t.element(h).rend }

// SetRendMethod sets element h's render method.
func (t *Tree) SetRendMethod(h Handle, m RendMethod) {
	t.mutate(h, func(e *mutableElement) { e.rend = m })
}

// RenderRect returns element h's layout accessor record, persisted in the
// rect arena as a fixed 80-byte record (§4.2 rect arena). Elements
// that have never had a rect computed return the zero value.
func (t *Tree) RenderRect(h Handle) RenderRect {
	addr, ok := t.rectAddr[h.counter()]
	if !ok {
		return RenderRect{}
	}
	_, _, payload, err := t.mgr.Get(arena.KindRect, addr)
	if err != nil {
		panic(err)
	}
	return decodeRenderRect(payload)
}

// SetRenderRect sets element h's layout accessor record, allocating a rect
// arena record on first write and updating it in place thereafter (the
// record is fixed-size, so Modify never needs to reallocate).
func (t *Tree) SetRenderRect(h Handle, r RenderRect) {
	payload := r.encode()
	if addr, ok := t.rectAddr[h.counter()]; ok {
		newAddr, err := t.mgr.Modify(arena.KindRect, addr, uint32(h), 0, payload)
		if err != nil {
			panic(err)
		}
		t.rectAddr[h.counter()] = newAddr
		return
	}
	addr, err := t.mgr.AllocRecord(arena.KindRect, uint32(h), 0, payload)
	if err != nil {
		panic(err)
	}
	t.rectAddr[h.counter()] = addr
}

// TextUTF8 returns a text node's UTF-8 content.
func (t *Tree) TextUTF8(h Handle) string { return t.text(h).utf8 }

// SetText replaces a text node's content, converting it to mutable first if
// it is currently persistent (spec.md §4.3: "set_text(...) (converts
// persistent->mutable then updates)").
func (t *Tree) SetText(h Handle, utf8 string) Handle {
	if h.IsPersistent() {
		h = t.Modify(h)
	}
	t.texts[h.counter()].utf8 = utf8
	return h
}

// mutate applies fn to h's mutable heap form. It does not convert: a
// persistent h panics, so callers convert with Modify first (which returns
// the new mutable handle), matching spec.md's "modify(h)" contract.
func (t *Tree) mutate(h Handle, fn func(*mutableElement)) {
	if h.IsPersistent() {
		panic("dom: mutation requires a mutable handle; call Modify(h) first")
	}
	fn(t.elements[h.counter()])
}

// InsertChildElement creates a new mutable element under parent at index
// at and returns its handle.
func (t *Tree) InsertChildElement(parent Handle, at int, ns, id uint16) Handle {
	h := t.allocElemHandle()
	t.elements[h.counter()] = newMutableElement(parent, ns, id)
	t.insertChildHandle(parent, at, h)
	return h
}

// InsertChildText creates a new mutable text node under parent at index at
// and returns its handle.
func (t *Tree) InsertChildText(parent Handle, at int, utf8 string) Handle {
	h := t.allocTextHandle()
	t.texts[h.counter()] = &mutableText{parent: parent, utf8: utf8}
	t.insertChildHandle(parent, at, h)
	return h
}

func (t *Tree) insertChildHandle(parent Handle, at int, child Handle) {
	t.mutate(parent, func(e *mutableElement) {
		e.children = append(e.children, NullHandle)
		copy(e.children[at+1:], e.children[at:])
		e.children[at] = child
	})
}

// RemoveChild recursively frees parent's child at index at, releasing
// arena storage for any persistent descendants and recycling handles into
// the per-kind free list (spec.md §3 "Lifecycle").
func (t *Tree) RemoveChild(parent Handle, at int) {
	child := t.element(parent).children[at]
	t.freeSubtree(child)
	t.mutate(parent, func(e *mutableElement) {
		e.children = append(e.children[:at], e.children[at+1:]...)
	})
}

func (t *Tree) freeSubtree(h Handle) {
	if h.IsElement() {
		e := t.element(h)
		for _, c := range e.children {
			t.freeSubtree(c)
		}
		c := h.counter()
		if h.IsPersistent() {
			_ = t.mgr.FreeRecord(arena.KindElement, t.elemAddr[c])
			delete(t.elemAddr, c)
		} else {
			delete(t.elements, c)
		}
		if addr, ok := t.rectAddr[c]; ok {
			_ = t.mgr.FreeRecord(arena.KindRect, addr)
			delete(t.rectAddr, c)
		}
		t.freeElemCounters = append(t.freeElemCounters, c)
		return
	}
	c := h.counter()
	if h.IsPersistent() {
		_ = t.mgr.FreeRecord(arena.KindText, t.textAddr[c])
		delete(t.textAddr, c)
	} else {
		delete(t.texts, c)
	}
	t.freeTextCounters = append(t.freeTextCounters, c)
}

// MoveItemsTo moves src's children [start,end) to the end of dst's
// children list (spec.md §4.3 "move_items_to(dst, start, end)"), updating
// the moved nodes' parent pointers.
func (t *Tree) MoveItemsTo(src, dst Handle, start, end int) {
	srcElem := t.element(src)
	moved := append([]Handle(nil), srcElem.children[start:end]...)
	t.mutate(src, func(e *mutableElement) {
		e.children = append(e.children[:start], e.children[end:]...)
	})
	for _, child := range moved {
		t.reparent(child, dst)
	}
	t.mutate(dst, func(e *mutableElement) { e.children = append(e.children, moved...) })
}

func (t *Tree) reparent(h, newParent Handle) {
	if h.IsElement() {
		if h.IsPersistent() {
			_ = t.mgr.SetParent(arena.KindElement, t.elemAddr[h.counter()], uint32(newParent))
			return
		}
		t.elements[h.counter()].parent = newParent
		return
	}
	if h.IsPersistent() {
		_ = t.mgr.SetParent(arena.KindText, t.textAddr[h.counter()], uint32(newParent))
		return
	}
	t.texts[h.counter()].parent = newParent
}

// Persist converts h from mutable to persistent storage, copying its
// fields into a freshly allocated arena slot and releasing the heap object
// (spec.md §3). It is idempotent: persisting an already-persistent handle
// returns it unchanged.
func (t *Tree) Persist(h Handle) Handle {
	if h.IsPersistent() {
		return h
	}
	c := h.counter()
	if h.IsElement() {
		e := t.elements[c]
		newH := h.withPersistent(true)
		addr, err := t.mgr.AllocRecord(arena.KindElement, uint32(newH), uint32(e.parent), e.encode())
		if err != nil {
			panic(err)
		}
		t.elemAddr[c] = addr
		delete(t.elements, c)
		t.fixupParentRef(e.parent, h, newH)
		for _, child := range e.children {
			t.reparent(child, newH)
		}
		return newH
	}
	txt := t.texts[c]
	newH := h.withPersistent(true)
	addr, err := t.mgr.AllocRecord(arena.KindText, uint32(newH), uint32(txt.parent), txt.encode())
	if err != nil {
		panic(err)
	}
	t.textAddr[c] = addr
	delete(t.texts, c)
	t.fixupParentRef(txt.parent, h, newH)
	return newH
}

// Modify converts h from persistent to mutable storage, the reverse of
// Persist (spec.md §3).
func (t *Tree) Modify(h Handle) Handle {
	if !h.IsPersistent() {
		return h
	}
	c := h.counter()
	if h.IsElement() {
		addr := t.elemAddr[c]
		_, parentRaw, payload, err := t.mgr.Get(arena.KindElement, addr)
		if err != nil {
			panic(err)
		}
		e := decodeElement(Handle(parentRaw), payload)
		if err := t.mgr.FreeRecord(arena.KindElement, addr); err != nil {
			panic(err)
		}
		delete(t.elemAddr, c)
		t.elements[c] = e
		newH := h.withPersistent(false)
		t.fixupParentRef(e.parent, h, newH)
		for _, child := range e.children {
			t.reparent(child, newH)
		}
		return newH
	}
	addr := t.textAddr[c]
	_, parentRaw, payload, err := t.mgr.Get(arena.KindText, addr)
	if err != nil {
		panic(err)
	}
	txt := decodeText(Handle(parentRaw), payload)
	if err := t.mgr.FreeRecord(arena.KindText, addr); err != nil {
		panic(err)
	}
	delete(t.textAddr, c)
	t.texts[c] = txt
	newH := h.withPersistent(false)
	t.fixupParentRef(txt.parent, h, newH)
	return newH
}

// PersistAll persists every still-mutable node in the tree, children
// before parents, including the root — which writer never persists on its
// own since it's never pushed as an open-element stack frame. This is
// docstore's "persist nodes" save stage (spec.md §5).
func (t *Tree) PersistAll() {
	t.persistChildren(t.root)
	t.root = t.Persist(t.root)
}

func (t *Tree) persistChildren(h Handle) {
	if !h.IsElement() {
		return
	}
	for i := 0; i < t.ChildCount(h); i++ {
		child := t.Child(h, i)
		if child.IsElement() {
			t.persistChildren(child)
		}
		t.Persist(child)
	}
}

// fixupParentRef rewrites parent's reference to oldChild (now oldH) as
// newH after a persist/modify conversion changed oldH's persistence bit.
// It is a no-op for the root, whose NullHandle parent has nothing to fix.
func (t *Tree) fixupParentRef(parent, oldH, newH Handle) {
	if parent.IsNull() {
		return
	}
	t.mutateChildSlot(parent, oldH, newH)
}

func (t *Tree) mutateChildSlot(parent, oldChild, newChild Handle) {
	if parent.IsPersistent() {
		addr := t.elemAddr[parent.counter()]
		_, parentRaw, payload, err := t.mgr.Get(arena.KindElement, addr)
		if err != nil {
			panic(err)
		}
		e := decodeElement(Handle(parentRaw), payload)
		if i := e.childIndexOf(oldChild); i >= 0 {
			e.children[i] = newChild
		}
		if _, err := t.mgr.Modify(arena.KindElement, addr, uint32(parent), uint32(e.parent), e.encode()); err != nil {
			panic(err)
		}
		return
	}
	e := t.elements[parent.counter()]
	if i := e.childIndexOf(oldChild); i >= 0 {
		e.children[i] = newChild
	}
}

// unboxed navigation: boxing elements (autoBoxing/tabularBox/floatBox/
// inlineBox/rubyBox/pseudoElem) are transparent, per spec.md §4.3.

func (t *Tree) isBoxing(h Handle) bool {
	return h.IsElement() && t.boxingTagIDs[t.element(h).id]
}

// UnboxedParent returns h's nearest ancestor that is not itself a boxing
// element.
func (t *Tree) UnboxedParent(h Handle) Handle {
	p := t.Parent(h)
	for !p.IsNull() && t.isBoxing(p) {
		p = t.Parent(p)
	}
	return p
}

// UnboxedFirstChild returns h's first non-boxing descendant reachable by
// always taking the first child through any chain of boxing wrappers.
func (t *Tree) UnboxedFirstChild(h Handle) Handle {
	if !h.IsElement() || t.ChildCount(h) == 0 {
		return NullHandle
	}
	c := t.Child(h, 0)
	if t.isBoxing(c) {
		return t.UnboxedFirstChild(c)
	}
	return c
}

// UnboxedLastChild returns h's last non-boxing descendant, mirroring
// UnboxedFirstChild.
func (t *Tree) UnboxedLastChild(h Handle) Handle {
	if !h.IsElement() || t.ChildCount(h) == 0 {
		return NullHandle
	}
	c := t.Child(h, t.ChildCount(h)-1)
	if t.isBoxing(c) {
		return t.UnboxedLastChild(c)
	}
	return c
}

// UnboxedNextSibling returns h's next sibling, skipping over (and then
// descending into, via UnboxedFirstChild) any boxing elements.
func (t *Tree) UnboxedNextSibling(h Handle) Handle {
	parent := t.Parent(h)
	if parent.IsNull() {
		return NullHandle
	}
	idx := t.ChildIndexOf(parent, h)
	if idx < 0 || idx+1 >= t.ChildCount(parent) {
		if t.isBoxing(parent) {
			return t.UnboxedNextSibling(parent)
		}
		return NullHandle
	}
	next := t.Child(parent, idx+1)
	if t.isBoxing(next) {
		if first := t.UnboxedFirstChild(next); !first.IsNull() {
			return first
		}
		return t.UnboxedNextSibling(next)
	}
	return next
}

// UnboxedPrevSibling mirrors UnboxedNextSibling.
func (t *Tree) UnboxedPrevSibling(h Handle) Handle {
	parent := t.Parent(h)
	if parent.IsNull() {
		return NullHandle
	}
	idx := t.ChildIndexOf(parent, h)
	if idx <= 0 {
		if t.isBoxing(parent) {
			return t.UnboxedPrevSibling(parent)
		}
		return NullHandle
	}
	prev := t.Child(parent, idx-1)
	if t.isBoxing(prev) {
		if last := t.UnboxedLastChild(prev); !last.IsNull() {
			return last
		}
		return t.UnboxedPrevSibling(prev)
	}
	return prev
}

// requireElement panics with a corruption-flavored error if h is not an
// element; used by callers that need a cheap invariant check without a
// full error-returning signature, matching the rest of this package's
// panic-on-corruption stance (arena/cache errors are already fatal for the
// current operation per spec.md §7).
func (t *Tree) requireElement(h Handle) {
	if !h.IsElement() {
		panic(base.CorruptionErrorf("dom: handle %d is not an element", uint32(h)))
	}
}

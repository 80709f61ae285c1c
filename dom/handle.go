// Package dom implements DomTree and its node operations (SPEC_FULL.md
// §4.3): a dense 32-bit handle space over mutable and persistent
// Element/Text node representations, render-method derivation, table/ruby
// anonymous-box wrapping, and the XPointer node-to-path language.
package dom

// Handle identifies a node. The low 2 bits encode kind and mutability
// (bit 0 = element, bit 1 = persistent); the upper 30 bits are an
// independent counter per kind, so an element handle and a text handle can
// share upper bits — comparisons of "same node" must retain bit 0 (spec.md
// §3).
type Handle uint32

const (
	bitElement   = 1 << 0
	bitPersistent = 1 << 1
	kindShift    = 2
)

// NullHandle is never a valid node.
const NullHandle Handle = 0

func newHandle(counter uint32, element, persistent bool) Handle {
	h := Handle(counter << kindShift)
	if element {
		h |= bitElement
	}
	if persistent {
		h |= bitPersistent
	}
	return h
}

// IsElement reports whether h refers to an element node.
func (h Handle) IsElement() bool { return h&bitElement != 0 }

// IsText reports whether h refers to a text node.
func (h Handle) IsText() bool { return h&bitElement == 0 }

// IsPersistent reports whether h's underlying storage is currently in an
// arena rather than on the Go heap.
func (h Handle) IsPersistent() bool { return h&bitPersistent != 0 }

// counter returns the per-kind dense counter embedded in h.
func (h Handle) counter() uint32 { return uint32(h) >> kindShift }

// withPersistent returns h with its persistence bit set to persistent,
// preserving the counter and element bit — used when a conversion rewrites
// the low bits in place (spec.md §3 invariant: "a handle's low bits match
// the actual node kind at all times").
func (h Handle) withPersistent(persistent bool) Handle {
	if persistent {
		return h | bitPersistent
	}
	return h &^ bitPersistent
}

// SameNode reports whether a and b refer to the same logical node,
// independent of persistence state (the mutable and persistent forms of one
// node share the same counter and element bit; only bit 1 can differ across
// a persist/modify round-trip while identity is preserved).
func SameNode(a, b Handle) bool {
	return a.IsElement() == b.IsElement() && a.counter() == b.counter()
}

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool { return h == NullHandle }

// PersistedRootHandle returns the document root's handle value once it has
// been persisted: the root is always the first element counter a Tree
// allocates (NewTree), so its persisted form is deterministic. docstore
// uses this to locate the root after reloading a Tree's arenas from disk,
// where nothing else on disk names which record is the root.
func PersistedRootHandle() Handle { return newHandle(1, true, true) }

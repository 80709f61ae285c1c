package dom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/readflow/domcache/internal/base"
)

// XPointerVersion selects which textual path dialect Serialize/Parse use
// (spec.md §4.3.3).
type XPointerVersion int

const (
	// XPointerV1 walks the raw DOM including boxing nodes (legacy).
	XPointerV1 XPointerVersion = iota
	// XPointerV2 skips boxing nodes and pseudo-elements so anonymous
	// wrapper churn doesn't invalidate saved bookmarks.
	XPointerV2
)

// XPointer identifies a (node, offset) pair as a string path like
// "/html/body[1]/p[3]/text()[2].17".
type XPointer struct {
	Node   Handle
	Offset int
}

// pathStep is one /tag[n] or /text()[n] component of a serialized path.
type pathStep struct {
	text  bool
	tagID uint16
	index int // 1-based, among same-tag siblings per the source's convention
}

// Serialize returns the deterministic textual form of p under version v.
// The same (node, offset) must always produce the same string across runs
// given the same dom_version, per spec.md §4.3.3.
func (t *Tree) Serialize(p XPointer, v XPointerVersion) string {
	steps := t.pathSteps(p.Node, v)
	var sb strings.Builder
	for _, s := range steps {
		sb.WriteByte('/')
		if s.text {
			sb.WriteString("text()")
		} else {
			sb.WriteString(t.Names.Lookup(uint32(s.tagID)))
		}
		fmt.Fprintf(&sb, "[%d]", s.index)
	}
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(p.Offset))
	return sb.String()
}

// pathSteps walks from h up to (but not including) the root, collecting
// one step per ancestor in root-to-leaf order. Under V2, boxing ancestors
// and the node's own boxing position are skipped entirely.
func (t *Tree) pathSteps(h Handle, v XPointerVersion) []pathStep {
	var steps []pathStep
	for cur := h; !t.IsRoot(cur); {
		parent := t.Parent(cur)
		if parent.IsNull() {
			break
		}
		if v == XPointerV2 && t.isBoxing(cur) {
			cur = parent
			continue
		}
		steps = append(steps, pathStep{
			text:  cur.IsText(),
			tagID: t.tagIDOf(cur),
			index: t.sameTagSiblingIndex(parent, cur, v),
		})
		if v == XPointerV2 {
			for t.isBoxing(parent) {
				parent = t.Parent(parent)
			}
		}
		cur = parent
	}
	// reverse into root-to-leaf order
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

func (t *Tree) tagIDOf(h Handle) uint16 {
	if h.IsElement() {
		return t.NodeID(h)
	}
	return 0
}

// sameTagSiblingIndex returns child's 1-based rank among parent's children
// sharing its tag (elements) or node type (text), skipping boxing siblings
// under V2.
func (t *Tree) sameTagSiblingIndex(parent, child Handle, v XPointerVersion) int {
	rank := 0
	wantTag := t.tagIDOf(child)
	wantText := child.IsText()
	for i := 0; i < t.ChildCount(parent); i++ {
		c := t.Child(parent, i)
		if v == XPointerV2 && c.IsElement() && t.isBoxing(c) {
			continue
		}
		if c.IsText() != wantText {
			continue
		}
		if !wantText && t.tagIDOf(c) != wantTag {
			continue
		}
		rank++
		if c == child {
			return rank
		}
	}
	return rank
}

// Parse accepts both V1 and V2 textual forms (spec.md §4.3.3: "Parsing
// accepts both forms") and resolves them against the tree starting at root.
func (t *Tree) Parse(path string) (XPointer, error) {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 {
		return XPointer{}, base.CorruptionErrorf("dom: xpointer %q missing offset", path)
	}
	offset, err := strconv.Atoi(path[dot+1:])
	if err != nil {
		return XPointer{}, base.CorruptionErrorf("dom: xpointer %q has invalid offset", path)
	}
	segments := strings.Split(strings.Trim(path[:dot], "/"), "/")
	cur := t.root
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		name, idx, err := parseStep(seg)
		if err != nil {
			return XPointer{}, err
		}
		next, err := t.descendToStep(cur, name, idx)
		if err != nil {
			return XPointer{}, err
		}
		cur = next
	}
	return XPointer{Node: cur, Offset: offset}, nil
}

func parseStep(seg string) (name string, index int, err error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return "", 0, base.CorruptionErrorf("dom: xpointer step %q malformed", seg)
	}
	name = seg[:open]
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return "", 0, base.CorruptionErrorf("dom: xpointer step %q has invalid index", seg)
	}
	return name, idx, nil
}

// descendToStep finds parent's idx-th (1-based) child matching name
// ("text()" or an element tag name), transparently entering and exiting
// any boxing wrappers — parsing always tolerates boxing nodes regardless
// of which version produced the path, since V1 paths include them and V2
// paths never reference them.
func (t *Tree) descendToStep(parent Handle, name string, idx int) (Handle, error) {
	wantText := name == "text()"
	var wantTagID uint16
	if !wantText {
		wantTagID = uint16(t.Names.Intern(name))
	}
	rank := 0
	for i := 0; i < t.ChildCount(parent); i++ {
		c := t.Child(parent, i)
		if c.IsElement() && t.isBoxing(c) {
			if found, err := t.descendToStep(c, name, idx-rank); err == nil {
				return found, nil
			}
			continue
		}
		if c.IsText() != wantText {
			continue
		}
		if !wantText && t.tagIDOf(c) != wantTagID {
			continue
		}
		rank++
		if rank == idx {
			return c, nil
		}
	}
	return NullHandle, base.CorruptionErrorf("dom: xpointer step %s[%d] not found under node", name, idx)
}

package dom

import (
	"sort"

	"github.com/cockroachdb/swiss"
	"golang.org/x/exp/maps"
)

// internTable is an id<->string table scoped to one Tree (never
// package-level — spec.md's design note that "pervasive global state must
// be scoped" applies to the element-name/attribute-name/namespace-name/
// value tables just as much as it does to style/font pools). IDs are
// assigned densely starting at 1 so 0 can mean "absent".
type internTable struct {
	byString *swiss.Map[string, uint32]
	byID     []string // index 0 unused
}

func newInternTable() *internTable {
	t := &internTable{byString: swiss.NewMap[string, uint32](64)}
	t.byID = append(t.byID, "") // reserve id 0
	return t
}

// Intern returns s's id, assigning a new dense id if s hasn't been seen.
func (t *internTable) Intern(s string) uint32 {
	if id, ok := t.byString.Get(s); ok {
		return id
	}
	id := uint32(len(t.byID))
	t.byID = append(t.byID, s)
	t.byString.Put(s, id)
	return id
}

// Lookup returns the string interned under id, or "" if absent.
func (t *internTable) Lookup(id uint32) string {
	if id == 0 || int(id) >= len(t.byID) {
		return ""
	}
	return t.byID[id]
}

// Len returns the number of distinct interned strings, excluding the
// reserved id 0.
func (t *internTable) Len() int { return len(t.byID) - 1 }

// dump returns a deterministic, sorted-by-id snapshot for MAPS_DATA
// encoding by copying byID (already dense and ordered); the swiss.Map is
// not walked. debugDumpByString is the lexicographically sorted view, built
// with golang.org/x/exp/maps.
func (t *internTable) dump() []string {
	out := make([]string, len(t.byID)-1)
	copy(out, t.byID[1:])
	return out
}

// debugDumpByString returns every interned string sorted lexicographically,
// for debugging; nothing in the module calls it.
func (t *internTable) debugDumpByString() []string {
	keys := maps.Keys(t.Dump())
	sort.Strings(keys)
	return keys
}

// Dump exposes the table's entries as a plain map for debug tooling; it is
// the one place this package materializes a full Go map from the swiss.Map,
// so it is never called on a hot path.
func (t *internTable) Dump() map[string]uint32 {
	out := make(map[string]uint32, t.byString.Len())
	t.byString.Iter(func(k string, v uint32) (stop bool) {
		out[k] = v
		return false
	})
	return out
}

// Strings returns the dense id-ordered string list (id 1..N by position),
// used by docstore's "save id maps" stage to persist this table.
func (t *internTable) Strings() []string { return t.dump() }

// Restore replaces this table's contents with strs, re-assigning dense ids
// 1..len(strs) in order — the inverse of Strings, used when docstore
// reloads the persisted id maps.
func (t *internTable) Restore(strs []string) {
	t.byID = t.byID[:1]
	t.byString = swiss.NewMap[string, uint32](len(strs) + 1)
	for _, s := range strs {
		id := uint32(len(t.byID))
		t.byID = append(t.byID, s)
		t.byString.Put(s, id)
	}
}

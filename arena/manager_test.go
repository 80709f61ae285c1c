package arena_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/arena"
	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
)

func newTestManager(t *testing.T) *arena.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.cache")
	f, err := cache.Create(path, cache.Options{DomVersion: 1, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return arena.NewManager(f, arena.Options{MemoryBudget: 1 << 20, Logger: base.NoopLogger{}})
}

func TestAllocGetModifyRoundTrip(t *testing.T) {
	m := newTestManager(t)

	addr, err := m.AllocRecord(arena.KindElement, 7, 0, []byte("hello"))
	require.NoError(t, err)

	owner, parent, payload, err := m.Get(arena.KindElement, addr)
	require.NoError(t, err)
	require.Equal(t, uint32(7), owner)
	require.Equal(t, uint32(0), parent)
	require.Equal(t, []byte("hello"), payload)

	newAddr, err := m.Modify(arena.KindElement, addr, 7, 0, []byte("hello, world"))
	require.NoError(t, err)

	_, _, payload, err = m.Get(arena.KindElement, newAddr)
	require.NoError(t, err)
	require.Equal(t, []byte("hello, world"), payload)
}

// TestFreeRecordThenEachSkipsTombstone exercises the record-header fix this
// arena depends on: a freed record's payload bytes are never moved until
// Compact runs, so Each's sequential walk must be able to step past a
// tombstoned record using its preserved length rather than stopping or
// misreading the next record's header.
func TestFreeRecordThenEachSkipsTombstone(t *testing.T) {
	m := newTestManager(t)

	addr1, err := m.AllocRecord(arena.KindText, 1, 0, []byte("first"))
	require.NoError(t, err)
	addr2, err := m.AllocRecord(arena.KindText, 2, 0, []byte("second"))
	require.NoError(t, err)
	addr3, err := m.AllocRecord(arena.KindText, 3, 0, []byte("third"))
	require.NoError(t, err)

	require.NoError(t, m.FreeRecord(arena.KindText, addr2))

	var owners []uint32
	var payloads []string
	require.NoError(t, m.Each(arena.KindText, func(addr arena.Address, owner, _ uint32, payload []byte) error {
		owners = append(owners, owner)
		payloads = append(payloads, string(payload))
		return nil
	}))

	require.Equal(t, []uint32{1, 3}, owners)
	require.Equal(t, []string{"first", "third"}, payloads)

	_, _, _, err = m.Get(arena.KindText, addr2)
	require.Error(t, err)

	_, _, payload, err := m.Get(arena.KindText, addr1)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), payload)
	_, _, payload, err = m.Get(arena.KindText, addr3)
	require.NoError(t, err)
	require.Equal(t, []byte("third"), payload)
}

func TestCompactRemapsLiveAddressesAndDropsFreed(t *testing.T) {
	m := newTestManager(t)

	addr1, err := m.AllocRecord(arena.KindElement, 1, 0, []byte("a"))
	require.NoError(t, err)
	addr2, err := m.AllocRecord(arena.KindElement, 2, 0, []byte("bb"))
	require.NoError(t, err)
	require.NoError(t, m.FreeRecord(arena.KindElement, addr1))

	remap := make(map[arena.Address]arena.Address)
	outcome, err := m.Compact(arena.KindElement, base.NoDeadline(), func(old, new arena.Address) {
		remap[old] = new
	})
	require.NoError(t, err)
	require.Equal(t, base.Done, outcome)

	newAddr2, ok := remap[addr2]
	require.True(t, ok)
	_, _, payload, err := m.Get(arena.KindElement, newAddr2)
	require.NoError(t, err)
	require.Equal(t, []byte("bb"), payload)

	var count int
	require.NoError(t, m.Each(arena.KindElement, func(arena.Address, uint32, uint32, []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.cache")
	f, err := cache.Create(path, cache.Options{DomVersion: 1, Logger: base.NoopLogger{}})
	require.NoError(t, err)

	m := arena.NewManager(f, arena.Options{MemoryBudget: 1 << 20, Logger: base.NoopLogger{}})
	addr, err := m.AllocRecord(arena.KindRect, 42, 0, []byte("rect-payload"))
	require.NoError(t, err)
	outcome, err := m.Save(arena.KindRect, base.NoDeadline())
	require.NoError(t, err)
	require.Equal(t, base.Done, outcome)
	require.NoError(t, f.Flush(true, base.NoDeadline()))
	require.NoError(t, f.Close())

	f2, err := cache.Open(path, cache.Options{DomVersion: 1, Logger: base.NoopLogger{}})
	require.NoError(t, err)
	defer f2.Close()
	m2 := arena.NewManager(f2, arena.Options{MemoryBudget: 1 << 20, Logger: base.NoopLogger{}})
	require.NoError(t, m2.Load(arena.KindRect))

	_, _, payload, err := m2.Get(arena.KindRect, addr)
	require.NoError(t, err)
	require.Equal(t, []byte("rect-payload"), payload)
}

package arena

import (
	"encoding/binary"
	"sort"

	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/internal/base"
	"github.com/readflow/domcache/metrics"
)

// arenaState holds one of the four typed arenas' chunk table and budget
// accounting.
type arenaState struct {
	kind       Kind
	chunkSize  int
	budget     int64 // max resident bytes across loaded chunks
	resident   int64 // current resident bytes (sum of loaded chunk.size cap, not tail)
	chunks     []*chunk
	clock      uint64
}

// Manager owns the four typed arenas (text, element, rect, style) described
// in spec.md §4.2. It is scoped to one document; there is no process-global
// arena state.
type Manager struct {
	file    *cache.File
	log     base.Logger
	metrics *metrics.Recorder
	arenas  [numKinds]*arenaState
}

// Options configures a Manager.
type Options struct {
	// MemoryBudget is the total per-document unpacked-memory cap in bytes;
	// each arena's share is budgetFraction() of this total.
	MemoryBudget int64
	Logger       base.Logger
	Metrics      *metrics.Recorder
}

// NewManager creates a Manager with empty arenas (used when creating a new
// document). Call Load instead to restore arenas from an existing cache.File.
func NewManager(file *cache.File, opts Options) *Manager {
	m := &Manager{file: file, log: opts.Logger, metrics: opts.Metrics}
	if m.log == nil {
		m.log = base.DefaultLogger{}
	}
	budget := opts.MemoryBudget
	if budget <= 0 {
		budget = 64 * 1024 * 1024
	}
	for k := Kind(0); k < numKinds; k++ {
		m.arenas[k] = &arenaState{
			kind:      k,
			chunkSize: k.defaultChunkSize(),
			budget:    int64(float64(budget) * k.budgetFraction()),
		}
	}
	return m
}

func (m *Manager) state(k Kind) *arenaState { return m.arenas[k] }

// AllocRecord appends a new record to the tail chunk of arena k, creating a
// fresh chunk if the tail chunk would overflow (spec.md §4.2 alloc_record).
func (m *Manager) AllocRecord(k Kind, owner, parent uint32, payload []byte) (Address, error) {
	as := m.state(k)
	if len(as.chunks) == 0 || !as.chunks[len(as.chunks)-1].fits(len(payload)) {
		idx := uint16(len(as.chunks))
		c := newChunk(idx, as.chunkSize)
		as.chunks = append(as.chunks, c)
		as.resident += int64(as.chunkSize)
		m.recordMetric(k, "chunk_created")
		if err := m.enforceBudget(as); err != nil {
			return 0, err
		}
	}
	tail := as.chunks[len(as.chunks)-1]
	if err := m.ensureLoaded(as, tail); err != nil {
		return 0, err
	}
	off := tail.append(owner, parent, payload)
	return newAddress(tail.index, off), nil
}

// FreeRecord tombstones the record at addr (spec.md §4.2 free_record).
func (m *Manager) FreeRecord(k Kind, addr Address) error {
	as := m.state(k)
	c, err := m.chunkFor(as, addr)
	if err != nil {
		return err
	}
	return c.tombstone(addr.Offset())
}

// Get returns the payload bytes stored at addr, paging the chunk in if
// necessary (spec.md §4.2 get).
func (m *Manager) Get(k Kind, addr Address) (owner, parent uint32, payload []byte, err error) {
	as := m.state(k)
	c, err := m.chunkFor(as, addr)
	if err != nil {
		return 0, 0, nil, err
	}
	as.clock++
	c.lastUsed = as.clock
	return c.recordAt(addr.Offset())
}

// Modify updates the record at addr in place when newPayload fits in the
// space the old payload occupied; otherwise it frees the old record and
// allocates a new one, returning the (possibly new) address (spec.md §4.2
// modify).
func (m *Manager) Modify(k Kind, addr Address, owner, parent uint32, newPayload []byte) (Address, error) {
	as := m.state(k)
	c, err := m.chunkFor(as, addr)
	if err != nil {
		return 0, err
	}
	_, _, old, err := c.recordAt(addr.Offset())
	if err != nil {
		return 0, err
	}
	if len(newPayload) <= len(old) {
		o := int(addr.Offset())
		copy(c.bytes[o+recordHeaderSize:o+recordHeaderSize+len(newPayload)], newPayload)
		binary.LittleEndian.PutUint16(c.bytes[o+8:o+10], uint16(len(newPayload)))
		c.state = stateLoadedDirty
		return addr, nil
	}
	if err := c.tombstone(addr.Offset()); err != nil {
		return 0, err
	}
	return m.AllocRecord(k, owner, parent, newPayload)
}

// SetParent rewrites the parent field of the record at addr without
// loading the full payload (spec.md §4.2 set_parent).
func (m *Manager) SetParent(k Kind, addr Address, parent uint32) error {
	as := m.state(k)
	c, err := m.chunkFor(as, addr)
	if err != nil {
		return err
	}
	return c.setParent(addr.Offset(), parent)
}

// GetParent returns the parent field of the record at addr (spec.md §4.2
// get_parent).
func (m *Manager) GetParent(k Kind, addr Address) (uint32, error) {
	_, parent, _, err := m.Get(k, addr)
	return parent, err
}

func (m *Manager) chunkFor(as *arenaState, addr Address) (*chunk, error) {
	idx := addr.ChunkIndex()
	if int(idx) >= len(as.chunks) {
		return nil, base.CorruptionErrorf("arena: address references chunk %d, have %d chunks", idx, len(as.chunks))
	}
	c := as.chunks[idx]
	if err := m.ensureLoaded(as, c); err != nil {
		return nil, err
	}
	as.clock++
	c.lastUsed = as.clock
	return c, nil
}

// ensureLoaded pages c in from the cache file if it's currently unloaded,
// then enforces the arena's memory budget by evicting other clean chunks.
func (m *Manager) ensureLoaded(as *arenaState, c *chunk) error {
	if c.state != stateUnloaded {
		return nil
	}
	data, err := m.file.Read(as.kind.blockType(), c.blockIdx)
	if err != nil {
		return err
	}
	c.bytes = data
	c.tail = len(data)
	c.state = stateLoadedClean
	as.resident += int64(as.chunkSize)
	m.recordMetric(as.kind, "chunk_loaded")
	return m.enforceBudget(as)
}

// enforceBudget evicts clean chunks (and flushes+evicts dirty ones) LRU
// until resident memory is back under budget (spec.md §4.2).
func (m *Manager) enforceBudget(as *arenaState) error {
	for as.resident > as.budget {
		victim := m.pickEvictionVictim(as)
		if victim == nil {
			break // nothing left to evict
		}
		if victim.state == stateLoadedDirty {
			if err := m.saveChunk(as, victim); err != nil {
				return err
			}
		}
		victim.bytes = nil
		victim.tail = 0
		victim.state = stateUnloaded
		as.resident -= int64(as.chunkSize)
		m.recordMetric(as.kind, "chunk_evicted")
	}
	return nil
}

func (m *Manager) pickEvictionVictim(as *arenaState) *chunk {
	var victim *chunk
	// Never evict the tail chunk: alloc_record always appends there.
	tailIdx := len(as.chunks) - 1
	for i, c := range as.chunks {
		if c.state == stateUnloaded || i == tailIdx {
			continue
		}
		if victim == nil || c.lastUsed < victim.lastUsed {
			victim = c
		}
	}
	return victim
}

func (m *Manager) recordMetric(k Kind, event string) {
	if m.metrics == nil {
		return
	}
	switch event {
	case "chunk_loaded":
		m.metrics.ArenaChunkLoaded(k.String())
	case "chunk_evicted":
		m.metrics.ArenaChunkEvicted(k.String())
	}
}

// Save writes every dirty chunk of arena k to the cache file, then writes
// the arena's directory block (chunk count + per-chunk block ids), honoring
// deadline between chunks (spec.md §4.2 save, §5 suspension points).
func (m *Manager) Save(k Kind, deadline base.Deadline) (base.Outcome, error) {
	as := m.state(k)
	for _, c := range as.chunks {
		if c.state != stateLoadedDirty {
			continue
		}
		if err := m.saveChunk(as, c); err != nil {
			return base.Error, err
		}
		if deadline.Expired() {
			return base.Timeout, nil
		}
	}
	if err := m.saveDirectory(as); err != nil {
		return base.Error, err
	}
	return base.Done, nil
}

func (m *Manager) saveChunk(as *arenaState, c *chunk) error {
	if err := m.file.Write(as.kind.blockType(), c.blockIdx, c.bytes, true); err != nil {
		return err
	}
	c.state = stateLoadedClean
	return nil
}

// directory is the tiny per-arena metadata block: chunk count plus each
// chunk's cache-file block index (spec.md §4.2 "load").
func (m *Manager) saveDirectory(as *arenaState) error {
	buf := make([]byte, 4+2*len(as.chunks))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(as.chunks)))
	for i, c := range as.chunks {
		binary.LittleEndian.PutUint16(buf[4+2*i:6+2*i], c.blockIdx)
	}
	return m.file.Write(as.kind.directoryBlockType(), uint16(as.kind), buf, false)
}

// Load reads arena k's directory block and fills the chunk table with
// unloaded entries that page in on demand (spec.md §4.2 load).
func (m *Manager) Load(k Kind) error {
	as := m.state(k)
	buf, err := m.file.Read(as.kind.directoryBlockType(), uint16(as.kind))
	if err != nil {
		return err
	}
	if len(buf) < 4 {
		return base.CorruptionErrorf("arena: directory block for %s too short", k)
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	as.chunks = make([]*chunk, 0, n)
	for i := uint32(0); i < n; i++ {
		off := 4 + 2*int(i)
		blockIdx := binary.LittleEndian.Uint16(buf[off : off+2])
		as.chunks = append(as.chunks, &chunk{
			index:    uint16(i),
			blockIdx: blockIdx,
			size:     as.chunkSize,
			state:    stateUnloaded,
		})
	}
	return nil
}

// Each walks every live record of arena k in chunk/offset order, invoking
// fn with the record's address, owner and parent handles, and payload
// bytes. It loads each chunk on demand (same as Get) and skips tombstoned
// records using the same header decoding Compact relies on. This is the
// primitive docstore.LoadFromCache uses to rebuild dom.Tree's
// handle-to-address maps after reopening a cache file, since chunk
// directories alone don't record which owner each record belongs to.
func (m *Manager) Each(k Kind, fn func(addr Address, owner, parent uint32, payload []byte) error) error {
	as := m.state(k)
	for _, c := range as.chunks {
		if err := m.ensureLoaded(as, c); err != nil {
			return err
		}
		off := uint16(0)
		for int(off)+recordHeaderSize <= len(c.bytes) {
			owner, parent, plen, live, err := c.recordHeaderAt(off)
			if err != nil {
				return err
			}
			payloadStart := int(off) + recordHeaderSize
			if live {
				payload := c.bytes[payloadStart : payloadStart+int(plen)]
				if err := fn(newAddress(c.index, off), owner, parent, payload); err != nil {
					return err
				}
			}
			off = uint16(payloadStart + int(plen))
		}
	}
	return nil
}

// Compact repacks live records of arena k into fresh chunks, dropping
// tombstones left by FreeRecord. It is an explicit maintenance operation,
// never run implicitly, implementing "a full save re-packs live records"
// from spec.md §4.2 as a named callable (SPEC_FULL.md §4.2 "added").
// remap, if non-nil, is called with the old and new address of each
// surviving record so higher layers can update their address maps.
func (m *Manager) Compact(k Kind, deadline base.Deadline, remap func(old, new Address)) (base.Outcome, error) {
	as := m.state(k)
	fresh := &arenaState{kind: k, chunkSize: as.chunkSize, budget: as.budget}
	for _, c := range as.chunks {
		if err := m.ensureLoaded(as, c); err != nil {
			return base.Error, err
		}
		off := uint16(0)
		for int(off)+recordHeaderSize <= len(c.bytes) {
			owner, parent, plen, live, err := c.recordHeaderAt(off)
			if err != nil {
				return base.Error, err
			}
			payloadStart := int(off) + recordHeaderSize
			if live {
				payload := c.bytes[payloadStart : payloadStart+int(plen)]
				oldAddr := newAddress(c.index, off)
				if len(fresh.chunks) == 0 || !fresh.chunks[len(fresh.chunks)-1].fits(int(plen)) {
					fresh.chunks = append(fresh.chunks, newChunk(uint16(len(fresh.chunks)), fresh.chunkSize))
				}
				tail := fresh.chunks[len(fresh.chunks)-1]
				newOff := tail.append(owner, parent, payload)
				if remap != nil {
					remap(oldAddr, newAddress(tail.index, newOff))
				}
			}
			off = uint16(payloadStart + int(plen))
		}
		if deadline.Expired() {
			return base.Timeout, nil
		}
	}
	// Free every old chunk's cache-file block only after the new chunks are
	// fully built, so a crash mid-compaction leaves the old (still-valid)
	// chunks reachable. File.Free no-ops for chunks never actually flushed.
	for _, c := range as.chunks {
		m.file.Free(as.kind.blockType(), c.blockIdx)
	}
	as.chunks = fresh.chunks
	as.resident = int64(len(fresh.chunks)) * int64(fresh.chunkSize)
	return base.Done, nil
}

// Stats reports per-kind chunk counts and resident bytes for the inspect
// CLI and for metrics export.
type Stats struct {
	Kind          Kind
	ChunkCount    int
	ResidentBytes int64
	BudgetBytes   int64
}

// AllStats returns Stats for every arena kind, ordered by Kind.
func (m *Manager) AllStats() []Stats {
	out := make([]Stats, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		as := m.state(k)
		out = append(out, Stats{Kind: k, ChunkCount: len(as.chunks), ResidentBytes: as.resident, BudgetBytes: as.budget})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

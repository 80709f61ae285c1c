package docstore

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/readflow/domcache/arena"
	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/dom"
	"github.com/readflow/domcache/internal/base"
)

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// Stage names one step of the resumable save machine spec.md §5 lays out.
// Stages run in order; SaveChanges checks the deadline between stages (and
// arena.Manager checks it again between chunks within stages 2-4 and 6) so a
// save that runs out of budget resumes from d.saveStage rather than
// restarting.
type Stage int

const (
	StageFlush Stage = iota
	StagePersistNodes
	StageSaveElemArena
	StageSaveTextArena
	StageSaveRectArena
	StageSaveBlobStore
	StageSaveStyleArena
	StageSaveProps
	StageSaveIDMaps
	StageSavePages
	StageSaveNodeIndex
	StageSaveRenderData
	StageSaveStylesData
	StageSaveFontsAndFinalFlush
	numStages
)

// String implements fmt.Stringer, used as the metrics label.
func (s Stage) String() string {
	switch s {
	case StageFlush:
		return "flush"
	case StagePersistNodes:
		return "persist_nodes"
	case StageSaveElemArena:
		return "save_elem_arena"
	case StageSaveTextArena:
		return "save_text_arena"
	case StageSaveRectArena:
		return "save_rect_arena"
	case StageSaveBlobStore:
		return "save_blob_store"
	case StageSaveStyleArena:
		return "save_style_arena"
	case StageSaveProps:
		return "save_props"
	case StageSaveIDMaps:
		return "save_id_maps"
	case StageSavePages:
		return "save_pages"
	case StageSaveNodeIndex:
		return "save_node_index"
	case StageSaveRenderData:
		return "save_render_data"
	case StageSaveStylesData:
		return "save_styles_data"
	case StageSaveFontsAndFinalFlush:
		return "save_fonts_and_final_flush"
	default:
		return "unknown"
	}
}

// SaveChanges drives the document through whichever stages remain (resuming
// from d.saveStage if a prior call timed out), checking ctx and deadline
// between each one. A Timeout outcome leaves d.saveStage at the first
// unfinished stage so the next call picks up there.
func (d *Document) SaveChanges(ctx context.Context, deadline base.Deadline, progressCB ProgressCallback) (base.Outcome, error) {
	for ; d.saveStage < numStages; d.saveStage++ {
		select {
		case <-ctx.Done():
			return base.Error, ctx.Err()
		default:
		}
		if deadline.Expired() {
			return base.Timeout, nil
		}

		start := time.Now()
		outcome, err := d.runStage(d.saveStage, deadline)
		d.recordStage(d.saveStage, time.Since(start))
		if err != nil {
			return base.Error, err
		}
		if outcome == base.Timeout {
			return base.Timeout, nil
		}

		d.maybeReportProgress(progressCB, (int(d.saveStage)+1)*100/int(numStages))
	}
	d.saveStage = 0
	return base.Done, nil
}

func (d *Document) runStage(stage Stage, deadline base.Deadline) (base.Outcome, error) {
	switch stage {
	case StageFlush:
		return base.Done, d.file.Flush(false, deadline)
	case StagePersistNodes:
		d.tree.PersistAll()
		return base.Done, nil
	case StageSaveElemArena:
		return d.mgr.Save(arena.KindElement, deadline)
	case StageSaveTextArena:
		return d.mgr.Save(arena.KindText, deadline)
	case StageSaveRectArena:
		return d.mgr.Save(arena.KindRect, deadline)
	case StageSaveBlobStore:
		return base.Done, d.blobs.Save()
	case StageSaveStyleArena:
		return d.mgr.Save(arena.KindStyle, deadline)
	case StageSaveProps:
		return base.Done, d.saveProps()
	case StageSaveIDMaps:
		return base.Done, d.saveIDMaps()
	case StageSavePages:
		return base.Done, d.savePageData()
	case StageSaveNodeIndex:
		return base.Done, d.saveNodeIndex()
	case StageSaveRenderData:
		return base.Done, d.saveRenderData()
	case StageSaveStylesData:
		return base.Done, d.saveStylesData()
	case StageSaveFontsAndFinalFlush:
		if err := d.saveFontsData(); err != nil {
			return base.Error, err
		}
		return base.Done, d.file.Flush(true, deadline)
	default:
		return base.Done, nil
	}
}

// LoadFromCache attempts to reconstruct a dom.Tree and its supporting tables
// entirely from what was last saved. formatCB is invoked first with the
// caller's expected document-format tag (spec.md §6); a false return
// declines the cache outright and LoadFromCache returns (false, nil) without
// touching any arena, leaving the caller to call NewTree and reparse.
func (d *Document) LoadFromCache(formatCB FormatCallback, progressCB ProgressCallback) (bool, error) {
	if progressCB != nil {
		progressCB.OnFormatStart()
	}
	accept := formatCB == nil || formatCB(d.opts.Format)
	if progressCB != nil {
		progressCB.OnFormatEnd()
	}
	if !accept {
		return false, nil
	}

	// The four arena kinds are independent on-disk directories (distinct
	// block indexes, distinct in-memory arenaState) guarded only by
	// cache.File's own mutex, so loading them is fanned out with errgroup
	// instead of the sequential walk a single shared resumption cursor would
	// otherwise force (there is no cross-kind deadline/suspension point to
	// preserve here, unlike the per-kind save stages).
	kinds := arena.AllKinds()
	var loaded int32
	var g errgroup.Group
	for _, k := range kinds {
		k := k
		g.Go(func() error {
			if err := d.mgr.Load(k); err != nil {
				return err
			}
			n := atomic.AddInt32(&loaded, 1)
			d.maybeReportProgress(progressCB, int(n)*100/len(kinds))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	tree, err := dom.LoadTree(d.mgr)
	if err != nil {
		return false, err
	}
	d.tree = tree

	if err := d.loadIDMaps(); err != nil {
		return false, err
	}

	if progressCB != nil {
		progressCB.OnNodeStylesUpdateStart()
	}
	if err := d.loadStylesData(); err != nil {
		return false, err
	}
	if err := d.loadFontsData(); err != nil {
		return false, err
	}
	if progressCB != nil {
		progressCB.OnNodeStylesUpdateEnd()
	}

	if err := d.loadProps(); err != nil {
		return false, err
	}
	if err := d.blobs.Load(); err != nil {
		return false, err
	}

	d.loadOptionalBlobs()

	d.saveStage = 0
	return true, nil
}

// loadOptionalBlobs restores the opaque pagination/rendering blobs saved by
// stages 9 and 11, tolerating their absence since a document saved before
// any pagination pass never wrote them.
func (d *Document) loadOptionalBlobs() {
	d.pageData = d.readOptionalBlock(cache.BlockTypePageData, 0)
	d.renderHeader = d.readOptionalBlock(cache.BlockTypeRendParams, 0)
	d.tocData = d.readOptionalBlock(cache.BlockTypeTocData, 0)
	d.pagemapData = d.readOptionalBlock(cache.BlockTypePagemapData, 0)
}

func (d *Document) readOptionalBlock(typ cache.BlockType, index uint16) []byte {
	buf, err := d.file.Read(typ, index)
	if err != nil {
		return nil
	}
	return buf
}

func (d *Document) savePageData() error {
	if d.pageData == nil {
		return nil
	}
	return d.file.Write(cache.BlockTypePageData, 0, d.pageData, true)
}

func (d *Document) saveRenderData() error {
	if d.renderHeader != nil {
		if err := d.file.Write(cache.BlockTypeRendParams, 0, d.renderHeader, true); err != nil {
			return err
		}
	}
	if d.tocData != nil {
		if err := d.file.Write(cache.BlockTypeTocData, 0, d.tocData, true); err != nil {
			return err
		}
	}
	if d.pagemapData != nil {
		if err := d.file.Write(cache.BlockTypePagemapData, 0, d.pagemapData, true); err != nil {
			return err
		}
	}
	return nil
}

// saveNodeIndex snapshots document order (a DFS over elements and their
// text children) into cache.BlockTypeElemNode/BlockTypeTextNode. Nothing in
// this package reads it back: dom.Tree stays the authoritative traversal
// order after a reload, so the block exists purely for external consumers
// that want document order without opening an arena directly.
func (d *Document) saveNodeIndex() error {
	var elems, texts []uint32
	var walk func(h dom.Handle)
	walk = func(h dom.Handle) {
		if !h.IsElement() {
			return
		}
		elems = append(elems, uint32(h))
		for i := 0; i < d.tree.ChildCount(h); i++ {
			c := d.tree.Child(h, i)
			if c.IsElement() {
				walk(c)
			} else {
				texts = append(texts, uint32(c))
			}
		}
	}
	walk(d.tree.Root())

	if err := d.file.Write(cache.BlockTypeElemNode, 0, encodeHandles(elems), true); err != nil {
		return err
	}
	return d.file.Write(cache.BlockTypeTextNode, 0, encodeHandles(texts), true)
}

func encodeHandles(hs []uint32) []byte {
	buf := make([]byte, 0, 4+4*len(hs))
	buf = appendUint32(buf, uint32(len(hs)))
	for _, h := range hs {
		buf = appendUint32(buf, h)
	}
	return buf
}

func (d *Document) saveStylesData() error {
	return d.file.Write(cache.BlockTypeStyleData, 0, encodePooledRecords(d.tree.Styles.Records()), true)
}

func (d *Document) loadStylesData() error {
	buf, err := d.file.Read(cache.BlockTypeStyleData, 0)
	if err != nil {
		if base.IsNotFound(err) {
			return nil
		}
		return err
	}
	recs, err := decodePooledRecords(buf)
	if err != nil {
		return err
	}
	d.tree.Styles.Restore(recs)
	return nil
}

func (d *Document) saveFontsData() error {
	return d.file.Write(cache.BlockTypeFontData, 0, encodePooledRecords(d.tree.Fonts.Records()), true)
}

func (d *Document) loadFontsData() error {
	buf, err := d.file.Read(cache.BlockTypeFontData, 0)
	if err != nil {
		if base.IsNotFound(err) {
			return nil
		}
		return err
	}
	recs, err := decodePooledRecords(buf)
	if err != nil {
		return err
	}
	d.tree.Fonts.Restore(recs)
	return nil
}

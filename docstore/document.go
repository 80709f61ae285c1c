// Package docstore implements the top-level orchestrator named in spec.md
// §6 but left undesigned there: Document owns one cache.File, one
// arena.Manager, one dom.Tree, one blob.Cache, and the id<->string intern
// tables, and drives the 14-stage resumable save machine from spec.md §5
// (SPEC_FULL.md §4.5).
package docstore

import (
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/tokenbucket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/readflow/domcache/arena"
	"github.com/readflow/domcache/blob"
	"github.com/readflow/domcache/cache"
	"github.com/readflow/domcache/dom"
	"github.com/readflow/domcache/internal/base"
	"github.com/readflow/domcache/metrics"
	"github.com/readflow/domcache/writer"
)

// Options configures a Document at Open/Create time.
type Options struct {
	DomVersion   uint32
	Compress     cache.CompressionType
	MemoryBudget int64
	Logger       base.Logger
	// MetricsRegisterer optionally attaches a metrics.Recorder; nil means
	// every metrics call is a no-op (SPEC_FULL.md §5a).
	MetricsRegisterer prometheus.Registerer
	ValidateContents  bool
	// Format is the caller's expected document-format tag, passed to
	// FormatCallback at LoadFromCache time (spec.md §6).
	Format string
	// ProgressRateLimit caps how often a non-nil ProgressCallback is
	// actually invoked during a long save/load, in calls per second. Zero
	// defaults to 20/s.
	ProgressRateLimit float64
}

func (o Options) logger() base.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return base.DefaultLogger{}
}

// Document is the per-book orchestrator. It is not safe for concurrent use
// (spec.md §5's single-threaded, single-owner model).
type Document struct {
	file  *cache.File
	mgr   *arena.Manager
	tree  *dom.Tree
	blobs *blob.Cache
	log   base.Logger
	met   *metrics.Recorder
	opts  Options

	props map[string]string

	pageData     []byte
	renderHeader []byte
	tocData      []byte
	pagemapData  []byte
	renderedHash uint64

	saveStage Stage
	stageHist [numStages]*hdrhistogram.Histogram
	throttle  tokenbucket.TokenBucket
	// progressMu guards throttle: LoadFromCache fans arena loading out across
	// goroutines (one per kind) that may all report progress at once, and
	// tokenbucket.TokenBucket isn't safe for concurrent use on its own.
	progressMu sync.Mutex
}

// Create initializes a brand-new document at path: an empty cache file,
// empty arenas, and a fresh dom.Tree ready for a writer to populate.
func Create(path string, opts Options) (*Document, error) {
	f, err := cache.Create(path, cache.Options{
		DomVersion: opts.DomVersion,
		Compress:   opts.Compress,
		Logger:     opts.logger(),
	})
	if err != nil {
		return nil, err
	}
	return newDocument(f, opts, true), nil
}

// Open opens an existing cache file at path without yet materializing a
// dom.Tree: call LoadFromCache to attempt to reconstruct one, or NewTree to
// start fresh if the cache turns out stale or absent (spec.md §6).
func Open(path string, opts Options) (*Document, error) {
	f, err := cache.Open(path, cache.Options{
		DomVersion:       opts.DomVersion,
		Compress:         opts.Compress,
		Logger:           opts.logger(),
		ValidateContents: opts.ValidateContents,
	})
	if err != nil {
		return nil, err
	}
	return newDocument(f, opts, false), nil
}

func newDocument(f *cache.File, opts Options, fresh bool) *Document {
	log := opts.logger()
	var met *metrics.Recorder
	if opts.MetricsRegisterer != nil {
		met = metrics.NewRecorder(opts.MetricsRegisterer)
	}
	mgr := arena.NewManager(f, arena.Options{MemoryBudget: opts.MemoryBudget, Logger: log, Metrics: met})
	d := &Document{
		file:  f,
		mgr:   mgr,
		blobs: blob.New(f, log),
		log:   log,
		met:   met,
		opts:  opts,
		props: make(map[string]string),
	}
	rate := opts.ProgressRateLimit
	if rate <= 0 {
		rate = 20
	}
	d.throttle.Init(tokenbucket.Rate(rate), tokenbucket.Tokens(1))
	for i := range d.stageHist {
		d.stageHist[i] = hdrhistogram.New(1, 10_000_000, 3)
	}
	if fresh {
		d.tree = dom.NewTree(mgr)
	}
	return d
}

// Tree returns the document's dom.Tree, or nil if neither Create nor a
// successful LoadFromCache (nor an explicit NewTree) has run yet.
func (d *Document) Tree() *dom.Tree { return d.tree }

// NewTree discards any current tree and starts a fresh, empty one — the
// path taken when LoadFromCache declines to reuse the cache and the caller
// must reparse the source document.
func (d *Document) NewTree() *dom.Tree {
	d.tree = dom.NewTree(d.mgr)
	return d.tree
}

// writerOptions builds the writer.Options every Writer/FilterWriter this
// Document constructs must share: blobs go into the document's own BLOB
// cache, and document properties the parser reports (title, declared
// encoding, etc.) land in d.props via SetProp (spec.md §4.4's callback
// channel, mirrored for OnDocProperty the same way RegisterFont is).
func (d *Document) writerOptions() writer.Options {
	return writer.Options{
		Logger:        d.log,
		Blobs:         d.blobs,
		OnDocProperty: d.SetProp,
	}
}

// NewWriter returns a strict writer.Writer over this document's tree, wired
// to record BLOBs and document properties against this Document.
func (d *Document) NewWriter() *writer.Writer {
	return writer.New(d.tree, d.writerOptions())
}

// NewFilterWriter returns a lossy writer.FilterWriter over this document's
// tree, wired the same way as NewWriter.
func (d *Document) NewFilterWriter() *writer.FilterWriter {
	return writer.NewFilter(d.tree, d.writerOptions())
}

// Blobs returns the document's BLOB cache.
func (d *Document) Blobs() *blob.Cache { return d.blobs }

// AddBlob stores data under name in the document's BLOB cache.
func (d *Document) AddBlob(name string, data []byte) error { return d.blobs.Add(name, data) }

// GetBlob returns a reader over the blob stored under name.
func (d *Document) GetBlob(name string) (io.ReadSeeker, error) { return d.blobs.Get(name) }

// SetRenderedContextHash records the hash an external renderer computed for
// its current layout context, persisted with the next SaveChanges so a
// subsequent LoadFromCache can tell the caller whether rendering can be
// skipped (spec.md §6 "render hook point").
func (d *Document) SetRenderedContextHash(hash uint64) { d.renderedHash = hash }

// RenderedContextHash returns the last hash set via SetRenderedContextHash
// or restored by LoadFromCache.
func (d *Document) RenderedContextHash() uint64 { return d.renderedHash }

// SetPageData/PageData, SetRenderHeaderData/RenderHeaderData,
// SetTOCData/TOCData, and SetPagemapData/PagemapData round-trip the
// pagination/rendering byte blobs spec.md names but leaves wholly out of
// scope (§1): this package stores and returns them opaquely, never
// interpreting their contents.

func (d *Document) SetPageData(b []byte) { d.pageData = b }
func (d *Document) PageData() []byte     { return d.pageData }

func (d *Document) SetRenderHeaderData(b []byte) { d.renderHeader = b }
func (d *Document) RenderHeaderData() []byte     { return d.renderHeader }

func (d *Document) SetTOCData(b []byte) { d.tocData = b }
func (d *Document) TOCData() []byte     { return d.tocData }

func (d *Document) SetPagemapData(b []byte) { d.pagemapData = b }
func (d *Document) PagemapData() []byte     { return d.pagemapData }

// SetProp/Prop expose the small document-properties map (title, declared
// encoding, etc.) that stage 7 persists.
func (d *Document) SetProp(key, value string) { d.props[key] = value }
func (d *Document) Prop(key string) (string, bool) {
	v, ok := d.props[key]
	return v, ok
}

// Close releases the underlying cache file (and its advisory lock, if any).
func (d *Document) Close() error { return d.file.Close() }

// StageStats reports one save stage's recorded-duration percentiles, in
// microseconds.
type StageStats struct {
	Stage        Stage
	P50, P99     int64
	Max          int64
	SampledCount int64
}

// Stats returns per-stage latency percentiles recorded across every
// SaveChanges call this Document has made (SPEC_FULL.md §5a).
func (d *Document) Stats() []StageStats {
	out := make([]StageStats, 0, numStages)
	for i, h := range d.stageHist {
		out = append(out, StageStats{
			Stage:        Stage(i),
			P50:          h.ValueAtQuantile(50),
			P99:          h.ValueAtQuantile(99),
			Max:          h.Max(),
			SampledCount: h.TotalCount(),
		})
	}
	return out
}

func (d *Document) recordStage(stage Stage, elapsed time.Duration) {
	d.stageHist[stage].RecordValue(elapsed.Microseconds())
	if d.met != nil {
		d.met.ObserveSaveStage(stage.String(), elapsed.Seconds())
	}
}

// maybeReportProgress invokes cb if non-nil and the progress throttle has a
// token available, so a caller passing a ProgressCallback into a long save
// isn't flooded with a callback per arena chunk (SPEC_FULL.md §5a's
// tokenbucket-throttled progress wiring).
func (d *Document) maybeReportProgress(cb ProgressCallback, percent int) {
	if cb == nil {
		return
	}
	d.progressMu.Lock()
	ok, _ := d.throttle.TryToFulfill(1)
	d.progressMu.Unlock()
	if ok {
		cb.OnSaveCacheFileProgress(percent)
	}
}

// Package metrics exports the counters and gauges named in SPEC_FULL.md §5a
// through a prometheus.Registerer, following the same client_golang wiring
// the retrieval pack's storage-engine examples use: collectors are created
// once, held on a struct, and passed down by reference rather than reached
// for through globals.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder holds every domcache metric. A nil *Recorder is valid and turns
// every method into a no-op, so callers that don't care about metrics (most
// tests) can pass nil instead of threading a real registry through.
type Recorder struct {
	blocksRead    *prometheus.CounterVec
	blocksWritten *prometheus.CounterVec
	arenaChunks   *prometheus.GaugeVec
	arenaEvicted  *prometheus.CounterVec
	cacheDirty    prometheus.Gauge
	saveStage     *prometheus.HistogramVec
}

// NewRecorder registers domcache's collectors against reg and returns a
// Recorder. Passing a fresh prometheus.NewRegistry() per document keeps
// label cardinality bounded to that document's lifetime.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		blocksRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domcache_blocks_read_total",
			Help: "Number of cache blocks read from the underlying stream.",
		}, []string{"type"}),
		blocksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domcache_blocks_written_total",
			Help: "Number of cache blocks written to the underlying stream.",
		}, []string{"type"}),
		arenaChunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "domcache_arena_chunks_resident",
			Help: "Number of arena chunks currently loaded in memory, by kind.",
		}, []string{"kind"}),
		arenaEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domcache_arena_evictions_total",
			Help: "Number of arena chunk evictions, by kind.",
		}, []string{"kind"}),
		cacheDirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "domcache_cache_dirty",
			Help: "1 if the cache file has unsaved changes, 0 otherwise.",
		}),
		saveStage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "domcache_save_stage_duration_seconds",
			Help:    "Latency of each save-stage, by stage name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(r.blocksRead, r.blocksWritten, r.arenaChunks, r.arenaEvicted, r.cacheDirty, r.saveStage)
	return r
}

// BlockRead records one block read of the given type.
func (r *Recorder) BlockRead(blockType string) {
	if r == nil {
		return
	}
	r.blocksRead.WithLabelValues(blockType).Inc()
}

// BlockWritten records one block write of the given type.
func (r *Recorder) BlockWritten(blockType string) {
	if r == nil {
		return
	}
	r.blocksWritten.WithLabelValues(blockType).Inc()
}

// ArenaChunkLoaded records a chunk transitioning from unloaded to resident.
func (r *Recorder) ArenaChunkLoaded(kind string) {
	if r == nil {
		return
	}
	r.arenaChunks.WithLabelValues(kind).Inc()
}

// ArenaChunkEvicted records a chunk transitioning from resident back to
// unloaded, and bumps the eviction counter for that kind.
func (r *Recorder) ArenaChunkEvicted(kind string) {
	if r == nil {
		return
	}
	r.arenaChunks.WithLabelValues(kind).Dec()
	r.arenaEvicted.WithLabelValues(kind).Inc()
}

// SetDirty reports the cache file's dirty flag.
func (r *Recorder) SetDirty(dirty bool) {
	if r == nil {
		return
	}
	if dirty {
		r.cacheDirty.Set(1)
	} else {
		r.cacheDirty.Set(0)
	}
}

// ObserveSaveStage records how long one save stage took.
func (r *Recorder) ObserveSaveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.saveStage.WithLabelValues(stage).Observe(seconds)
}

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/metrics"
)

func TestRecorderIncrementsRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRecorder(reg)

	r.BlockRead("TEXT_DATA")
	r.BlockRead("TEXT_DATA")
	r.ArenaChunkLoaded("element")
	r.ArenaChunkEvicted("element")
	r.SetDirty(true)
	r.ObserveSaveStage("flush", 0.002)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "domcache_blocks_read_total")
	require.Equal(t, float64(2), byName["domcache_blocks_read_total"].Metric[0].Counter.GetValue())

	require.Contains(t, byName, "domcache_cache_dirty")
	require.Equal(t, float64(1), byName["domcache_cache_dirty"].Metric[0].Gauge.GetValue())

	require.Contains(t, byName, "domcache_arena_evictions_total")
	require.Contains(t, byName, "domcache_save_stage_duration_seconds")
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *metrics.Recorder
	require.NotPanics(t, func() {
		r.BlockRead("x")
		r.BlockWritten("x")
		r.ArenaChunkLoaded("x")
		r.ArenaChunkEvicted("x")
		r.SetDirty(true)
		r.ObserveSaveStage("flush", 1)
	})
}

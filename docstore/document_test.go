package docstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/readflow/domcache/dom"
	"github.com/readflow/domcache/internal/base"
)

func sampleRect() dom.RenderRect {
	return dom.RenderRect{X: 1, Y: 2, W: 3, H: 4}
}

func testOptions() Options {
	return Options{DomVersion: 1, Logger: base.NoopLogger{}, Format: "xhtml"}
}

// buildSampleTree populates a small tree: <root><p>hello</p><p>world</p></root>.
func buildSampleTree(d *Document) {
	tree := d.Tree()
	root := tree.Root()
	p1 := tree.InsertChildElement(root, 0, 0, 10)
	tree.InsertChildText(p1, 0, "hello")
	p2 := tree.InsertChildElement(root, 1, 0, 10)
	tree.InsertChildText(p2, 0, "world")
	tree.SetRenderRect(p1, sampleRect())
	d.SetProp("title", "sample")
	d.SetRenderedContextHash(0xdeadbeef)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.cache")

	d, err := Create(path, testOptions())
	require.NoError(t, err)
	buildSampleTree(d)

	outcome, err := d.SaveChanges(context.Background(), base.NoDeadline(), nil)
	require.NoError(t, err)
	require.Equal(t, base.Done, outcome)
	require.NoError(t, d.Close())

	d2, err := Open(path, testOptions())
	require.NoError(t, err)
	defer d2.Close()

	ok, err := d2.LoadFromCache(func(format string) bool {
		require.Equal(t, "xhtml", format)
		return true
	}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	tree := d2.Tree()
	root := tree.Root()
	require.Equal(t, 2, tree.ChildCount(root))

	p1 := tree.Child(root, 0)
	require.Equal(t, 1, tree.ChildCount(p1))
	require.Equal(t, "hello", tree.TextUTF8(tree.Child(p1, 0)))

	p2 := tree.Child(root, 1)
	require.Equal(t, "world", tree.TextUTF8(tree.Child(p2, 0)))

	rect := tree.RenderRect(p1)
	require.Equal(t, sampleRect(), rect)

	title, ok := d2.Prop("title")
	require.True(t, ok)
	require.Equal(t, "sample", title)
	require.Equal(t, uint64(0xdeadbeef), d2.RenderedContextHash())
}

func TestNewWriterReportsDocPropertiesToDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.cache")
	d, err := Create(path, testOptions())
	require.NoError(t, err)
	defer d.Close()

	w := d.NewWriter()
	w.OnDocProperty("title", "a tale")

	got, ok := d.Prop("title")
	require.True(t, ok)
	require.Equal(t, "a tale", got)
}

func TestNewFilterWriterReportsDocPropertiesToDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.cache")
	d, err := Create(path, testOptions())
	require.NoError(t, err)
	defer d.Close()

	w := d.NewFilterWriter()
	w.OnDocProperty("author", "anonymous")

	got, ok := d.Prop("author")
	require.True(t, ok)
	require.Equal(t, "anonymous", got)
}

func TestLoadFromCacheDeclinedByFormatCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.cache")

	d, err := Create(path, testOptions())
	require.NoError(t, err)
	buildSampleTree(d)
	_, err = d.SaveChanges(context.Background(), base.NoDeadline(), nil)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d2, err := Open(path, testOptions())
	require.NoError(t, err)
	defer d2.Close()

	ok, err := d2.LoadFromCache(func(string) bool { return false }, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, d2.Tree())

	d2.NewTree()
	require.NotNil(t, d2.Tree())
}

func TestStatsRecordsEveryStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.cache")
	d, err := Create(path, testOptions())
	require.NoError(t, err)
	defer d.Close()
	buildSampleTree(d)

	_, err = d.SaveChanges(context.Background(), base.NoDeadline(), nil)
	require.NoError(t, err)

	stats := d.Stats()
	require.Len(t, stats, int(numStages))
	for _, s := range stats {
		require.Equal(t, int64(1), s.SampledCount)
	}
}

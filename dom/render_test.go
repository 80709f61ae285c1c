package dom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// alwaysDisplay returns a DisplayResolver that reports d for target and
// DisplayInline for everything else, matching how a real style engine would
// resolve the handful of elements these render-method tests build by hand.
func alwaysDisplay(target Handle, d Display) DisplayResolver {
	return func(h Handle) Display {
		if SameNode(h, target) {
			return d
		}
		return DisplayInline
	}
}

func neverReplaced(Handle) bool { return false }

// TestWrapRubyPerSegmentTrees covers the two-annotation ruby example worked
// through step-by-step in spec.md §8 scenario 5:
// <ruby>漢<rt>kan</rt>字<rt>ji</rt></ruby> must produce two independent
// inlineBox>rubyBox trees, one per base/annotation run, not one rubyBox
// table shared across the whole <ruby> element.
func TestWrapRubyPerSegmentTrees(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	rubyTag := uint16(tr.Names.Intern("ruby"))
	rtTag := uint16(tr.Names.Intern("rt"))

	ruby := tr.InsertChildElement(root, 0, nsID, rubyTag)
	tr.InsertChildText(ruby, 0, "漢")
	rt1 := tr.InsertChildElement(ruby, 1, nsID, rtTag)
	tr.InsertChildText(rt1, 0, "kan")
	tr.InsertChildText(ruby, 2, "字")
	rt2 := tr.InsertChildElement(ruby, 3, nsID, rtTag)
	tr.InsertChildText(rt2, 0, "ji")

	resolve := alwaysDisplay(ruby, DisplayRuby)
	got := tr.ComputeRendMethod(ruby, resolve, neverReplaced, false)
	require.Equal(t, ErmInline, got)

	require.Equal(t, 2, tr.ChildCount(ruby), "one inlineBox per ruby segment")

	inlineBoxTag := uint16(tr.Names.Intern("inlineBox"))
	rubyBoxTag := uint16(tr.Names.Intern("rubyBox"))
	rbcTag := uint16(tr.Names.Intern("rbc"))
	rtcTag := uint16(tr.Names.Intern("rtc"))
	rbTag := uint16(tr.Names.Intern("rb"))

	wantBase := []string{"漢", "字"}
	wantAnnotation := []string{"kan", "ji"}
	for i := 0; i < 2; i++ {
		box := tr.Child(ruby, i)
		require.True(t, box.IsElement())
		require.Equal(t, inlineBoxTag, tr.NodeID(box))
		require.Equal(t, ErmInline, tr.RendMethod(box))
		require.Equal(t, 1, tr.ChildCount(box), "each inlineBox wraps its own rubyBox")

		table := tr.Child(box, 0)
		require.Equal(t, rubyBoxTag, tr.NodeID(table))
		require.Equal(t, ErmTable, tr.RendMethod(table))
		require.Equal(t, 2, tr.ChildCount(table))

		rbc := tr.Child(table, 0)
		require.Equal(t, rbcTag, tr.NodeID(rbc))
		rb := tr.Child(rbc, 0)
		require.Equal(t, rbTag, tr.NodeID(rb))
		require.Equal(t, wantBase[i], tr.TextUTF8(tr.Child(rb, 0)))

		rtc := tr.Child(table, 1)
		require.Equal(t, rtcTag, tr.NodeID(rtc))
		rt := tr.Child(rtc, 0)
		require.Equal(t, rtTag, tr.NodeID(rt))
		require.Equal(t, wantAnnotation[i], tr.TextUTF8(tr.Child(rt, 0)))
	}
}

// TestWrapRubyEmptyBaseGetsZeroWidthSpace covers the annotation-only case,
// <ruby><rt>note</rt></ruby>, where the rb cell has no original content and
// must be filled with a zero-width space so it still lays out as a cell.
func TestWrapRubyEmptyBaseGetsZeroWidthSpace(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	nsID := uint16(tr.Namespaces.Intern("html"))
	rubyTag := uint16(tr.Names.Intern("ruby"))
	rtTag := uint16(tr.Names.Intern("rt"))

	ruby := tr.InsertChildElement(root, 0, nsID, rubyTag)
	rt := tr.InsertChildElement(ruby, 0, nsID, rtTag)
	tr.InsertChildText(rt, 0, "note")

	resolve := alwaysDisplay(ruby, DisplayRuby)
	tr.ComputeRendMethod(ruby, resolve, neverReplaced, false)

	require.Equal(t, 1, tr.ChildCount(ruby))
	box := tr.Child(ruby, 0)
	table := tr.Child(box, 0)
	rbc := tr.Child(table, 0)
	rb := tr.Child(rbc, 0)
	require.Equal(t, 1, tr.ChildCount(rb))
	require.Equal(t, "​", tr.TextUTF8(tr.Child(rb, 0)))
}

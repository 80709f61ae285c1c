package dom

// ComputeRendMethod derives h's render method bottom-up (spec.md §4.3's
// 8-step algorithm). Callers walk the tree post-order (children before
// parents) and call this once per element; resolve reports the resolved
// CSS display value for an element since a full style/CSS engine is out of
// scope for this module (spec.md §1).
func (t *Tree) ComputeRendMethod(h Handle, resolve DisplayResolver, isReplaced func(Handle) bool, ancestorInvisible bool) RendMethod {
	disp := resolve(h)

	// Step 1: display:none or an invisible ancestor.
	if disp == DisplayNone || ancestorInvisible {
		t.SetRendMethod(h, ErmInvisible)
		return ErmInvisible
	}

	// Step 2: replaced objects (images, etc.) are always final.
	if isReplaced(h) {
		t.SetRendMethod(h, ErmFinal)
		return ErmFinal
	}

	// Step 3: table / inline-table, with cell/row/group wrapping.
	if disp == DisplayTable || disp == DisplayInlineTable {
		t.wrapTable(h, resolve)
		t.SetRendMethod(h, ErmTable)
		return ErmTable
	}

	// Step 5: ruby produces its own small inline-table.
	if disp == DisplayRuby {
		t.wrapRuby(h, resolve)
		t.SetRendMethod(h, ErmInline)
		return ErmInline
	}

	allInline, allBlock, anyChildren := t.childDisplaySummary(h, resolve)

	// Step 4: inline container with only inline children stays inline;
	// otherwise each block-level child is boxed as an embedded block.
	if disp == DisplayInline {
		if !anyChildren || allInline {
			t.SetRendMethod(h, ErmInline)
			return ErmInline
		}
		t.wrapInlineBlockChildren(h, resolve)
		t.SetRendMethod(h, ErmInline)
		return ErmInline
	}

	// Step 6: container with only inline children (including floats).
	if !anyChildren || allInline {
		t.SetRendMethod(h, ErmFinal)
		return ErmFinal
	}

	// Step 7: container with only block children.
	if allBlock {
		t.SetRendMethod(h, ErmBlock)
		return ErmBlock
	}

	// Step 8: mixed children — wrap consecutive inline runs in autoBoxing.
	t.wrapMixedChildren(h, resolve)
	t.SetRendMethod(h, ErmBlock)
	return ErmBlock
}

// childDisplaySummary reports whether all of h's element children are
// currently inline-rendered, all are block-rendered, and whether h has any
// element children at all (text-only/empty containers are handled by the
// caller as "all inline").
func (t *Tree) childDisplaySummary(h Handle, resolve DisplayResolver) (allInline, allBlock, any bool) {
	allInline, allBlock = true, true
	for i := 0; i < t.ChildCount(h); i++ {
		c := t.Child(h, i)
		if c.IsText() {
			continue
		}
		any = true
		if t.RendMethod(c).isInline() {
			allBlock = false
		} else {
			allInline = false
		}
	}
	return allInline, allBlock, any
}

// wrapInlineBlockChildren wraps each block-level child of an inline
// container h in an anonymous inlineBox[T=EmbeddedBlock] element (step 4).
func (t *Tree) wrapInlineBlockChildren(h Handle, resolve DisplayResolver) {
	tagID := t.Names.Intern("inlineBox")
	for i := 0; i < t.ChildCount(h); i++ {
		c := t.Child(h, i)
		if c.IsText() || t.RendMethod(c).isInline() {
			continue
		}
		if t.isBoxing(t.Parent(c)) {
			continue // already wrapped by a previous pass
		}
		box := t.InsertChildElement(h, i, t.NSID(h), uint16(tagID))
		t.SetRendMethod(box, ErmBlock)
		t.MoveItemsTo(h, box, i+1, i+2)
	}
}

// wrapMixedChildren wraps each maximal run of consecutive inline children
// of h in one autoBoxing element set to final (step 8).
func (t *Tree) wrapMixedChildren(h Handle, resolve DisplayResolver) {
	tagID := uint16(t.Names.Intern("autoBoxing"))
	i := 0
	for i < t.ChildCount(h) {
		c := t.Child(h, i)
		if c.IsElement() && !t.RendMethod(c).isInline() {
			i++
			continue
		}
		runStart := i
		for i < t.ChildCount(h) {
			c := t.Child(h, i)
			if c.IsElement() && !t.RendMethod(c).isInline() {
				break
			}
			i++
		}
		box := t.InsertChildElement(h, runStart, t.NSID(h), tagID)
		t.SetRendMethod(box, ErmFinal)
		t.MoveItemsTo(h, box, runStart+1, i+1)
		i = runStart + 1
	}
}

// tableInternalDisplays is the set of display values CSS 2.2 treats as
// already belonging somewhere inside a table without needing a tabularBox
// wrapper of their own (spec.md §4.3.1).
func isTableInternal(d Display) bool {
	switch d {
	case DisplayTableRowGroup, DisplayTableHeaderGroup, DisplayTableFooterGroup,
		DisplayTableRow, DisplayTableColumnGroup, DisplayTableColumn, DisplayTableCaption:
		return true
	default:
		return false
	}
}

// wrapTable applies the anonymous-table-box generation rules of spec.md
// §4.3.1: a run of table-cell children not already under a table-row is
// wrapped in a tabularBox[table_row]; any child of a table not in the
// table-internal display set is wrapped in a tabularBox[table_row].
// Previously inserted tabularBox elements (detected by tag id) are reused
// on a second pass rather than duplicated.
func (t *Tree) wrapTable(h Handle, resolve DisplayResolver) {
	tagID := uint16(t.Names.Intern("tabularBox"))
	i := 0
	for i < t.ChildCount(h) {
		c := t.Child(h, i)
		if c.IsElement() && t.NodeID(c) == tagID {
			i++ // already a wrapper from a previous save; reuse, don't duplicate
			continue
		}
		if c.IsElement() && isTableInternal(resolve(c)) {
			i++
			continue
		}
		if c.IsText() {
			i++
			continue
		}
		if resolve(c) == DisplayTableCell {
			runStart := i
			for i < t.ChildCount(h) {
				cc := t.Child(h, i)
				if cc.IsElement() && resolve(cc) == DisplayTableCell {
					i++
					continue
				}
				break
			}
			box := t.InsertChildElement(h, runStart, t.NSID(h), tagID)
			t.SetRendMethod(box, ErmTableRow)
			t.MoveItemsTo(h, box, runStart+1, i+1)
			i = runStart + 1
			continue
		}
		// Anything else misparented directly under a table row context
		// gets wrapped as its own row too (conservative default per the
		// "generate missing parents" rule).
		box := t.InsertChildElement(h, i, t.NSID(h), tagID)
		t.SetRendMethod(box, ErmTableRow)
		t.MoveItemsTo(h, box, i+1, i+2)
		i++
	}
}

// wrapRuby implements the per-segment ruby wrapping of spec.md §4.3.2: one
// or more ruby segments, each its own <inlineBox><rubyBox erm=table>
// <rbc><rb>...</rb></rbc><rtc><rt>...</rt></rtc></rubyBox></inlineBox>
// tree, exactly as spec.md §8 scenario 5 works through for
// "<ruby>漢<rt>kan</rt>字<rt>ji</rt></ruby>" — two separate trees, not one
// table shared across the whole <ruby> element. A segment is everything up
// to and including its terminating <rt>; an empty rb cell gets a
// zero-width space when a segment's base text is missing.
func (t *Tree) wrapRuby(h Handle, resolve DisplayResolver) {
	inlineBoxID := uint16(t.Names.Intern("inlineBox"))
	rubyBoxID := uint16(t.Names.Intern("rubyBox"))
	rbcID := uint16(t.Names.Intern("rbc"))
	rtcID := uint16(t.Names.Intern("rtc"))
	rbID := uint16(t.Names.Intern("rb"))
	rtID := uint16(t.Names.Intern("rt"))
	ns := t.NSID(h)

	i := 0
	for i < t.ChildCount(h) {
		segStart := i
		hasRt := false
		for i < t.ChildCount(h) {
			c := t.Child(h, i)
			i++
			if c.IsElement() && t.NodeID(c) == rtID {
				hasRt = true
				break
			}
		}
		segLen := i - segStart

		box := t.InsertChildElement(h, segStart, ns, inlineBoxID)
		t.SetRendMethod(box, ErmInline)
		table := t.InsertChildElement(box, 0, ns, rubyBoxID)
		t.SetRendMethod(table, ErmTable)

		rbc := t.InsertChildElement(table, 0, ns, rbcID)
		t.SetRendMethod(rbc, ErmTableRow)
		rb := t.InsertChildElement(rbc, 0, ns, rbID)
		t.SetRendMethod(rb, ErmFinal)

		rtc := t.InsertChildElement(table, 1, ns, rtcID)
		t.SetRendMethod(rtc, ErmTableRow)

		// The segment's original children now sit right after box (the
		// InsertChildElement above shifted them over by one); the rb content
		// moves under the new rb cell and the terminating <rt> (if any) moves
		// under rtc as its annotation cell, each move bringing the next one
		// into place. A segment without an <rt> gets an empty inserted one.
		rbCount := segLen
		if hasRt {
			rbCount--
		}
		for n := 0; n < rbCount; n++ {
			t.MoveItemsTo(h, rb, segStart+1, segStart+2)
		}
		if rbCount == 0 {
			t.InsertChildText(rb, 0, "​")
		}
		if hasRt {
			rt := t.Modify(t.Child(h, segStart+1))
			t.MoveItemsTo(h, rtc, segStart+1, segStart+2)
			t.SetRendMethod(rt, ErmFinal)
		} else {
			rt := t.InsertChildElement(rtc, 0, ns, rtID)
			t.SetRendMethod(rt, ErmFinal)
		}

		i = segStart + 1
	}
}

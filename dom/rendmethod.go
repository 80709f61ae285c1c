package dom

// RendMethod is the set of render methods an element can resolve to
// (spec.md §3 invariant).
type RendMethod uint8

const (
	ErmInvisible RendMethod = iota
	ErmKilled
	ErmBlock
	ErmFinal
	ErmInline
	ErmTable
	ErmTableRowGroup
	ErmTableHeaderGroup
	ErmTableFooterGroup
	ErmTableRow
	ErmTableColumnGroup
	ErmTableColumn
	ErmTableCell
)

// String implements fmt.Stringer.
func (m RendMethod) String() string {
	switch m {
	case ErmInvisible:
		return "invisible"
	case ErmKilled:
		return "killed"
	case ErmBlock:
		return "block"
	case ErmFinal:
		return "final"
	case ErmInline:
		return "inline"
	case ErmTable:
		return "table"
	case ErmTableRowGroup:
		return "table_row_group"
	case ErmTableHeaderGroup:
		return "table_header_group"
	case ErmTableFooterGroup:
		return "table_footer_group"
	case ErmTableRow:
		return "table_row"
	case ErmTableColumnGroup:
		return "table_column_group"
	case ErmTableColumn:
		return "table_column"
	case ErmTableCell:
		return "table_cell"
	default:
		return "unknown"
	}
}

// isInline reports whether m is treated as an inline-level render method
// for purposes of mixed-children wrapping (step 8 of render-method
// derivation).
func (m RendMethod) isInline() bool { return m == ErmInline || m == ErmFinal }

// Display is the subset of resolved CSS display values the render-method
// derivation algorithm switches on (spec.md §4.3 step-by-step list). A full
// CSS engine is out of scope (spec.md §1); Tree.ComputeRendMethod takes a
// DisplayResolver callback that returns these values so this package stays
// independent of any particular style engine.
type Display uint8

const (
	DisplayBlock Display = iota
	DisplayInline
	DisplayNone
	DisplayTable
	DisplayInlineTable
	DisplayTableRow
	DisplayTableRowGroup
	DisplayTableHeaderGroup
	DisplayTableFooterGroup
	DisplayTableColumnGroup
	DisplayTableColumn
	DisplayTableCell
	DisplayTableCaption
	DisplayRuby
	DisplayReplaced
)

// DisplayResolver returns the resolved CSS display value for an element,
// the one piece of style-engine knowledge the derivation algorithm needs
// and does not compute itself.
type DisplayResolver func(h Handle) Display

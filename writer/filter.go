package writer

import (
	"regexp"
	"strings"

	"github.com/readflow/domcache/dom"
)

// scope identifies one of the HTML5-ish auto-close boundaries spec.md §4.4
// names (`Main, ListItem, Button, Table, Select, Specials`, plus the
// opening-side variants for `<li>/<dt>/<dd>`, heading levels, and table
// cells).
type scope uint8

const (
	scopeMain scope = iota
	scopeListItem
	scopeButton
	scopeTable
	scopeSelect
	scopeSpecials
)

// scopeBoundary lists the tag names that stop pop_up_to's walk for a given
// scope — the element types a scope cannot see past, mirroring the
// HTML5 "has an element in scope" boundary lists.
var scopeBoundary = map[scope]map[string]bool{
	scopeMain: {
		"html": true, "table": true, "template": true, "applet": true,
		"caption": true, "td": true, "th": true, "marquee": true, "object": true,
	},
	scopeListItem: {
		"html": true, "table": true, "ol": true, "ul": true,
	},
	scopeButton: {
		"html": true, "table": true, "button": true,
	},
	scopeTable: {
		"html": true, "table": true, "template": true,
	},
	scopeSelect: {
		"optgroup": true, "option": true,
	},
	scopeSpecials: {
		"html": true, "address": true, "div": true, "p": true,
	},
}

// tableInternal tags are the ones whose presence on the stack top triggers
// foster-parenting of a non-table-internal child (spec.md §4.4: "table /
// row-group / row but not td/th/caption").
var tableInternal = map[string]bool{
	"table": true, "tbody": true, "thead": true, "tfoot": true, "tr": true,
}

// autoClosers maps a tag name to the set of currently-open tag names it
// implicitly closes when opened — the common HTML5 "generate implied end
// tags" shortcuts (opening a new <li> closes an open <li>, etc).
var autoClosers = map[string][]string{
	"li":       {"li"},
	"dt":       {"dt", "dd"},
	"dd":       {"dt", "dd"},
	"option":   {"option"},
	"optgroup": {"optgroup", "option"},
	"tr":       {"tr"},
	"td":       {"td", "th"},
	"th":       {"td", "th"},
	"thead":    {"thead", "tbody", "tfoot", "tr", "td", "th"},
	"tbody":    {"thead", "tbody", "tfoot", "tr", "td", "th"},
	"tfoot":    {"thead", "tbody", "tfoot", "tr", "td", "th"},
}

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// presentationalAttr translates a deprecated presentational attribute into
// a CSS declaration fragment (spec.md §4.4: "align, valign, width").
var presentationalAttr = map[string]func(value string) string{
	"align":  func(v string) string { return "text-align:" + v },
	"valign": func(v string) string { return "vertical-align:" + v },
	"width":  func(v string) string { return "width:" + cssLength(v) },
}

func cssLength(v string) string {
	if strings.HasSuffix(v, "%") || strings.HasSuffix(v, "px") {
		return v
	}
	return v + "px"
}

var indentedLineRE = regexp.MustCompile(`^[ \t]{2,}\S`)
var hruleRE = regexp.MustCompile(`^-{3,}\s*$`)

// FilterWriter is the lossy HTML writer (spec.md §4.4 "DomWriterFilter").
type FilterWriter struct {
	*Writer

	lastP        dom.Handle
	hasLastP     bool
	fosterParent *fosterState

	// libRu tracks the lib.ru plaintext-in-HTML heuristic state (spec.md
	// §4.4's final bullet). alignedDiv is the most recently opened <div>,
	// whatever its attributes (align is not checked); the first <form>
	// opened directly under it sets libRu.
	libRu       bool
	seenDivForm bool
	alignedDiv  dom.Handle
	hasAligned  bool
}

type fosterState struct {
	table dom.Handle
}

// NewFilter creates a FilterWriter over tree.
func NewFilter(tree *dom.Tree, opts Options) *FilterWriter {
	return &FilterWriter{Writer: New(tree, opts)}
}

var _ EventHandler = (*FilterWriter)(nil)

// OnStart implements EventHandler.
func (w *FilterWriter) OnStart() {
	w.Writer.OnStart()
	w.hasLastP = false
	w.fosterParent = nil
	w.libRu = false
	w.seenDivForm = false
	w.hasAligned = false
}

func (w *FilterWriter) currentTagName() string {
	f := w.top()
	if f == nil {
		return ""
	}
	return w.tree.Names.Lookup(uint32(f.tagID))
}

func (w *FilterWriter) hasOpen(name string) bool {
	for _, f := range w.stack {
		if w.tree.Names.Lookup(uint32(f.tagID)) == name {
			return true
		}
	}
	return false
}

// popUpTo walks the stack closing elements until (and including, if
// inclusive) target is found, or a scope-boundary tag is hit first (spec.md
// §4.4 "pop_up_to(target, target_id, scope)").
func (w *FilterWriter) popUpTo(target string, sc scope, inclusive bool) bool {
	boundary := scopeBoundary[sc]
	for i := len(w.stack) - 1; i >= 0; i-- {
		name := w.tree.Names.Lookup(uint32(w.stack[i].tagID))
		if name == target {
			n := len(w.stack) - i
			if !inclusive {
				n--
			}
			for j := 0; j < n; j++ {
				w.closeTop(w.currentTagName())
			}
			return true
		}
		if boundary[name] && name != target {
			return false
		}
	}
	return false
}

// closeLastPIfOpen closes an open <p> using the remembered lastP handle
// instead of a stack search, when it's still valid (spec.md §4.4: "a single
// 'last P' pointer so the many elements that close a P do not each perform
// a stack search"); falls back to a scoped search otherwise.
func (w *FilterWriter) closeLastPIfOpen() {
	if w.hasLastP {
		for i := len(w.stack) - 1; i >= 0; i-- {
			if dom.SameNode(w.stack[i].element, w.lastP) {
				for len(w.stack) > i {
					w.closeTop(w.currentTagName())
				}
				w.hasLastP = false
				return
			}
		}
		w.hasLastP = false
	}
	w.closeIfOpenInScope("p", scopeButton)
}

// closeIfOpenInScope closes name if present before hitting a scope boundary.
func (w *FilterWriter) closeIfOpenInScope(name string, sc scope) {
	boundary := scopeBoundary[sc]
	for i := len(w.stack) - 1; i >= 0; i-- {
		cur := w.tree.Names.Lookup(uint32(w.stack[i].tagID))
		if cur == name {
			w.popUpTo(name, sc, true)
			return
		}
		if boundary[cur] {
			return
		}
	}
}

// ensureImplicitContainers creates <html><body> on the first tag-open/text
// event if none of html/head/body are open yet (SPEC_FULL.md §9b).
func (w *FilterWriter) ensureImplicitContainers(tagName string) {
	if tagName == "html" || tagName == "head" || tagName == "body" {
		return
	}
	if w.hasOpen("html") || w.hasOpen("head") || w.hasOpen("body") {
		return
	}
	w.pushElement("", "html")
	w.OnTagBody()
	w.pushElement("", "body")
	w.OnTagBody()
}

// OnTagOpen implements EventHandler with auto-close/implicit-container/
// foster-parenting logic layered over the strict Writer.
func (w *FilterWriter) OnTagOpen(ns, name string) {
	w.ensureImplicitContainers(name)
	w.maybeRestoreFoster(name)

	if closes, ok := autoClosers[name]; ok {
		for _, victim := range closes {
			if w.currentTagName() == victim {
				w.closeTop(victim)
			}
		}
	}
	if name == "p" {
		w.closeLastPIfOpen()
	}
	if headingTags[name] {
		if headingTags[w.currentTagName()] {
			w.closeTop(w.currentTagName())
		}
	}

	if w.shouldFoster(name) {
		w.openFostered(ns, name)
		return
	}

	parent := w.topHandle()
	w.Writer.OnTagOpen(ns, name)

	if name == "p" {
		w.lastP = w.top().element
		w.hasLastP = true
	}
	if name == "form" && w.hasAligned && !w.seenDivForm && dom.SameNode(parent, w.alignedDiv) {
		w.seenDivForm = true
		w.libRu = true
	}
	if name == "div" {
		w.alignedDiv = w.top().element
		w.hasAligned = true
	}
}

// shouldFoster reports whether name must be foster-parented per spec.md
// §4.4: current stack top is table-internal but not a cell/caption, and
// name is not itself a table-structural element.
func (w *FilterWriter) shouldFoster(name string) bool {
	if w.fosterParent != nil {
		return false
	}
	cur := w.currentTagName()
	if !tableInternal[cur] {
		return false
	}
	switch name {
	case "td", "th", "caption", "tr", "thead", "tbody", "tfoot", "col", "colgroup":
		return false
	}
	return true
}

// openFostered inserts name as the previous sibling of the enclosing
// <table>, remembering the original insertion point so a later
// table-internal OnTagOpen can restore it.
func (w *FilterWriter) openFostered(ns, name string) {
	tableIdx := -1
	for i := len(w.stack) - 1; i >= 0; i-- {
		if w.tree.Names.Lookup(uint32(w.stack[i].tagID)) == "table" {
			tableIdx = i
			break
		}
	}
	if tableIdx < 0 {
		w.Writer.OnTagOpen(ns, name)
		return
	}
	table := w.stack[tableIdx].element
	parent := w.tree.Parent(table)
	at := w.tree.ChildIndexOf(parent, table)
	nsID := uint16(w.tree.Namespaces.Intern(ns))
	tagID := uint16(w.tree.Names.Intern(name))
	h := w.tree.InsertChildElement(parent, at, nsID, tagID)
	w.fosterParent = &fosterState{table: table}
	w.stack = append(w.stack, frame{element: h, tagID: tagID})
}

// maybeRestoreFoster restores the original (pre-foster) insertion point
// once a table-internal element reopens (spec.md §4.4 last sentence).
func (w *FilterWriter) maybeRestoreFoster(name string) {
	if w.fosterParent == nil {
		return
	}
	if tableInternal[name] || name == "td" || name == "th" || name == "caption" {
		w.fosterParent = nil
	}
}

// OnTagBody implements EventHandler, additionally translating deprecated
// presentational attributes into style declarations (spec.md §4.4) before
// delegating to the strict behavior.
func (w *FilterWriter) OnTagBody() {
	f := w.top()
	if f != nil {
		f.pendingAttrs = translatePresentational(f.pendingAttrs)
	}
	w.Writer.OnTagBody()
	if w.libRu && f != nil && w.tree.Names.Lookup(uint32(f.tagID)) == "pre" {
		w.retagLibRuPre(f.element)
	}
}

func translatePresentational(attrs []pendingAttr) []pendingAttr {
	var styleDecls []string
	var out []pendingAttr
	for _, a := range attrs {
		if fn, ok := presentationalAttr[a.name]; ok && a.ns == "" {
			styleDecls = append(styleDecls, fn(a.value))
			continue
		}
		out = append(out, a)
	}
	if len(styleDecls) == 0 {
		return attrs
	}
	for i, a := range out {
		if a.ns == "" && a.name == "style" {
			out[i].value = strings.Join(styleDecls, ";") + ";" + a.value
			return out
		}
	}
	out = append(out, pendingAttr{name: "style", value: strings.Join(styleDecls, ";") + ";"})
	return out
}

// retagLibRuPre re-tags a <pre> under the lib.ru heuristic as <div
// ParserHint="ParseAsPre"> (spec.md §4.4's final bullet).
func (w *FilterWriter) retagLibRuPre(pre dom.Handle) {
	divTagID := uint16(w.tree.Names.Intern("div"))
	w.tree.SetTagID(pre, divTagID)
	w.applyAttr(pre, "", "ParserHint", "ParseAsPre")
	for i := range w.stack {
		if w.stack[i].element == pre {
			w.stack[i].tagID = divTagID
		}
	}
}

// OnText implements EventHandler, adding per-line lib.ru promotion of
// indented text to <p>/<h2> and horizontal-rule detection, plus the
// implicit-container bootstrap for text seen before any tag.
func (w *FilterWriter) OnText(text string, flags TextFlags) {
	if flags&TextFlagWhitespaceOnly == 0 {
		w.ensureImplicitContainers("")
	}
	if w.libRu && w.currentTagName() != "style" {
		for _, line := range strings.Split(text, "\n") {
			w.emitLibRuLine(line)
		}
		return
	}
	w.Writer.OnText(text, flags)
}

func (w *FilterWriter) emitLibRuLine(line string) {
	trimmed := strings.TrimRight(line, "\r")
	switch {
	case hruleRE.MatchString(trimmed):
		w.pushElement("", "hr")
		w.OnTagBody()
		w.closeTop("hr")
	case indentedLineRE.MatchString(trimmed):
		tag := "p"
		if strings.ToUpper(trimmed) == trimmed && strings.TrimSpace(trimmed) != "" {
			tag = "h2"
		}
		w.pushElement("", tag)
		w.OnTagBody()
		w.Writer.OnText(strings.TrimSpace(trimmed), TextFlagNone)
		w.closeTop(tag)
	default:
		w.Writer.OnText(trimmed, TextFlagNone)
	}
}

// OnTagClose implements EventHandler: handles the standalone-`</br>` and
// orphan-`</p>` recovery rules (spec.md §4.4's penultimate bullet) before
// delegating.
func (w *FilterWriter) OnTagClose(ns, name string, selfClosing bool) {
	switch name {
	case "br":
		if !w.hasOpen("br") || w.currentTagName() != "br" {
			w.pushElement(ns, "br")
			w.OnTagBody()
			w.Writer.OnTagClose(ns, "br", true)
			return
		}
	case "p":
		if !w.hasOpen("p") {
			w.pushElement(ns, "p")
			w.OnTagBody()
			w.Writer.OnTagClose(ns, "p", false)
			return
		}
		w.popUpTo("p", scopeButton, true)
		return
	}
	w.Writer.OnTagClose(ns, name, selfClosing)
}

// OnStop implements EventHandler: close whatever remains, in stack order,
// same as the strict writer.
func (w *FilterWriter) OnStop() {
	w.Writer.OnStop()
}

package writer

import (
	"strings"

	"github.com/readflow/domcache/blob"
	"github.com/readflow/domcache/dom"
	"github.com/readflow/domcache/internal/base"
)

// frame is one entry in the open-element stack (spec.md §4.4: "each stack
// frame records {element_handle, tag_id, flags, whether_pushed_stylesheet}").
type frame struct {
	element          dom.Handle
	tagID            uint16
	selfClosing      bool
	pushedStylesheet bool
	pendingAttrs     []pendingAttr
}

type pendingAttr struct {
	ns, name, value string
}

// FontSniffer is the type of Options.RegisterFont. OnBlob decides with
// looksLikeFont whether a blob is a font and then calls RegisterFont with
// its bytes; the returned bool is ignored.
type FontSniffer func(data []byte) bool

// Options configures a Writer/FilterWriter.
type Options struct {
	Logger base.Logger
	Blobs  *blob.Cache
	// RegisterFont is called for blobs looksLikeFont identifies as fonts
	// (spec.md §4.4 "both writers detect embedded fonts... and register
	// them with the font manager via the document's callback channel" —
	// the font manager itself is out of scope per spec.md §1, so this is
	// modeled as an injected callback rather than a concrete dependency).
	RegisterFont FontSniffer
	// OnDocProperty is called for every <meta> / doc-property event the
	// parser reports (title, author, and the like). The props table itself
	// lives in docstore, out of this package's scope, so this is the same
	// kind of injected-callback seam as RegisterFont.
	OnDocProperty func(name, value string)
}

// Writer is the strict writer: no auto-close, balanced input expected
// (spec.md §4.4 "DomWriter (strict)").
type Writer struct {
	tree  *dom.Tree
	opts  Options
	log   base.Logger
	stack []frame

	headStyleText   strings.Builder
	inHeadStyle     bool
	stylesheetLinks []string
	inHead          bool
}

// New creates a Writer that appends to tree, starting with an empty stack
// (the caller's first OnTagOpen becomes the document's outermost element).
func New(tree *dom.Tree, opts Options) *Writer {
	log := opts.Logger
	if log == nil {
		log = base.DefaultLogger{}
	}
	return &Writer{tree: tree, opts: opts, log: log}
}

var _ EventHandler = (*Writer)(nil)

// OnStart implements EventHandler.
func (w *Writer) OnStart() {
	w.stack = w.stack[:0]
	w.headStyleText.Reset()
	w.stylesheetLinks = nil
}

// OnEncoding implements EventHandler.
func (w *Writer) OnEncoding(name string) { w.tree.SourceEncoding = name }

func (w *Writer) top() *frame {
	if len(w.stack) == 0 {
		return nil
	}
	return &w.stack[len(w.stack)-1]
}

// TopElement exposes the currently open element, for callers (tests,
// diagnostics) that need to inspect in-progress state.
func (w *Writer) TopElement() dom.Handle { return w.topHandle() }

// topHandle returns the currently open element, or the tree root if the
// stack is empty.
func (w *Writer) topHandle() dom.Handle {
	if f := w.top(); f != nil {
		return f.element
	}
	return w.tree.Root()
}

// OnTagOpen implements EventHandler: push a new element under the current
// top (spec.md §4.4 "OnTagOpen ⇒ push new element under the current top").
func (w *Writer) OnTagOpen(ns, name string) {
	w.pushElement(ns, name)
}

func (w *Writer) pushElement(ns, name string) dom.Handle {
	parent := w.topHandle()
	nsID := uint16(w.tree.Namespaces.Intern(ns))
	tagID := uint16(w.tree.Names.Intern(name))
	h := w.tree.InsertChildElement(parent, w.tree.ChildCount(parent), nsID, tagID)
	w.stack = append(w.stack, frame{element: h, tagID: tagID})
	if name == "head" {
		w.inHead = true
	}
	if name == "style" && w.inHead {
		w.inHeadStyle = true
		w.headStyleText.Reset()
	}
	return h
}

// OnTagAttribute implements EventHandler: attributes are buffered until
// OnTagBody since style computation (and this module's presentational-
// attribute translation in FilterWriter) needs the full set at once.
func (w *Writer) OnTagAttribute(ns, name, value string) {
	f := w.top()
	if f == nil {
		return
	}
	f.pendingAttrs = append(f.pendingAttrs, pendingAttr{ns: ns, name: name, value: value})
}

// OnTagBody implements EventHandler: apply buffered attributes to the
// just-opened element, then — if it's <body> — inject the aggregated
// stylesheet (spec.md §4.4).
func (w *Writer) OnTagBody() {
	f := w.top()
	if f == nil {
		return
	}
	for _, a := range f.pendingAttrs {
		w.applyAttr(f.element, a.ns, a.name, a.value)
	}
	f.pendingAttrs = nil
	if w.tree.Names.Lookup(uint32(f.tagID)) == "body" {
		w.injectStylesheet(f)
	}
}

func (w *Writer) applyAttr(h dom.Handle, ns, name, value string) {
	nsID := uint16(w.tree.Namespaces.Intern(ns))
	attrID := uint16(w.tree.AttrNames.Intern(name))
	valueID := w.tree.Values.Intern(value)
	w.tree.AttrSet(h, nsID, attrID, valueID)
}

// injectStylesheet builds a single <stylesheet> child of <body> aggregating
// pending head <style> text and @import lines for every <link
// rel=stylesheet> collected so far, and marks the body frame's
// pushedStylesheet; the element stays in the tree when the body closes.
func (w *Writer) injectStylesheet(bodyFrame *frame) {
	if w.headStyleText.Len() == 0 && len(w.stylesheetLinks) == 0 {
		return
	}
	var sb strings.Builder
	for _, href := range w.stylesheetLinks {
		sb.WriteString("@import url(")
		sb.WriteString(href)
		sb.WriteString(");\n")
	}
	sb.WriteString(w.headStyleText.String())

	nsID := uint16(w.tree.Namespaces.Intern(""))
	tagID := uint16(w.tree.Names.Intern("stylesheet"))
	sheet := w.tree.InsertChildElement(bodyFrame.element, 0, nsID, tagID)
	w.tree.InsertChildText(sheet, 0, sb.String())
	bodyFrame.pushedStylesheet = true
}

// OnText implements EventHandler: append a text node to the current top,
// or accumulate into the pending <head><style> buffer.
func (w *Writer) OnText(text string, flags TextFlags) {
	if w.inHeadStyle {
		w.headStyleText.WriteString(text)
		return
	}
	parent := w.topHandle()
	w.tree.InsertChildText(parent, w.tree.ChildCount(parent), text)
}

// OnTagClose implements EventHandler: close the top element.
func (w *Writer) OnTagClose(ns, name string, selfClosing bool) {
	w.closeTop(name)
}

func (w *Writer) closeTop(name string) {
	if len(w.stack) == 0 {
		return
	}
	f := w.stack[len(w.stack)-1]
	tagName := w.tree.Names.Lookup(uint32(f.tagID))
	if tagName == "style" && w.inHeadStyle {
		w.inHeadStyle = false
	}
	if tagName == "head" {
		w.inHead = false
	}
	if tagName == "link" {
		w.maybeRegisterStylesheetLink(f.element)
	}
	if tagName == "body" && f.pushedStylesheet {
		// stylesheet stays attached; "popped" here just means bookkeeping,
		// there is nothing further to detach from the live tree.
	}
	w.stack = w.stack[:len(w.stack)-1]
	// element-close handler persists the node once its subtree is closed
	// (spec.md §4.4: "firing an element-close handler that persists the
	// node").
	w.tree.Persist(f.element)
}

func (w *Writer) maybeRegisterStylesheetLink(h dom.Handle) {
	nsID := uint16(w.tree.Namespaces.Intern(""))
	relID := uint16(w.tree.AttrNames.Intern("rel"))
	hrefID := uint16(w.tree.AttrNames.Intern("href"))
	relVal, ok := w.tree.AttrGet(h, nsID, relID)
	if !ok || w.tree.Values.Lookup(relVal) != "stylesheet" {
		return
	}
	if hrefVal, ok := w.tree.AttrGet(h, nsID, hrefID); ok {
		w.stylesheetLinks = append(w.stylesheetLinks, w.tree.Values.Lookup(hrefVal))
	}
}

// OnBlob implements EventHandler: store the blob and, when it looks like a
// font, also notify RegisterFont (spec.md §4.4, SPEC_FULL.md §4.4 "added").
func (w *Writer) OnBlob(name string, data []byte) {
	if w.opts.Blobs != nil {
		_ = w.opts.Blobs.Add(name, data)
	}
	if w.opts.RegisterFont != nil && looksLikeFont(data) {
		w.opts.RegisterFont(data)
	}
}

// looksLikeFont sniffs common TTF/OTF/WOFF magic numbers.
func looksLikeFont(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "OTTO", "true", "wOFF", "wOF2":
		return true
	default:
		return false
	}
}

// OnDocProperty implements EventHandler: forwards the event to
// opts.OnDocProperty; the props table itself lives in docstore, out of
// dom's scope, so this package only reports the event.
func (w *Writer) OnDocProperty(name, value string) {
	if w.opts.OnDocProperty != nil {
		w.opts.OnDocProperty(name, value)
	}
}

// OnStop implements EventHandler: close any still-open elements (a strict
// writer expects this to be a no-op on well-formed input).
func (w *Writer) OnStop() {
	for len(w.stack) > 0 {
		f := w.stack[len(w.stack)-1]
		w.closeTop(w.tree.Names.Lookup(uint32(f.tagID)))
	}
}

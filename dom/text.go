package dom

// mutableText is the heap-resident form of a text node (spec.md §3 "Text
// (mutable)").
type mutableText struct {
	parent Handle
	utf8   string
}

// encode returns the payload stored in the text arena. The parent lives in
// the arena record header; the payload is the raw UTF-8 bytes — the arena
// record's own payload_size field already provides the length prefix
// spec.md asks for ("text bytes stored in length-prefixed packed form"), so
// no additional framing is added here.
func (t *mutableText) encode() []byte { return []byte(t.utf8) }

func decodeText(parent Handle, buf []byte) *mutableText {
	return &mutableText{parent: parent, utf8: string(buf)}
}

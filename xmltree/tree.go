// Package xmltree implements the Value DOM: an owned,
// cheap-to-deep-copy XML tree used by the append evaluator, plus the
// reader/writer-agnostic tree builder and emitter.
//
// Grounded directly on chtml/component.go's use of github.com/beevik/etree:
// Element wraps *etree.Element the same way chtmlComponent walks
// *etree.Element/*etree.CharData children of an etree.Document.
package xmltree

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/ftlman-go/modpatch/xmlreader"
)

// Element is the Value DOM's element type: an owned node of an etree tree.
type Element struct {
	*etree.Element
}

// NewElement creates a detached element named per name.
func NewElement(name xmlreader.Name) *Element {
	tag := name.Local
	if name.Prefix != "" {
		tag = name.Prefix + ":" + name.Local
	}
	return &Element{Element: etree.NewElement(tag)}
}

// Name returns the element's (prefix, local) name.
func (e *Element) Name() xmlreader.Name {
	if e.Space != "" {
		return xmlreader.Name{Prefix: e.Space, Local: e.Tag}
	}
	if i := strings.IndexByte(e.Tag, ':'); i >= 0 {
		return xmlreader.Name{Prefix: e.Tag[:i], Local: e.Tag[i+1:]}
	}
	return xmlreader.Name{Local: e.Tag}
}

// SetName renames the element, replacing any existing prefix.
func (e *Element) SetName(name xmlreader.Name) {
	e.Space = name.Prefix
	e.Tag = name.Local
}

// GetTextTrim concatenates direct Text children (not CData) and trims the
// result CData is excluded: original_source's
// get_text_trim/take_element_text_trim only ever match Node::Text, never
// Node::CData.
func (e *Element) GetTextTrim() string {
	var b strings.Builder
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok && !cd.IsCData() {
			b.WriteString(cd.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// GetChild returns the first direct Element child with the given name, or
// nil if none matches.
func (e *Element) GetChild(name xmlreader.Name) *Element {
	for _, c := range e.ChildElements() {
		w := &Element{Element: c}
		if w.Name() == name {
			return w
		}
	}
	return nil
}

// ChildElementsW returns all direct Element children, wrapped.
func (e *Element) ChildElementsW() []*Element {
	raw := e.ChildElements()
	out := make([]*Element, len(raw))
	for i, c := range raw {
		out[i] = &Element{Element: c}
	}
	return out
}

// Attrs returns the element's attributes as an ordered slice, in the order
// they were inserted. Preserving insertion order (rather than sorting by
// local name) is the Open Question decision recorded in DESIGN.md: the
// patcher keeps diffs minimal against the original file, unlike a
// canonicaliser.
func (e *Element) Attrs() []etree.Attr {
	return e.Attr
}

// GetAttr returns an attribute's value and whether it is present.
func (e *Element) GetAttr(key string) (string, bool) {
	a := e.SelectAttr(key)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

// SetAttr inserts or overwrites an attribute.
func (e *Element) SetAttr(key, value string) {
	e.CreateAttr(key, value)
}

// RemoveAttr removes an attribute if present; it is a no-op otherwise.
func (e *Element) RemoveAttr(key string) {
	e.Element.RemoveAttr(key)
}

// DeepCopy returns an independent deep copy of the subtree rooted at e.
func (e *Element) DeepCopy() *Element {
	return &Element{Element: e.Copy()}
}

// AppendChild appends child as the last child of e.
func (e *Element) AppendChild(child *Element) {
	e.AddChild(child.Element)
}

// PrependChild inserts child as the first child of e.
func (e *Element) PrependChild(child *Element) {
	e.InsertChildAt(0, child.Element)
}

// InsertChildBefore inserts newChild immediately before existing in e's
// child list.
func (e *Element) InsertChildBefore(existing *etree.Element, newChild *Element) {
	e.InsertChildAt(existing.Index(), newChild.Element)
}

// InsertChildAfter inserts newChild immediately after existing in e's
// child list.
func (e *Element) InsertChildAfter(existing *etree.Element, newChild *Element) {
	e.InsertChildAt(existing.Index()+1, newChild.Element)
}

// RemoveChildElement detaches a direct Element child.
func (e *Element) RemoveChildElement(child *Element) {
	e.RemoveChild(child.Element)
}

// SetTextOnly removes all Text/CData children and appends a single Text
// child with the given content.
func (e *Element) SetTextOnly(s string) {
	for _, tok := range append([]etree.Token{}, e.Child...) {
		if _, ok := tok.(*etree.CharData); ok {
			e.RemoveChild(tok)
		}
	}
	e.CreateText(s)
}

// RemoveComments drops all Comment children, recursively.
func (e *Element) RemoveComments() {
	for _, tok := range append([]etree.Token{}, e.Child...) {
		switch n := tok.(type) {
		case *etree.Comment:
			e.RemoveChild(n)
		case *etree.Element:
			(&Element{Element: n}).RemoveComments()
		}
	}
}

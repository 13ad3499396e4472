package xmltree

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/ftlman-go/modpatch/xmlreader"
	"github.com/ftlman-go/modpatch/xmlwriter"
)

func attrName(a etree.Attr) xmlreader.Name {
	if a.Space != "" {
		return xmlreader.Name{Prefix: a.Space, Local: a.Key}
	}
	if i := strings.IndexByte(a.Key, ':'); i >= 0 {
		return xmlreader.Name{Prefix: a.Key[:i], Local: a.Key[i+1:]}
	}
	return xmlreader.Name{Local: a.Key}
}

// Emit walks a Value DOM subtree and writes it to w. It is the dual of
// Builder: Builder turns events into a tree, Emit turns a tree back into
// events.
func Emit(w *xmlwriter.Writer, el *Element) error {
	return emitChildren(w, el.Element)
}

func emitChildren(w *xmlwriter.Writer, el *etree.Element) error {
	for _, tok := range el.Child {
		if err := emitToken(w, tok); err != nil {
			return err
		}
	}
	return nil
}

func emitToken(w *xmlwriter.Writer, tok etree.Token) error {
	switch n := tok.(type) {
	case *etree.Element:
		return emitElement(w, n)
	case *etree.CharData:
		if n.IsCData() {
			return w.WriteCData(n.Data)
		}
		return w.WriteText(n.Data)
	case *etree.Comment:
		return w.WriteComment(n.Data)
	default:
		return nil
	}
}

func emitElement(w *xmlwriter.Writer, el *etree.Element) error {
	name := (&Element{Element: el}).Name()
	if len(el.Child) == 0 {
		if err := w.WriteEmpty(name); err != nil {
			return err
		}
		return writeAttrs(w, el)
	}
	if err := w.WriteStart(name); err != nil {
		return err
	}
	if err := writeAttrs(w, el); err != nil {
		return err
	}
	if err := emitChildren(w, el); err != nil {
		return err
	}
	return w.WriteEnd()
}

func writeAttrs(w *xmlwriter.Writer, el *etree.Element) error {
	for _, a := range el.Attr {
		name := attrName(a)
		if err := w.WriteAttribute(name, a.Value); err != nil {
			return err
		}
	}
	return nil
}

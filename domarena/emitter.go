package domarena

import (
	"strings"

	"github.com/ftlman-go/modpatch/xmlreader"
	"github.com/ftlman-go/modpatch/xmlwriter"
)

// Emit walks an Arena DOM subtree and writes it to w, the Arena-DOM dual of
// xmltree.Emit.
func Emit(w *xmlwriter.Writer, root *Node) error {
	return emitChildren(w, root)
}

func emitChildren(w *xmlwriter.Writer, n *Node) error {
	for it := n.Children(); ; {
		c, ok := it.Next()
		if !ok {
			break
		}
		if err := emitNode(w, c); err != nil {
			return err
		}
	}
	return nil
}

func emitNode(w *xmlwriter.Writer, n *Node) error {
	switch n.Kind {
	case KindElement:
		return emitElement(w, n)
	case KindText:
		return w.WriteText(n.Data)
	case KindCData:
		return w.WriteCData(n.Data)
	case KindComment:
		return w.WriteComment(n.Data)
	default:
		return nil
	}
}

func emitElement(w *xmlwriter.Writer, n *Node) error {
	if n.FirstChild == nil {
		if err := w.WriteEmpty(n.Name); err != nil {
			return err
		}
		return writeAttrs(w, n)
	}
	if err := w.WriteStart(n.Name); err != nil {
		return err
	}
	if err := writeAttrs(w, n); err != nil {
		return err
	}
	if err := emitChildren(w, n); err != nil {
		return err
	}
	return w.WriteEnd()
}

func writeAttrs(w *xmlwriter.Writer, n *Node) error {
	for _, a := range n.Attrs {
		if err := w.WriteAttribute(attrName(a.Key), a.Value); err != nil {
			return err
		}
	}
	return nil
}

func attrName(key string) xmlreader.Name {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return xmlreader.Name{Prefix: key[:i], Local: key[i+1:]}
	}
	return xmlreader.Name{Local: key}
}

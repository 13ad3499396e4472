package domarena

import (
	"github.com/ftlman-go/modpatch/xmlesc"
	"github.com/ftlman-go/modpatch/xmlreader"
)

// Builder consumes a xmlreader event stream and builds an Arena DOM tree
// under a synthetic root element, mirroring xmltree.Builder's shape
// exactly. It is deliberately a separate, concrete builder rather
// than sharing a generic Builder[N] with xmltree: the Value DOM's text/
// cdata/comment payloads are distinct etree Go types, while the Arena
// DOM's Node is a single Kind-tagged type, so the two builders don't in
// fact share a uniform node-construction signature.
type Builder struct {
	arena *Arena
}

// NewBuilder creates an Arena DOM Builder allocating into arena.
func NewBuilder(arena *Arena) *Builder {
	return &Builder{arena: arena}
}

// Build reads events from r until EOF and returns a root Node (named
// rootName) whose children are what was parsed. Unmatched end tags and
// truncated input are reported via onWarning (nil-safe) the same way
// xmltree.Builder.Build reports them.
func (b *Builder) Build(r *xmlreader.Reader, rootName xmlreader.Name, onWarning func(error)) (*Node, error) {
	root := b.arena.NewElement(rootName)
	stack := []*Node{root}

	for {
		ev, err := r.Next()
		if xmlreader.IsEOF(err) {
			break
		}
		if err != nil {
			if onWarning != nil {
				onWarning(err)
			}
			break
		}

		top := stack[len(stack)-1]

		switch ev.Kind {
		case xmlreader.Start:
			el := b.elementFromEvent(ev)
			top.AppendChild(el)
			stack = append(stack, el)
		case xmlreader.Empty:
			el := b.elementFromEvent(ev)
			top.AppendChild(el)
		case xmlreader.End:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			} else if onWarning != nil {
				onWarning(&xmlreader.Error{Kind: xmlreader.UnclosedEndTag, Span: ev.Span})
			}
		case xmlreader.Text:
			// Stored decoded, like attribute values; re-escaped on emit.
			top.AppendChild(b.arena.NewText(xmlesc.Unescape(ev.Raw)))
		case xmlreader.CData:
			top.AppendChild(b.arena.NewCData(ev.Raw))
		case xmlreader.Comment:
			top.AppendChild(b.arena.NewComment(ev.Raw))
		case xmlreader.Doctype:
			// Doctype carries no tree representation; consumed and
			// discarded, same as xmltree.Builder.
		}
	}

	return root, nil
}

func (b *Builder) elementFromEvent(ev xmlreader.Event) *Node {
	el := b.arena.NewElement(ev.Name)
	for _, a := range ev.Attr {
		key := a.Name.Local
		if a.Name.Prefix != "" {
			key = a.Name.Prefix + ":" + a.Name.Local
		}
		el.SetAttr(key, a.Value())
	}
	return el
}

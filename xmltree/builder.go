package xmltree

import (
	"github.com/beevik/etree"

	"github.com/ftlman-go/modpatch/xmlesc"
	"github.com/ftlman-go/modpatch/xmlreader"
)

// Builder consumes a xmlreader event stream and builds a Value DOM tree
// under a synthetic root element. Unmatched end tags
// encountered mid-parse are reported via onWarning (which may be nil) and
// skipped; EOF before the opened elements close is reported the same way
// and the builder returns what it has built so far.
type Builder struct{}

// NewBuilder creates a Value DOM Builder.
func NewBuilder() *Builder { return &Builder{} }

// Build reads events from r until EOF and returns a root Element (named
// rootName) whose children are what was parsed.
func (b *Builder) Build(r *xmlreader.Reader, rootName xmlreader.Name, onWarning func(error)) (*Element, error) {
	root := NewElement(rootName)
	stack := []*etree.Element{root.Element}

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
			el := elementFromEvent(ev)
			top.AddChild(el)
			stack = append(stack, el)
		case xmlreader.Empty:
			el := elementFromEvent(ev)
			top.AddChild(el)
		case xmlreader.End:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			} else if onWarning != nil {
				onWarning(&xmlreader.Error{Kind: xmlreader.UnclosedEndTag, Span: ev.Span})
			}
		case xmlreader.Text:
			// Text is stored decoded, like attribute values; the emitter
			// re-escapes on the way out.
			top.CreateText(xmlesc.Unescape(ev.Raw))
		case xmlreader.CData:
			top.CreateCData(ev.Raw)
		case xmlreader.Comment:
			top.CreateComment(ev.Raw)
		case xmlreader.Doctype:
			// Doctype carries no tree representation; consumed and
			// discarded.
		}
	}

	return root, nil
}

func elementFromEvent(ev xmlreader.Event) *etree.Element {
	el := NewElement(ev.Name).Element
	for _, a := range ev.Attr {
		key := a.Name.Local
		if a.Name.Prefix != "" {
			key = a.Name.Prefix + ":" + a.Name.Local
		}
		el.CreateAttr(key, a.Value())
	}
	return el
}

// Package xmlwriter implements a method- and event-oriented streaming XML
// writer producing well-formed output. It mirrors xmlreader's permissive
// model on the way out: it tracks a pending "unclosed opening tag" the way
// a prior implementation's render path writes directly to an io.Writer with no
// intermediate buffering beyond what's strictly pending.
package xmlwriter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ftlman-go/modpatch/xmlesc"
	"github.com/ftlman-go/modpatch/xmlreader"
)

// Writer writes well-formed XML events to an underlying io.Writer.
type Writer struct {
	w   *bufio.Writer
	err error

	depth int
	stack []xmlreader.Name

	pendingOpen  bool // we've written "<name" but not yet the closing '>' or '/>'
	pendingEmpty bool // the pending open tag should self-close
}

// New creates a Writer over w.
func New(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Depth returns the current element nesting depth.
func (wr *Writer) Depth() int { return wr.depth }

func (wr *Writer) fail(err error) error {
	if wr.err == nil {
		wr.err = err
	}
	return err
}

// closePending closes any open "<name" with ">" or "/>" as appropriate.
// It must be called before writing anything that isn't an attribute.
func (wr *Writer) closePending() {
	if !wr.pendingOpen {
		return
	}
	if wr.pendingEmpty {
		wr.w.WriteString("/>")
	} else {
		wr.w.WriteByte('>')
	}
	wr.pendingOpen = false
	wr.pendingEmpty = false
}

func validNameBytes(s string, extra string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ' ', '\t', '\n', '\r', '/', '>', '?', 0:
			return false
		}
		if strings.IndexByte(extra, c) >= 0 {
			return false
		}
	}
	return true
}

func validElementName(n xmlreader.Name) bool {
	return validNameBytes(n.Local, "") && (n.Prefix == "" || validNameBytes(n.Prefix, ""))
}

func validAttrName(n xmlreader.Name) bool {
	return validNameBytes(n.Local, "<=!") && (n.Prefix == "" || validNameBytes(n.Prefix, "<=!"))
}

func writeName(w *bufio.Writer, n xmlreader.Name) {
	if n.Prefix != "" {
		w.WriteString(n.Prefix)
		w.WriteByte(':')
	}
	w.WriteString(n.Local)
}

// WriteStart writes "<name" and leaves the tag open for attributes; the
// next non-attribute write closes it with ">".
func (wr *Writer) WriteStart(name xmlreader.Name) error {
	if wr.err != nil {
		return wr.err
	}
	if !validElementName(name) {
		return wr.fail(fmt.Errorf("xmlwriter: invalid element name %q", name))
	}
	wr.closePending()
	wr.w.WriteByte('<')
	writeName(wr.w, name)
	wr.pendingOpen = true
	wr.pendingEmpty = false
	wr.stack = append(wr.stack, name)
	wr.depth = len(wr.stack)
	return nil
}

// WriteEmpty writes "<name" and marks the tag to self-close ("/>") on the
// next non-attribute write or Finish.
func (wr *Writer) WriteEmpty(name xmlreader.Name) error {
	if wr.err != nil {
		return wr.err
	}
	if !validElementName(name) {
		return wr.fail(fmt.Errorf("xmlwriter: invalid element name %q", name))
	}
	wr.closePending()
	wr.w.WriteByte('<')
	writeName(wr.w, name)
	wr.pendingOpen = true
	wr.pendingEmpty = true
	return nil
}

// WriteEnd closes the innermost open element (written via WriteStart).
func (wr *Writer) WriteEnd() error {
	if wr.err != nil {
		return wr.err
	}
	if len(wr.stack) == 0 {
		return wr.fail(errors.New("xmlwriter: WriteEnd with no open element"))
	}
	name := wr.stack[len(wr.stack)-1]

	if wr.pendingOpen && !wr.pendingEmpty {
		// No children were written: self-close instead of emitting a
		// separate end tag.
		wr.w.WriteString("/>")
		wr.pendingOpen = false
		wr.pendingEmpty = false
		wr.stack = wr.stack[:len(wr.stack)-1]
		wr.depth = len(wr.stack)
		return nil
	}

	// A pending WriteEmpty tag is a child of this element: close it first.
	wr.closePending()
	wr.w.WriteString("</")
	writeName(wr.w, name)
	wr.w.WriteByte('>')
	wr.stack = wr.stack[:len(wr.stack)-1]
	wr.depth = len(wr.stack)
	return nil
}

// WriteAttribute writes name="value" (value entity-escaped for the
// attribute context) into the currently pending opening tag.
func (wr *Writer) WriteAttribute(name xmlreader.Name, value string) error {
	if wr.err != nil {
		return wr.err
	}
	if !wr.pendingOpen {
		return wr.fail(errors.New("xmlwriter: WriteAttribute outside an opening tag"))
	}
	if !validAttrName(name) {
		return wr.fail(fmt.Errorf("xmlwriter: invalid attribute name %q", name))
	}
	wr.w.WriteByte(' ')
	writeName(wr.w, name)
	wr.w.WriteString(`="`)
	wr.w.WriteString(xmlesc.EscapeAttr(value))
	wr.w.WriteByte('"')
	return nil
}

// WriteRawAttribute writes name=<quote>value<quote> with no escaping; the
// caller is responsible for value being safe to embed as-is. This exists to
// replay an attribute exactly as read, for round-trip fidelity.
func (wr *Writer) WriteRawAttribute(name xmlreader.Name, quote byte, value string) error {
	if wr.err != nil {
		return wr.err
	}
	if !wr.pendingOpen {
		return wr.fail(errors.New("xmlwriter: WriteRawAttribute outside an opening tag"))
	}
	if quote != '\'' && quote != '"' {
		quote = '"'
	}
	if !validAttrName(name) {
		return wr.fail(fmt.Errorf("xmlwriter: invalid attribute name %q", name))
	}
	wr.w.WriteByte(' ')
	writeName(wr.w, name)
	wr.w.WriteByte('=')
	wr.w.WriteByte(quote)
	wr.w.WriteString(value)
	wr.w.WriteByte(quote)
	return nil
}

// WriteAttributeEvent replays an attribute exactly as captured by the
// reader (same quote character, same raw unescaped value), preserving
// round-trip fidelity.
func (wr *Writer) WriteAttributeEvent(a xmlreader.Attr) error {
	return wr.WriteRawAttribute(a.Name, a.Quote, a.RawValue)
}

// WriteText writes s as escaped text content.
func (wr *Writer) WriteText(s string) error {
	if wr.err != nil {
		return wr.err
	}
	wr.closePending()
	wr.w.WriteString(xmlesc.EscapeText(s))
	return nil
}

// WriteRawText writes s verbatim as text content. It rejects '<' and NUL.
func (wr *Writer) WriteRawText(s string) error {
	if wr.err != nil {
		return wr.err
	}
	if strings.ContainsAny(s, "<\x00") {
		return wr.fail(errors.New("xmlwriter: raw text contains '<' or NUL"))
	}
	wr.closePending()
	wr.w.WriteString(s)
	return nil
}

// WriteCData writes s as a CDATA section. It rejects values containing
// "]]>", since CDATA has no escaping mechanism for that terminator.
func (wr *Writer) WriteCData(s string) error {
	if wr.err != nil {
		return wr.err
	}
	if strings.Contains(s, "]]>") {
		return wr.fail(errors.New("xmlwriter: CDATA content contains ']]>'"))
	}
	wr.closePending()
	wr.w.WriteString("<![CDATA[")
	wr.w.WriteString(s)
	wr.w.WriteString("]]>")
	return nil
}

// WriteComment writes s as a comment. It rejects values containing "-->".
func (wr *Writer) WriteComment(s string) error {
	if wr.err != nil {
		return wr.err
	}
	if strings.Contains(s, "-->") {
		return wr.fail(errors.New("xmlwriter: comment content contains '-->'"))
	}
	wr.closePending()
	wr.w.WriteString("<!--")
	wr.w.WriteString(xmlesc.EscapeComment(s))
	wr.w.WriteString("-->")
	return nil
}

// WriteEvent replays a reader Event, preserving raw attribute text for
// round-trip fidelity.
func (wr *Writer) WriteEvent(ev xmlreader.Event) error {
	switch ev.Kind {
	case xmlreader.Start:
		if err := wr.WriteStart(ev.Name); err != nil {
			return err
		}
		for _, a := range ev.Attr {
			if err := wr.WriteAttributeEvent(a); err != nil {
				return err
			}
		}
		return nil
	case xmlreader.Empty:
		if err := wr.WriteEmpty(ev.Name); err != nil {
			return err
		}
		for _, a := range ev.Attr {
			if err := wr.WriteAttributeEvent(a); err != nil {
				return err
			}
		}
		return nil
	case xmlreader.End:
		return wr.WriteEnd()
	case xmlreader.Text:
		return wr.WriteRawText(ev.Raw)
	case xmlreader.CData:
		return wr.WriteCData(ev.Raw)
	case xmlreader.Comment:
		return wr.WriteComment(ev.Raw)
	case xmlreader.Doctype:
		wr.closePending()
		wr.w.WriteString("<!DOCTYPE ")
		wr.w.WriteString(ev.Raw)
		wr.w.WriteByte('>')
		return nil
	default:
		return wr.fail(fmt.Errorf("xmlwriter: unknown event kind %v", ev.Kind))
	}
}

// Flush flushes any buffered bytes to the underlying writer. It does not
// close pending tags; call Finish for that.
func (wr *Writer) Flush() error {
	if wr.err != nil {
		return wr.err
	}
	return wr.w.Flush()
}

// Finish closes any pending opening tag and any elements still open on the
// stack (auto-closing them in LIFO order), then flushes.
func (wr *Writer) Finish() error {
	if wr.err != nil {
		return wr.err
	}
	wr.closePending()
	for len(wr.stack) > 0 {
		if err := wr.WriteEnd(); err != nil {
			return err
		}
	}
	return wr.Flush()
}

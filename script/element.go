// Package script implements the sandboxed embedded scripting surface over a
// live Arena DOM, compiled through github.com/expr-lang/expr.
//
// Grounded on chtml/expr.go's NewExpr/compileTransformed/exprOptions
// pattern (compile a restricted expr.Option set once, run the resulting
// *vm.Program against an environment map) and on the sandboxing discipline
// described in DESIGN.md (strip dangerous host capabilities, expose only a
// curated global table) — adapted here to expr-lang's expression-at-a-time
// model rather than Lua's statement-sequence model: a script is a sequence
// of expr-lang expressions, one per non-blank/non-comment line, evaluated
// in order for their side effects against a shared environment.
package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ftlman-go/modpatch/domarena"
	"github.com/ftlman-go/modpatch/xmlreader"
)

var nameRE = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]*$`)

// ValidateName reports whether s is a valid XML name: it
// must start with an ASCII letter, '-', or '_', and contain only letters,
// digits, '-', and '_'.
func ValidateName(s string) error {
	if !nameRE.MatchString(s) {
		return fmt.Errorf("script: invalid XML name %q", s)
	}
	return nil
}

// Element is the DOM binding exposed to compiled expr-lang programs. It
// wraps a single domarena.Node; methods are exported so expr-lang's
// reflection-based member/method resolution can call them directly from
// script source.
type Element struct {
	arena *domarena.Arena
	node  *domarena.Node
}

// Wrap exposes n as a script-visible Element bound to arena (the allocator
// new nodes created by script calls, e.g. coerced Text children, come from).
func Wrap(arena *domarena.Arena, n *domarena.Node) *Element {
	if n == nil {
		return nil
	}
	return &Element{arena: arena, node: n}
}

// Type reports the node kind as the format's "type" field: "element", "text",
// "cdata", "comment", or "pi".
func (e *Element) Type() string {
	switch e.node.Kind {
	case domarena.KindElement:
		return "element"
	case domarena.KindText:
		return "text"
	case domarena.KindCData:
		return "cdata"
	case domarena.KindComment:
		return "comment"
	default:
		return "pi"
	}
}

// Name returns the element's local name, or "" for non-element nodes.
func (e *Element) Name() string {
	if !e.node.IsElement() {
		return ""
	}
	return e.node.Name.Local
}

// Prefix returns the element's name prefix, or "" for non-element nodes or
// unprefixed names.
func (e *Element) Prefix() string {
	if !e.node.IsElement() {
		return ""
	}
	return e.node.Name.Prefix
}

// RawAttrs returns the element's attributes as strings, unparsed.
func (e *Element) RawAttrs() map[string]string {
	out := map[string]string{}
	for _, a := range e.node.Attrs {
		out[a.Key] = a.Value
	}
	return out
}

// Attrs returns the element's attributes "smart"-parsed: values that look
// like booleans or integers/floats are converted to the matching Go type
// rather than left as strings.
func (e *Element) Attrs() map[string]any {
	out := map[string]any{}
	for _, a := range e.node.Attrs {
		out[a.Key] = smartParse(a.Value)
	}
	return out
}

func smartParse(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// SetAttr sets a raw attribute value.
func (e *Element) SetAttr(key, value string) *Element {
	e.node.SetAttr(key, value)
	return e
}

// RemoveAttr removes an attribute.
func (e *Element) RemoveAttr(key string) *Element {
	e.node.RemoveAttr(key)
	return e
}

// TextContent reads the concatenation of all descendant Text payloads.
func (e *Element) TextContent() string {
	var b strings.Builder
	for _, d := range e.node.Descendants() {
		if d.Kind == domarena.KindText {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}

// Content returns a Text/CData/Comment node's own payload.
func (e *Element) Content() string {
	return e.node.Data
}

// SetTextContent removes all children and appends a single Text child with
// s. expr-lang has no property-setter syntax, so this is a plain method
// rather than a textContent = ... assignment.
func (e *Element) SetTextContent(s string) *Element {
	e.node.RemoveChildren()
	e.node.AppendChild(e.arena.NewText(s))
	return e
}

// toNode coerces an append/prepend argument (an *Element or a string) to a
// domarena.Node: elements are inserted directly, strings are coerced to a
// new Text node.
func (e *Element) toNode(arg any) (*domarena.Node, error) {
	switch v := arg.(type) {
	case *Element:
		if v.node.Parent != nil {
			return nil, fmt.Errorf("script: cannot insert a node that already has a parent")
		}
		return v.node, nil
	case string:
		return e.arena.NewText(v), nil
	default:
		return nil, fmt.Errorf("script: append/prepend arguments must be elements or strings, got %T", arg)
	}
}

// Append appends each argument as a new last child.
func (e *Element) Append(args ...any) (*Element, error) {
	for _, arg := range args {
		n, err := e.toNode(arg)
		if err != nil {
			return nil, err
		}
		e.node.AppendChild(n)
	}
	return e, nil
}

// Prepend inserts each argument, in order, as new first children (so the
// first argument ends up as the very first child).
func (e *Element) Prepend(args ...any) (*Element, error) {
	for i := len(args) - 1; i >= 0; i-- {
		n, err := e.toNode(args[i])
		if err != nil {
			return nil, err
		}
		e.node.PrependChild(n)
	}
	return e, nil
}

// FirstElementChild returns the first Element child, or nil.
func (e *Element) FirstElementChild() *Element {
	for it := e.node.Children(); ; {
		c, ok := it.Next()
		if !ok {
			return nil
		}
		if c.IsElement() {
			return Wrap(e.arena, c)
		}
	}
}

// LastElementChild returns the last Element child, or nil.
func (e *Element) LastElementChild() *Element {
	for it := e.node.Children(); ; {
		c, ok := it.NextBack()
		if !ok {
			return nil
		}
		if c.IsElement() {
			return Wrap(e.arena, c)
		}
	}
}

// FirstChild returns the first child of any kind, or nil.
func (e *Element) FirstChild() *Element { return Wrap(e.arena, e.node.FirstChild) }

// LastChild returns the last child of any kind, or nil.
func (e *Element) LastChild() *Element { return Wrap(e.arena, e.node.LastChild) }

// Children returns the element children, materialized as a slice.
func (e *Element) Children() []*Element {
	var out []*Element
	for it := e.node.Children(); ; {
		c, ok := it.Next()
		if !ok {
			break
		}
		if c.IsElement() {
			out = append(out, Wrap(e.arena, c))
		}
	}
	return out
}

// ChildNodes returns every child, of any kind.
func (e *Element) ChildNodes() []*Element {
	var out []*Element
	for it := e.node.Children(); ; {
		c, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, Wrap(e.arena, c))
	}
	return out
}

// As downcasts e to kind ("element", "text", "cdata", "comment"), returning
// (e, true) if e already has that type and (nil, false) otherwise.
func (e *Element) As(kind string) (*Element, bool) {
	if e.Type() == kind {
		return e, true
	}
	return nil, false
}

// Detach removes e from its parent, if any.
func (e *Element) Detach() *Element {
	e.node.Detach()
	return e
}

// String returns a compact opening-tag preview, used as expr-lang's
// tostring() equivalent (expr-lang calls fmt.Stringer when formatting).
func (e *Element) String() string {
	if !e.node.IsElement() {
		if len(e.node.Data) > 24 {
			return fmt.Sprintf("<%s %q...>", e.Type(), e.node.Data[:24])
		}
		return fmt.Sprintf("<%s %q>", e.Type(), e.node.Data)
	}
	var b strings.Builder
	b.WriteByte('<')
	if e.node.Name.Prefix != "" {
		b.WriteString(e.node.Name.Prefix)
		b.WriteByte(':')
	}
	b.WriteString(e.node.Name.Local)
	for _, a := range e.node.Attrs {
		fmt.Fprintf(&b, " %s=%q", a.Key, a.Value)
	}
	b.WriteByte('>')
	return b.String()
}

// newElement implements mod.xml.element(prefix?, name, attrs?).
func newElement(arena *domarena.Arena, prefix, name string, attrs map[string]any) (*Element, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if prefix != "" {
		if err := ValidateName(prefix); err != nil {
			return nil, err
		}
	}
	n := arena.NewElement(xmlreader.Name{Prefix: prefix, Local: name})
	for k, v := range attrs {
		n.SetAttr(k, fmt.Sprintf("%v", v))
	}
	return Wrap(arena, n), nil
}

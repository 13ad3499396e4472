// Package domarena implements the Arena DOM: the live,
// doubly-linked-sibling tree presented to embedded scripts, backed by a
// reachability-collected arena instead of a fixed-forever forest.
//
// The linkage and detach contract is grounded directly on chtml/node.go's
// Node struct and its InsertBefore/AppendChild/RemoveChild methods
// (same field names, same panic-on-attached-child behavior), generalized
// from a fixed HTML node-type/atom model to the format's generic
// (prefix, name) Element and Kind-tagged payload nodes.
package domarena

import "github.com/ftlman-go/modpatch/xmlreader"

// Kind discriminates the node variants an Arena DOM node can hold.
type Kind int

const (
	KindElement Kind = iota
	KindText
	KindCData
	KindComment
	// KindPI exists for completeness with this enumeration; the reader
	// never emits a ProcessingInstruction event (processing instructions
	// are silently skipped), so the builder never constructs a KindPI node.
	KindPI
)

// Attr is an Arena DOM attribute. Key combines prefix and local name the
// same way xmltree's builder does ("prefix:local"), so attribute keys have
// the same form in both DOMs.
type Attr struct {
	Key   string
	Value string
}

// Node is the Arena DOM's single node type; Kind selects which fields are
// meaningful. Element nodes use Name/Attrs/FirstChild/LastChild; other
// kinds use Data as their sole payload.
type Node struct {
	Parent, FirstChild, LastChild, PrevSibling, NextSibling *Node

	Kind  Kind
	Name  xmlreader.Name
	Attrs []Attr
	Data  string
}

// IsElement reports whether n is a KindElement node.
func (n *Node) IsElement() bool { return n.Kind == KindElement }

// GetAttr returns an attribute's value and whether it is present. It is a
// no-op (returns false) on non-Element nodes.
func (n *Node) GetAttr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr inserts or overwrites an attribute, preserving insertion order of
// first occurrence (consistent with xmltree's Open Question resolution).
func (n *Node) SetAttr(key, value string) {
	for i, a := range n.Attrs {
		if a.Key == key {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})
}

// RemoveAttr removes an attribute if present.
func (n *Node) RemoveAttr(key string) {
	for i, a := range n.Attrs {
		if a.Key == key {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// requireDetached panics if child is already linked into some tree; every
// insertion entry point must check this before splicing it in.
func requireDetached(op string, child *Node) {
	if child.Parent != nil || child.PrevSibling != nil || child.NextSibling != nil {
		panic("domarena: " + op + " called for an attached node")
	}
}

// spliceIn links child into n's child list between prev and next (either may
// be nil for "at the start"/"at the end"), the single linking primitive
// every insertion method below reduces to.
func spliceIn(n, child, prev, next *Node) {
	if prev != nil {
		prev.NextSibling = child
	} else {
		n.FirstChild = child
	}
	if next != nil {
		next.PrevSibling = child
	} else {
		n.LastChild = child
	}
	child.Parent = n
	child.PrevSibling = prev
	child.NextSibling = next
}

// InsertBefore inserts newChild as a child of n, immediately before
// oldChild in n's child list. oldChild may be nil, in which case newChild
// is appended to the end of n's children.
//
// It panics if newChild already has a parent or siblings.
func (n *Node) InsertBefore(newChild, oldChild *Node) {
	requireDetached("InsertBefore", newChild)
	prev, next := n.LastChild, (*Node)(nil)
	if oldChild != nil {
		prev, next = oldChild.PrevSibling, oldChild
	}
	spliceIn(n, newChild, prev, next)
}

// AppendChild adds newChild as the last child of n.
//
// It panics if newChild is already attached.
func (n *Node) AppendChild(newChild *Node) {
	requireDetached("AppendChild", newChild)
	spliceIn(n, newChild, n.LastChild, nil)
}

// PrependChild adds newChild as the first child of n.
//
// It panics if newChild is already attached.
func (n *Node) PrependChild(newChild *Node) {
	requireDetached("PrependChild", newChild)
	spliceIn(n, newChild, nil, n.FirstChild)
}

// InsertAfter inserts newChild immediately after existing in n's child
// list. existing == nil prepends newChild.
func (n *Node) InsertAfter(existing, newChild *Node) {
	if existing == nil {
		n.PrependChild(newChild)
		return
	}
	n.InsertBefore(newChild, existing.NextSibling)
}

// RemoveChild removes c, a child of n. Afterwards c has no parent and no
// siblings. This is spliceIn run in reverse: c's own prev/next become each
// other's neighbors, and n's first/last pointers are patched the same way
// spliceIn patched them coming in.
//
// It panics if c's parent is not n.
func (n *Node) RemoveChild(c *Node) {
	if c.Parent != n {
		panic("domarena: RemoveChild called for a non-child node")
	}
	prev, next := c.PrevSibling, c.NextSibling
	if prev != nil {
		prev.NextSibling = next
	} else {
		n.FirstChild = next
	}
	if next != nil {
		next.PrevSibling = prev
	} else {
		n.LastChild = prev
	}
	c.Parent, c.PrevSibling, c.NextSibling = nil, nil, nil
}

// RemoveChildren detaches every child of n in one pass.
func (n *Node) RemoveChildren() {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		c.Parent = nil
		c.PrevSibling = nil
		c.NextSibling = nil
		c = next
	}
	n.FirstChild = nil
	n.LastChild = nil
}

// Detach removes n from its parent's child list and clears its three
// links. It is a no-op if n has no parent.
func (n *Node) Detach() {
	if n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
}

// ChildIterator is a double-ended iterator over a node's direct children.
type ChildIterator struct {
	front, back *Node
	exhausted   bool
}

// Children returns a double-ended iterator positioned at n's first and
// last child.
func (n *Node) Children() *ChildIterator {
	return &ChildIterator{front: n.FirstChild, back: n.LastChild}
}

// Next returns the next child from the front, or (nil, false) when
// exhausted.
func (it *ChildIterator) Next() (*Node, bool) {
	if it.exhausted || it.front == nil {
		return nil, false
	}
	n := it.front
	if it.front == it.back {
		it.exhausted = true
	}
	it.front = it.front.NextSibling
	return n, true
}

// NextBack returns the next child from the back, or (nil, false) when
// exhausted.
func (it *ChildIterator) NextBack() (*Node, bool) {
	if it.exhausted || it.back == nil {
		return nil, false
	}
	n := it.back
	if it.front == it.back {
		it.exhausted = true
	}
	it.back = it.back.PrevSibling
	return n, true
}

// Descendants returns n's descendants in pre-order.
func (n *Node) Descendants() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(x *Node) {
		for it := x.Children(); ; {
			c, ok := it.Next()
			if !ok {
				break
			}
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

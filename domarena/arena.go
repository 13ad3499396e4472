package domarena

import "github.com/ftlman-go/modpatch/xmlreader"

// Arena owns every Node it allocates and reclaims the ones no longer
// reachable from any held root. Unlike chtml's Node forest, which
// simply relies on Go's GC to retain whatever a caller still points to,
// Sweep lets a caller explicitly drop everything but a chosen set of
// roots, which matters because script-scoped arenas are meant to live for
// exactly one script execution and should not
// silently accumulate nodes across runs if a caller reuses the Arena value.
//
// An Arena is not safe for concurrent use; the arena is a
// thread-local value for the duration of one patch run.
type Arena struct {
	live map[*Node]struct{}
}

// New creates an empty Arena.
func New() *Arena {
	return &Arena{live: make(map[*Node]struct{})}
}

func (a *Arena) alloc(n *Node) *Node {
	a.live[n] = struct{}{}
	return n
}

// NewElement allocates a detached Element node.
func (a *Arena) NewElement(name xmlreader.Name) *Node {
	return a.alloc(&Node{Kind: KindElement, Name: name})
}

// NewText allocates a detached Text node.
func (a *Arena) NewText(data string) *Node {
	return a.alloc(&Node{Kind: KindText, Data: data})
}

// NewCData allocates a detached CData node.
func (a *Arena) NewCData(data string) *Node {
	return a.alloc(&Node{Kind: KindCData, Data: data})
}

// NewComment allocates a detached Comment node.
func (a *Arena) NewComment(data string) *Node {
	return a.alloc(&Node{Kind: KindComment, Data: data})
}

// Live reports how many nodes the arena currently tracks as allocated.
func (a *Arena) Live() int {
	return len(a.live)
}

// Sweep marks every node reachable from roots (through the Element
// parent/child tree) and drops every other tracked node, letting Go's GC
// collect it. It returns the number of nodes freed.
func (a *Arena) Sweep(roots ...*Node) int {
	reachable := make(map[*Node]struct{}, len(a.live))
	var mark func(*Node)
	mark = func(n *Node) {
		if n == nil {
			return
		}
		if _, ok := reachable[n]; ok {
			return
		}
		reachable[n] = struct{}{}
		for it := n.Children(); ; {
			c, ok := it.Next()
			if !ok {
				break
			}
			mark(c)
		}
	}
	for _, r := range roots {
		mark(r)
	}

	freed := 0
	for n := range a.live {
		if _, ok := reachable[n]; !ok {
			delete(a.live, n)
			freed++
		}
	}
	return freed
}

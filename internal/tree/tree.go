// Package tree provides the append-only move tree shared by the statistics
// and repertoire sides of an analysis.
//
// Nodes are identified by their move path from the root. A secondary index
// maps each PositionKey to every node that reached it, so transpositions can
// be joined by position while path-dependent data stays on the node.
package tree

import (
	"fmt"
	"iter"
	"strings"

	"github.com/freeeve/prepgraph/internal/graph"
)

// Path is a move sequence from the root.
type Path []graph.Move

// String renders the path as space-separated UCI moves.
func (p Path) String() string {
	var b strings.Builder
	for i, m := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.ToUCI())
	}
	return b.String()
}

// Clone returns a copy that does not alias p.
func (p Path) Clone() Path {
	return append(Path(nil), p...)
}

// Edge is a labeled link from a node to one of its children.
type Edge[P any] struct {
	Move  graph.Move
	SAN   string // optional, empty when unknown
	Child *Node[P]
}

// Node is one visited position.
type Node[P any] struct {
	Key     graph.PositionKey
	Ply     int
	Payload P

	parent   *Node[P]
	move     graph.Move
	children []Edge[P]
	index    map[graph.Move]int
}

// Parent returns the parent node, or nil at the root.
func (n *Node[P]) Parent() *Node[P] { return n.parent }

// Move returns the move that led to n (zero at the root).
func (n *Node[P]) Move() graph.Move { return n.move }

// Children returns the outgoing edges in insertion order. The slice must not
// be modified.
func (n *Node[P]) Children() []Edge[P] { return n.children }

// IsLeaf reports whether n has no children.
func (n *Node[P]) IsLeaf() bool { return len(n.children) == 0 }

// Child returns the child reached by m.
func (n *Node[P]) Child(m graph.Move) (*Node[P], bool) {
	i, ok := n.index[m]
	if !ok {
		return nil, false
	}
	return n.children[i].Child, true
}

// Edge returns the edge labeled m.
func (n *Node[P]) Edge(m graph.Move) (Edge[P], bool) {
	i, ok := n.index[m]
	if !ok {
		return Edge[P]{}, false
	}
	return n.children[i], true
}

// Path returns the move sequence from the root to n.
func (n *Node[P]) Path() Path {
	p := make(Path, n.Ply)
	for cur := n; cur.parent != nil; cur = cur.parent {
		p[cur.Ply-1] = cur.move
	}
	return p
}

// Options configures a Tree.
type Options struct {
	// DistinctDepth keeps transpositions at different plies apart by making
	// the ply part of every node's key.
	DistinctDepth bool
}

// Tree is an append-only move tree. It is not safe for concurrent mutation;
// a builder owns it exclusively until it hands it off.
type Tree[P any] struct {
	root  *Node[P]
	opts  Options
	byKey map[graph.PositionKey][]*Node[P]
	size  int
}

// New creates a tree rooted at rootKey.
func New[P any](rootKey graph.PositionKey, opts Options) *Tree[P] {
	t := &Tree[P]{
		opts:  opts,
		byKey: make(map[graph.PositionKey][]*Node[P]),
	}
	t.root = &Node[P]{Key: t.keyFor(rootKey, 0)}
	t.byKey[t.root.Key] = []*Node[P]{t.root}
	t.size = 1
	return t
}

func (t *Tree[P]) keyFor(k graph.PositionKey, ply int) graph.PositionKey {
	if t.opts.DistinctDepth {
		return k.WithDepth(ply)
	}
	return k.Base()
}

// Root returns the root node.
func (t *Tree[P]) Root() *Node[P] { return t.root }

// Options returns the tree's options.
func (t *Tree[P]) Options() Options { return t.opts }

// Len returns the number of nodes.
func (t *Tree[P]) Len() int { return t.size }

// KeyFor maps a plain position key at a ply to the key this tree stores.
func (t *Tree[P]) KeyFor(k graph.PositionKey, ply int) graph.PositionKey {
	return t.keyFor(k, ply)
}

// GetOrCreateChild returns the child of parent reached by move, creating it
// with the given key if needed. created reports whether a node was added.
// Calling it again with the same move is a no-op. If the move already leads
// to a different position an *InconsistentTranspositionError is returned.
func (t *Tree[P]) GetOrCreateChild(parent *Node[P], move graph.Move, key graph.PositionKey) (node *Node[P], created bool, err error) {
	return t.GetOrCreateChildSAN(parent, move, "", key)
}

// GetOrCreateChildSAN is GetOrCreateChild that also records the move's SAN
// on a newly created edge (or fills it in on an existing one).
func (t *Tree[P]) GetOrCreateChildSAN(parent *Node[P], move graph.Move, san string, key graph.PositionKey) (*Node[P], bool, error) {
	if parent == nil {
		return nil, false, fmt.Errorf("nil parent for move %s", move)
	}
	key = t.keyFor(key, parent.Ply+1)

	if i, ok := parent.index[move]; ok {
		e := &parent.children[i]
		if e.Child.Key != key {
			return nil, false, &InconsistentTranspositionError{
				Path:     parent.Path(),
				Move:     move,
				Existing: e.Child.Key,
				Got:      key,
			}
		}
		if e.SAN == "" {
			e.SAN = san
		}
		return e.Child, false, nil
	}

	child := &Node[P]{
		Key:    key,
		Ply:    parent.Ply + 1,
		parent: parent,
		move:   move,
	}
	if parent.index == nil {
		parent.index = make(map[graph.Move]int)
	}
	parent.index[move] = len(parent.children)
	parent.children = append(parent.children, Edge[P]{Move: move, SAN: san, Child: child})
	t.byKey[key] = append(t.byKey[key], child)
	t.size++
	return child, true, nil
}

// FindByKey returns every node holding key, in creation order. The key is
// matched as this tree stores it: plain keys match any ply unless the tree
// keeps depths distinct.
func (t *Tree[P]) FindByKey(key graph.PositionKey) []*Node[P] {
	if !t.opts.DistinctDepth {
		key = key.Base()
	}
	nodes := t.byKey[key]
	if len(nodes) == 0 {
		return nil
	}
	return append([]*Node[P](nil), nodes...)
}

// Lookup follows path from the root.
func (t *Tree[P]) Lookup(path Path) (*Node[P], bool) {
	n := t.root
	for _, m := range path {
		var ok bool
		if n, ok = n.Child(m); !ok {
			return nil, false
		}
	}
	return n, true
}

// Walk yields every node with its path in pre-order, children in insertion
// order. Each call starts a fresh traversal. The yielded path is reused
// between iterations; Clone it to keep it.
func (t *Tree[P]) Walk() iter.Seq2[Path, *Node[P]] {
	return func(yield func(Path, *Node[P]) bool) {
		type frame struct {
			node *Node[P]
			next int
		}
		path := make(Path, 0, 16)
		if !yield(path, t.root) {
			return
		}
		stack := []frame{{node: t.root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(top.node.children) {
				stack = stack[:len(stack)-1]
				if len(path) > 0 {
					path = path[:len(path)-1]
				}
				continue
			}
			e := top.node.children[top.next]
			top.next++
			path = append(path, e.Move)
			if !yield(path, e.Child) {
				return
			}
			stack = append(stack, frame{node: e.Child})
		}
	}
}

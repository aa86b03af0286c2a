package merge

import (
	"fmt"

	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/repertoire"
	"github.com/freeeve/prepgraph/internal/stats"
	"github.com/freeeve/prepgraph/internal/tree"
)

// Class is the verdict for one scored position.
type Class uint8

const (
	Unknown Class = iota
	Covered
	Missing
	Overprepared
	Negligible
)

// Classes lists every class in report order.
var Classes = []Class{Covered, Missing, Overprepared, Negligible, Unknown}

var classNames = [...]string{"unknown", "covered", "missing", "overprepared", "negligible"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "invalid"
}

// MarshalText encodes the class name.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name.
func (c *Class) UnmarshalText(b []byte) error {
	for i, name := range classNames {
		if name == string(b) {
			*c = Class(i)
			return nil
		}
	}
	return fmt.Errorf("unknown class %q", b)
}

// Node is one scored position. The scored tree owns its nodes; Stats and Rep
// point into the input trees and must not be modified.
type Node struct {
	Path tree.Path
	Key  graph.PositionKey
	Ply  int
	Move graph.Move // zero at the root
	SAN  string

	// Stats is the joined record, nil when the position has none.
	Stats      *explorer.Position
	StatsState stats.State
	HasStats   bool
	StatsErr   error

	// Rep is the repertoire payload, nil when the position is not prepared.
	Rep *repertoire.Payload

	Games      uint64 // games that played Move, from the parent's record
	Reach      float64
	UpperBound bool // Reach was inherited, not derived from counts
	// OffBook is set below an own move the player does not prepare. Such
	// positions cannot occur in the player's games.
	OffBook bool
	Class   Class

	Parent   *Node
	Children []*Node
}

// InRepertoire reports whether the position is prepared.
func (n *Node) InRepertoire() bool { return n.Rep != nil }

// Trusted reports whether the node's own record can be used for
// probabilities.
func (n *Node) Trusted() bool {
	return n.HasStats && n.StatsState.Trusted() && n.Stats != nil
}

// Child returns the child reached by m.
func (n *Node) Child(m graph.Move) (*Node, bool) {
	for _, c := range n.Children {
		if c.Move == m {
			return c, true
		}
	}
	return nil, false
}

// PlayerMove reports whether the move into n was made by side.
func (n *Node) PlayerMove(side graph.Color) bool {
	return n.Parent != nil && n.Parent.Key.SideToMove() == side
}

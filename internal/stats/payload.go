package stats

import (
	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/tree"
)

// State is the expansion state of one statistics node.
type State uint8

const (
	// Pending nodes are queued for the next level.
	Pending State = iota
	// Expanded nodes have a trusted record and their children attached.
	Expanded
	// Pruned nodes were reached with probability at or below epsilon.
	Pruned
	// Empty nodes have a record with zero games.
	Empty
	// Untrusted nodes have fewer games than min_games.
	Untrusted
	// Failed nodes could not be fetched; Err holds the DataSourceError.
	Failed
	// Aborted nodes hit an inconsistent transposition while attaching
	// children.
	Aborted
	// Unfetched nodes were left when the budget or timeout ran out.
	Unfetched
)

var stateNames = [...]string{"pending", "expanded", "pruned", "empty", "untrusted", "failed", "aborted", "unfetched"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Trusted reports whether the node's record can be used for probabilities.
func (s State) Trusted() bool {
	return s == Expanded
}

// Payload is the statistics side of a node. Record is shared by every node
// with the same position.
type Payload struct {
	Record *explorer.Position
	State  State
	Reach  float64
	Err    error
}

// Tree is a statistics move tree.
type Tree = tree.Tree[Payload]

// Node is a statistics tree node.
type Node = tree.Node[Payload]

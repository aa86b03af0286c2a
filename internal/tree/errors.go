package tree

import (
	"fmt"

	"github.com/freeeve/prepgraph/internal/graph"
)

// InconsistentTranspositionError reports a move that resolves to two
// different positions from the same node. It means the input data is corrupt.
type InconsistentTranspositionError struct {
	Path     Path
	Move     graph.Move
	Existing graph.PositionKey
	Got      graph.PositionKey
}

func (e *InconsistentTranspositionError) Error() string {
	return fmt.Sprintf("move %s after [%s] leads to %q, previously %q",
		e.Move, e.Path, e.Got, e.Existing)
}

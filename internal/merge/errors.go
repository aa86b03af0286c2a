package merge

import (
	"fmt"

	"github.com/freeeve/prepgraph/internal/graph"
)

// TreeMismatchError means the statistics and repertoire trees start from
// different positions. No analysis is possible.
type TreeMismatchError struct {
	Stats      graph.PositionKey
	Repertoire graph.PositionKey
}

func (e *TreeMismatchError) Error() string {
	return fmt.Sprintf("root mismatch: statistics start at %q, repertoire at %q", e.Stats, e.Repertoire)
}

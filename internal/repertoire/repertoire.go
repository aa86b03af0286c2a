// Package repertoire builds the move tree of a player's prepared lines.
package repertoire

import (
	"fmt"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/tree"
)

// Payload marks a prepared position. Terminal is set when some line stops
// here; Lines names the lines that pass through.
type Payload struct {
	Terminal bool
	Lines    []string
}

// Tree is a repertoire move tree.
type Tree = tree.Tree[Payload]

// Node is a repertoire tree node.
type Node = tree.Node[Payload]

// Options configures a Repertoire.
type Options struct {
	DistinctDepth bool
	Logger        zerolog.Logger
}

// Repertoire is a player's prepared lines merged into one tree.
type Repertoire struct {
	tree  *Tree
	lines int
	log   zerolog.Logger
}

// New returns an empty repertoire rooted at the start position.
func New(opts Options) *Repertoire {
	return &Repertoire{
		tree: tree.New[Payload](graph.StartKey(), tree.Options{DistinctDepth: opts.DistinctDepth}),
		log:  opts.Logger.With().Str("component", "repertoire").Logger(),
	}
}

// Tree returns the underlying move tree.
func (r *Repertoire) Tree() *Tree { return r.tree }

// Lines is the number of lines added.
func (r *Repertoire) Lines() int { return r.lines }

// AddLine replays SAN moves from the start position and inserts the path.
// Nothing is inserted if any move fails to replay or leads to a position
// other than the one already in the tree.
func (r *Repertoire) AddLine(name string, sans ...string) error {
	gs := pgn.NewStartingPosition()
	steps := make([]step, 0, len(sans))
	for i, san := range sans {
		m, err := graph.ApplySAN(gs, san)
		if err != nil {
			return fmt.Errorf("line %q ply %d: %w", name, i+1, err)
		}
		key, err := graph.Canonicalize(gs)
		if err != nil {
			return fmt.Errorf("line %q ply %d: %w", name, i+1, err)
		}
		steps = append(steps, step{move: m, san: san, key: key})
	}
	return r.insert(name, steps)
}

// AddGame inserts the mainline of a parsed game.
func (r *Repertoire) AddGame(name string, moves []pgn.Mv) error {
	gs := pgn.NewStartingPosition()
	steps := make([]step, 0, len(moves))
	for i, mv := range moves {
		m, err := graph.ApplyMv(gs, mv)
		if err != nil {
			return fmt.Errorf("game %q ply %d: %w", name, i+1, err)
		}
		key, err := graph.Canonicalize(gs)
		if err != nil {
			return fmt.Errorf("game %q ply %d: %w", name, i+1, err)
		}
		steps = append(steps, step{move: m, key: key})
	}
	return r.insert(name, steps)
}

type step struct {
	move graph.Move
	san  string
	key  graph.PositionKey
}

func (r *Repertoire) insert(name string, steps []step) error {
	if err := r.check(steps); err != nil {
		return fmt.Errorf("line %q: %w", name, err)
	}
	n := r.tree.Root()
	for _, s := range steps {
		child, _, err := r.tree.GetOrCreateChildSAN(n, s.move, s.san, s.key)
		if err != nil {
			return fmt.Errorf("line %q: %w", name, err)
		}
		child.Payload.Lines = appendLine(child.Payload.Lines, name)
		n = child
	}
	n.Payload.Terminal = true
	r.lines++
	return nil
}

// check walks the existing prefix of steps and reports the first move that
// reaches a different position than the tree holds.
func (r *Repertoire) check(steps []step) error {
	n := r.tree.Root()
	for _, s := range steps {
		child, ok := n.Child(s.move)
		if !ok {
			return nil
		}
		if key := r.tree.KeyFor(s.key, child.Ply); child.Key != key {
			return &tree.InconsistentTranspositionError{
				Path:     n.Path(),
				Move:     s.move,
				Existing: child.Key,
				Got:      key,
			}
		}
		n = child
	}
	return nil
}

func appendLine(lines []string, name string) []string {
	if name == "" {
		return lines
	}
	for _, l := range lines {
		if l == name {
			return lines
		}
	}
	return append(lines, name)
}

// PreparedMoves lists the moves prepared from the position at path.
func (r *Repertoire) PreparedMoves(path tree.Path) []graph.Move {
	n, ok := r.tree.Lookup(path)
	if !ok {
		return nil
	}
	moves := make([]graph.Move, len(n.Children()))
	for i, e := range n.Children() {
		moves[i] = e.Move
	}
	return moves
}

// Stats summarizes the shape of a repertoire.
type Stats struct {
	Positions int // nodes including the root
	Lines     int
	Leaves    int
	// DecisionPoints counts positions with the player to move and more
	// than one prepared move. Zero unless a side is given.
	DecisionPoints int
	MaxDepth       int
}

// Stats walks the tree. side selects whose decision points are counted;
// nil counts none.
func (r *Repertoire) Stats(side *graph.Color) Stats {
	st := Stats{Positions: r.tree.Len(), Lines: r.lines}
	for _, n := range r.tree.Walk() {
		if n.IsLeaf() {
			st.Leaves++
		}
		if n.Ply > st.MaxDepth {
			st.MaxDepth = n.Ply
		}
		if side != nil && n.Key.SideToMove() == *side && len(n.Children()) > 1 {
			st.DecisionPoints++
		}
	}
	return st
}

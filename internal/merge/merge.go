// Package merge joins a statistics tree with a repertoire tree and scores
// every position by the probability that a game reaches it.
//
// Reach is derived top down: the root gets the configured root probability
// and each child gets its parent's reach times the share of the parent's
// games that played the move. Where no counts are known a prepared position
// inherits its parent's reach as an upper bound.
package merge

import (
	"iter"

	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/repertoire"
	"github.com/freeeve/prepgraph/internal/stats"
	"github.com/freeeve/prepgraph/internal/tree"
)

// Config holds the thresholds used for scoring.
type Config struct {
	Epsilon         float64
	TauHigh         float64 // Missing when reach >= TauHigh
	TauLow          float64 // Overprepared when reach <= TauLow
	RootProbability float64
	// Side, when set, is the player's color. Positions at or below an own
	// move the repertoire does not prepare are then Negligible.
	Side *graph.Color
}

// Tree is the scored result of a merge. It is read-only once returned.
type Tree struct {
	Root   *Node
	Config Config
	// Problems lists child positions on which the two input trees disagree.
	// Such children are joined without statistics.
	Problems []error

	size int
}

// Len returns the number of scored nodes.
func (t *Tree) Len() int { return t.size }

// Walk yields every node in pre-order, children in order.
func (t *Tree) Walk() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := []*Node{t.Root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(n) {
				return
			}
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
	}
}

// Nodes returns every node in pre-order.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, 0, t.size)
	for n := range t.Walk() {
		out = append(out, n)
	}
	return out
}

// Find follows path from the root.
func (t *Tree) Find(path tree.Path) (*Node, bool) {
	n := t.Root
	for _, m := range path {
		var ok bool
		if n, ok = n.Child(m); !ok {
			return nil, false
		}
	}
	return n, true
}

// Merge scores the union of st and rep. Neither input is modified. It fails
// only with *TreeMismatchError.
func Merge(st *stats.Tree, rep *repertoire.Tree, cfg Config) (*Tree, error) {
	if cfg.RootProbability == 0 {
		cfg.RootProbability = 1
	}
	sr, rr := st.Root(), rep.Root()
	if sr.Key.Base() != rr.Key.Base() {
		return nil, &TreeMismatchError{Stats: sr.Key.Base(), Repertoire: rr.Key.Base()}
	}

	m := &merger{
		st:     st,
		cfg:    cfg,
		out:    &Tree{Config: cfg},
		onPath: make(map[graph.PositionKey]int),
	}
	root := &Node{
		Path:  tree.Path{},
		Key:   rr.Key.Base(),
		Reach: cfg.RootProbability,
	}
	p := rr.Payload
	root.Rep = &p
	m.attachStats(root, sr)
	root.Class = m.classify(root)
	m.out.Root = root
	m.out.size = 1

	m.expand(root, sr, rr)
	return m.out, nil
}

type merger struct {
	st     *stats.Tree
	cfg    Config
	out    *Tree
	onPath map[graph.PositionKey]int
}

type childSpec struct {
	move graph.Move
	san  string
	key  graph.PositionKey
	rep  *repertoire.Node
}

// expand scores the children of n and recurses. Prepared moves come first
// in repertoire order, then the record's other moves in record order.
func (m *merger) expand(n *Node, sn *stats.Node, rn *repertoire.Node) {
	m.onPath[n.Key]++
	defer func() { m.onPath[n.Key]-- }()

	var specs []childSpec
	seen := make(map[graph.Move]bool)
	if rn != nil {
		for _, e := range rn.Children() {
			specs = append(specs, childSpec{move: e.Move, san: e.SAN, key: e.Child.Key.Base(), rep: e.Child})
			seen[e.Move] = true
		}
	}
	// Replies are listed below epsilon only at prepared positions, which
	// the builder expands regardless of reach. Statistics-only
	// continuations stop at a repeated position so key joins cannot cycle.
	if n.Trusted() && !n.UpperBound && (n.Reach > m.cfg.Epsilon || n.InRepertoire()) && m.onPath[n.Key] == 1 {
		for _, ms := range n.Stats.Moves {
			if seen[ms.Move] {
				continue
			}
			seen[ms.Move] = true
			specs = append(specs, childSpec{move: ms.Move, san: ms.SAN, key: ms.Child.Base()})
		}
	}

	for _, cs := range specs {
		var sc *stats.Node
		if sn != nil {
			sc, _ = sn.Child(cs.move)
		}
		c, sc := m.child(n, sc, cs)
		n.Children = append(n.Children, c)
		m.out.size++
		m.expand(c, sc, cs.rep)
	}
}

// child scores one child of n. It returns the statistics node to follow,
// which is nil when the trees disagree on the position.
func (m *merger) child(n *Node, sc *stats.Node, cs childSpec) (*Node, *stats.Node) {
	path := make(tree.Path, len(n.Path)+1)
	copy(path, n.Path)
	path[len(n.Path)] = cs.move
	c := &Node{
		Path:   path,
		Key:    cs.key,
		Ply:    n.Ply + 1,
		Move:   cs.move,
		SAN:    cs.san,
		Parent: n,
	}
	if cs.rep != nil {
		p := cs.rep.Payload
		c.Rep = &p
	}
	c.OffBook = n.OffBook || (m.cfg.Side != nil && c.Rep == nil && c.PlayerMove(*m.cfg.Side))

	var ms explorer.MoveStat
	found := false
	if n.Trusted() {
		ms, found = n.Stats.Move(cs.move)
		if found && ms.Child.Base() != c.Key {
			m.problem(n, cs.move, ms.Child.Base(), c.Key)
			found = false
			sc = nil
		}
	}
	if sc != nil && sc.Key.Base() != c.Key {
		m.problem(n, cs.move, sc.Key.Base(), c.Key)
		sc = nil
	}
	if c.SAN == "" && found {
		c.SAN = ms.SAN
	}

	if found {
		total := n.Stats.TotalGames()
		c.Games = min(ms.Games(), total)
		c.Reach = n.Reach * float64(c.Games) / float64(total)
		c.UpperBound = n.UpperBound
	} else {
		c.Reach = n.Reach
		c.UpperBound = true
	}

	m.attachStats(c, sc)
	if c.HasStats && c.StatsState == stats.Empty {
		c.Reach = 0
	}
	c.Class = m.classify(c)
	return c, sc
}

func (m *merger) problem(n *Node, move graph.Move, statsKey, repKey graph.PositionKey) {
	m.out.Problems = append(m.out.Problems, &tree.InconsistentTranspositionError{
		Path:     n.Path,
		Move:     move,
		Existing: statsKey,
		Got:      repKey,
	})
}

// attachStats takes the node's statistics from its own path if it has a
// trusted record there, otherwise from any trusted node with the same key.
func (m *merger) attachStats(n *Node, sn *stats.Node) {
	if sn != nil && sn.Payload.State != stats.Pending {
		n.HasStats = true
		n.Stats = sn.Payload.Record
		n.StatsState = sn.Payload.State
		n.StatsErr = sn.Payload.Err
		if n.Trusted() {
			return
		}
	}
	for _, o := range m.st.FindByKey(m.st.KeyFor(n.Key, n.Ply)) {
		if o.Payload.State.Trusted() && o.Payload.Record != nil {
			n.HasStats = true
			n.Stats = o.Payload.Record
			n.StatsState = o.Payload.State
			n.StatsErr = nil
			return
		}
	}
}

// classify needs an exact reach. A node whose own record is missing still
// has one when its parent's record lists the move, unless the builder
// pruned it.
func (m *merger) classify(n *Node) Class {
	if n.OffBook && !n.InRepertoire() {
		return Negligible
	}
	if n.UpperBound {
		return Unknown
	}
	if n.HasStats {
		switch n.StatsState {
		case stats.Pending, stats.Empty, stats.Untrusted, stats.Failed, stats.Aborted, stats.Unfetched, stats.Pruned:
			return Unknown
		}
	}
	if n.InRepertoire() {
		if n.Reach <= m.cfg.TauLow {
			return Overprepared
		}
		return Covered
	}
	if n.Reach >= m.cfg.TauHigh {
		return Missing
	}
	return Negligible
}

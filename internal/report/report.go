// Package report ranks the positions of a scored tree: prepared lines that
// are too rare to be worth keeping, frequent positions the repertoire does
// not answer, and decision points where several prepared moves split the
// work.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"

	"github.com/freeeve/prepgraph/internal/eco"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/merge"
	"github.com/freeeve/prepgraph/internal/tree"
)

// Namer names positions. *eco.Database implements it.
type Namer interface {
	Lookup(key graph.PositionKey) (eco.Opening, bool)
}

// Entry is one ranked position.
type Entry struct {
	ID       string      `json:"id"`
	Line     string      `json:"line"`
	Moves    string      `json:"moves"`
	FEN      string      `json:"fen"`
	Ply      int         `json:"ply"`
	Reach    float64     `json:"reach"`
	Games    uint64      `json:"games"`
	Class    merge.Class `json:"class"`
	Prepared int         `json:"prepared,omitempty"`
	Opening  string      `json:"opening,omitempty"`

	node *merge.Node
}

// LineID is a stable identifier for a move path. Reports built from
// different database snapshots can be compared by it.
func LineID(p tree.Path) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(p.String()))
}

// NewEntry describes n. names may be nil.
func NewEntry(n *merge.Node, names Namer) Entry {
	return Entry{
		ID:       LineID(n.Path),
		Line:     SANLine(n),
		Moves:    n.Path.String(),
		FEN:      n.Key.FEN(),
		Ply:      n.Ply,
		Reach:    n.Reach,
		Games:    n.Games,
		Class:    n.Class,
		Prepared: preparedMoves(n),
		Opening:  openingName(n, names),
		node:     n,
	}
}

// SANLine renders the path to n with move numbers, e.g. "1. e4 c5 2. Nf3".
// Moves without a known SAN are written in UCI.
func SANLine(n *merge.Node) string {
	moves := make([]string, n.Ply)
	cur := n
	for cur.Parent != nil {
		san := cur.SAN
		if san == "" {
			san = cur.Move.ToUCI()
		}
		moves[cur.Ply-1] = san
		cur = cur.Parent
	}

	var b strings.Builder
	side := cur.Key.SideToMove()
	number := 1
	for i, san := range moves {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch {
		case side == graph.White:
			fmt.Fprintf(&b, "%d. ", number)
		case i == 0:
			fmt.Fprintf(&b, "%d... ", number)
		}
		b.WriteString(san)
		if side == graph.Black {
			number++
		}
		side = side.Other()
	}
	return b.String()
}

// openingName uses the deepest named position on the path, falling back to
// the names carried by database records.
func openingName(n *merge.Node, names Namer) string {
	if names != nil {
		for cur := n; cur != nil; cur = cur.Parent {
			if o, ok := names.Lookup(cur.Key); ok {
				return o.String()
			}
		}
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Stats != nil && cur.Stats.Opening != nil && cur.Stats.Opening.Name != "" {
			return strings.TrimSpace(cur.Stats.Opening.ECO + " " + cur.Stats.Opening.Name)
		}
	}
	return ""
}

func preparedMoves(n *merge.Node) int {
	return lo.CountBy(n.Children, func(c *merge.Node) bool { return c.InRepertoire() })
}

func take(entries []Entry, n int) []Entry {
	if n > 0 && len(entries) > n {
		return entries[:n]
	}
	return entries
}

func collect(t *merge.Tree, keep func(*merge.Node) bool) []Entry {
	var out []Entry
	for n := range t.Walk() {
		if keep(n) {
			out = append(out, NewEntry(n, nil))
		}
	}
	return out
}

// less orders by key, then shallower first, then by path.
func less(a, b Entry, ka, kb float64, descending bool) bool {
	if ka != kb {
		if descending {
			return ka > kb
		}
		return ka < kb
	}
	if a.Ply != b.Ply {
		return a.Ply < b.Ply
	}
	return a.Moves < b.Moves
}

// Missing lists up to n Missing positions, most likely first. Equally likely
// positions are ordered shallower first. n <= 0 lists all.
func Missing(t *merge.Tree, n int) []Entry {
	out := collect(t, func(x *merge.Node) bool { return x.Class == merge.Missing })
	sort.Slice(out, func(i, j int) bool {
		return less(out[i], out[j], out[i].Reach, out[j].Reach, true)
	})
	return take(out, n)
}

// Overprepared lists up to n Overprepared positions, least likely first.
func Overprepared(t *merge.Tree, n int) []Entry {
	out := collect(t, func(x *merge.Node) bool { return x.Class == merge.Overprepared })
	sort.Slice(out, func(i, j int) bool {
		return less(out[i], out[j], out[i].Reach, out[j].Reach, false)
	})
	return take(out, n)
}

// decisionPoints are prepared positions with an exact reach where the
// repertoire keeps more than one move. With a side configured only the
// player's own choices count.
func decisionPoints(t *merge.Tree) []Entry {
	return collect(t, func(x *merge.Node) bool {
		if !x.InRepertoire() || x.UpperBound || preparedMoves(x) < 2 {
			return false
		}
		return t.Config.Side == nil || x.Key.SideToMove() == *t.Config.Side
	})
}

// Narrowing lists decision points whose prepared moves are least likely to
// be used, by reach per prepared move ascending.
func Narrowing(t *merge.Tree, n int) []Entry {
	out := decisionPoints(t)
	sort.Slice(out, func(i, j int) bool {
		ki := out[i].Reach / float64(out[i].Prepared)
		kj := out[j].Reach / float64(out[j].Prepared)
		return less(out[i], out[j], ki, kj, false)
	})
	return take(out, n)
}

// Reduction lists the decision points where dropping alternatives saves the
// most work, by reach times prepared moves descending.
func Reduction(t *merge.Tree, n int) []Entry {
	out := decisionPoints(t)
	sort.Slice(out, func(i, j int) bool {
		ki := out[i].Reach * float64(out[i].Prepared)
		kj := out[j].Reach * float64(out[j].Prepared)
		return less(out[i], out[j], ki, kj, true)
	})
	return take(out, n)
}

// ClassSummary is the count and summed reach of one class.
type ClassSummary struct {
	Class merge.Class `json:"class"`
	Count int         `json:"count"`
	Mass  float64     `json:"mass"`
}

// Summary describes a scored tree as a whole.
type Summary struct {
	Nodes   int            `json:"nodes"`
	Classes []ClassSummary `json:"classes"`
	// PreparedPositions counts prepared positions with at least one
	// prepared move.
	PreparedPositions int `json:"prepared_positions"`
	// ExpectedBookPlies is the expected number of plies a game stays in
	// the repertoire, counting only exact reach.
	ExpectedBookPlies float64 `json:"expected_book_plies"`
	Problems          int     `json:"problems"`
}

// Class returns the summary row for c.
func (s Summary) Class(c merge.Class) ClassSummary {
	row, _ := lo.Find(s.Classes, func(r ClassSummary) bool { return r.Class == c })
	row.Class = c
	return row
}

// Summarize counts the tree per class.
func Summarize(t *merge.Tree) Summary {
	nodes := t.Nodes()
	byClass := lo.GroupBy(nodes, func(n *merge.Node) merge.Class { return n.Class })

	s := Summary{
		Nodes:    len(nodes),
		Problems: len(t.Problems),
	}
	for _, c := range merge.Classes {
		members := byClass[c]
		s.Classes = append(s.Classes, ClassSummary{
			Class: c,
			Count: len(members),
			Mass:  lo.SumBy(members, func(n *merge.Node) float64 { return n.Reach }),
		})
	}
	s.PreparedPositions = lo.CountBy(nodes, func(n *merge.Node) bool {
		return n.InRepertoire() && preparedMoves(n) > 0
	})
	s.ExpectedBookPlies = expectedBookPlies(t, nodes)
	return s
}

// expectedBookPlies charges each prepared position with the reach that
// leaves the repertoire there, weighted by its ply.
func expectedBookPlies(t *merge.Tree, nodes []*merge.Node) float64 {
	var plies float64
	for _, n := range nodes {
		if !n.InRepertoire() || n.UpperBound {
			continue
		}
		stays := lo.SumBy(n.Children, func(c *merge.Node) float64 {
			if c.InRepertoire() && !c.UpperBound {
				return c.Reach
			}
			return 0
		})
		if leaves := n.Reach - stays; leaves > 0 {
			plies += float64(n.Ply) * leaves
		}
	}
	if root := t.Root.Reach; root > 0 {
		return plies / root
	}
	return 0
}

// Options selects list lengths. A zero length omits the list and a
// negative length lists everything.
type Options struct {
	Best   int // Missing
	Worst  int // Overprepared
	Most   int // Narrowing
	Costly int // Reduction
	Names  Namer
}

// Report is the full analysis output.
type Report struct {
	Side         string  `json:"side,omitempty"`
	Summary      Summary `json:"summary"`
	Missing      []Entry `json:"missing,omitempty"`
	Overprepared []Entry `json:"overprepared,omitempty"`
	Narrowing    []Entry `json:"narrowing,omitempty"`
	Reduction    []Entry `json:"reduction,omitempty"`
}

// Build assembles a report. The tree is only read.
func Build(t *merge.Tree, opts Options) *Report {
	r := &Report{Summary: Summarize(t)}
	if t.Config.Side != nil {
		r.Side = t.Config.Side.String()
	}
	list := func(limit int, f func(*merge.Tree, int) []Entry) []Entry {
		if limit == 0 {
			return nil
		}
		entries := f(t, limit)
		for i := range entries {
			entries[i].Opening = openingName(entries[i].node, opts.Names)
		}
		return entries
	}
	r.Missing = list(opts.Best, Missing)
	r.Overprepared = list(opts.Worst, Overprepared)
	r.Narrowing = list(opts.Most, Narrowing)
	r.Reduction = list(opts.Costly, Reduction)
	return r
}

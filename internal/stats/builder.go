// Package stats grows the statistics move tree from an explorer source.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/tree"
)

// Config controls a build. Zero values take the defaults below.
type Config struct {
	Filter          explorer.Filter
	Epsilon         float64       // expand a node only if its reach exceeds this
	MinGames        uint64        // records with fewer games are not trusted
	RootProbability float64       // reach of the start position (default 1)
	Concurrency     int           // parallel fetches per level (default 4)
	MaxRequests     int           // fetch budget, 0 = unlimited
	Timeout         time.Duration // wall clock budget, 0 = none
	DistinctDepth   bool
}

// Guide lists the prepared moves out of the position reached by path.
// Lines it names are expanded regardless of epsilon.
type Guide interface {
	PreparedMoves(path tree.Path) []graph.Move
}

// Result is a finished or truncated build.
type Result struct {
	Tree      *Tree
	Truncated bool // budget, timeout or cancellation stopped the build
	Requests  int
	Levels    int
	Errors    []error // per-branch failures, in tree order
}

// Builder expands the statistics tree level by level.
type Builder struct {
	src explorer.Source
	cfg Config
	log zerolog.Logger
}

// NewBuilder creates a builder over src.
func NewBuilder(src explorer.Source, cfg Config, log zerolog.Logger) *Builder {
	if cfg.RootProbability == 0 {
		cfg.RootProbability = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Builder{
		src: src,
		cfg: cfg,
		log: log.With().Str("component", "stats").Logger(),
	}
}

type frontierItem struct {
	node   *Node
	onLine bool
}

type fetched struct {
	pos *explorer.Position
	err error
}

// Build expands from the start position. guide may be nil. The returned
// error is non-nil only when the build could not start; per-branch failures
// and truncation are reported in the Result.
func (b *Builder) Build(ctx context.Context, guide Guide) (*Result, error) {
	if b.src == nil {
		return nil, errors.New("stats: nil source")
	}
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	t := tree.New[Payload](graph.StartKey(), tree.Options{DistinctDepth: b.cfg.DistinctDepth})
	res := &Result{Tree: t}
	root := t.Root()
	root.Payload = Payload{State: Pending, Reach: b.cfg.RootProbability}

	records := make(map[graph.PositionKey]fetched)
	frontier := []frontierItem{{node: root, onLine: guide != nil}}
	start := time.Now()

	for len(frontier) > 0 {
		keys := b.plan(frontier, records)
		keys = b.budget(ctx, res, keys)
		if len(keys) > 0 {
			b.log.Debug().Int("level", res.Levels).Int("frontier", len(frontier)).Int("fetch", len(keys)).Msg("expanding level")
			b.fetch(ctx, keys, records)
			res.Requests += len(keys)
		}

		var next []frontierItem
		for _, it := range frontier {
			next = b.apply(res, it, records, guide, next)
		}
		frontier = next
		res.Levels++
	}

	b.log.Info().
		Int("nodes", t.Len()).
		Int("requests", res.Requests).
		Int("levels", res.Levels).
		Int("errors", len(res.Errors)).
		Bool("truncated", res.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("statistics tree built")
	return res, nil
}

// plan lists the distinct positions of the frontier that have no record
// yet. Positions on a prepared line come first so a trimmed budget is spent
// on them; otherwise frontier order is kept.
func (b *Builder) plan(frontier []frontierItem, records map[graph.PositionKey]fetched) []graph.PositionKey {
	seen := make(map[graph.PositionKey]bool)
	var keys []graph.PositionKey
	for _, onLine := range []bool{true, false} {
		for _, it := range frontier {
			k := it.node.Key.Base()
			if it.onLine != onLine || seen[k] {
				continue
			}
			if _, ok := records[k]; ok {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// budget trims keys to what the request budget and context still allow.
func (b *Builder) budget(ctx context.Context, res *Result, keys []graph.PositionKey) []graph.PositionKey {
	if ctx.Err() != nil {
		if len(keys) > 0 {
			res.Truncated = true
		}
		return nil
	}
	if b.cfg.MaxRequests > 0 {
		left := b.cfg.MaxRequests - res.Requests
		if left < 0 {
			left = 0
		}
		if len(keys) > left {
			b.log.Warn().Int("max_requests", b.cfg.MaxRequests).Msg("request budget exhausted")
			res.Truncated = true
			keys = keys[:left]
		}
	}
	return keys
}

func (b *Builder) fetch(ctx context.Context, keys []graph.PositionKey, records map[graph.PositionKey]fetched) {
	out := make([]fetched, len(keys))
	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, k := range keys {
		g.Go(func() error {
			p, err := b.src.Lookup(ctx, explorer.Request{Key: k, Filter: b.cfg.Filter})
			if err == nil && p == nil {
				err = errors.New("nil record")
			}
			out[i] = fetched{pos: p, err: explorer.AsDataSourceError(k, err)}
			return nil
		})
	}
	g.Wait()

	// Cancellation is not a property of the position; leave it unrecorded.
	for i, k := range keys {
		if out[i].err != nil && ctx.Err() != nil {
			continue
		}
		records[k] = out[i]
	}
}

// apply settles one frontier node from its record and appends its
// expandable children to next.
func (b *Builder) apply(res *Result, it frontierItem, records map[graph.PositionKey]fetched, guide Guide, next []frontierItem) []frontierItem {
	n := it.node
	rec, ok := records[n.Key.Base()]
	if !ok {
		n.Payload.State = Unfetched
		res.Truncated = true
		return next
	}
	if rec.err != nil {
		n.Payload.State = Failed
		n.Payload.Err = rec.err
		res.Errors = append(res.Errors, rec.err)
		b.log.Warn().Err(rec.err).Str("path", n.Path().String()).Msg("branch failed")
		return next
	}

	n.Payload.Record = rec.pos
	total := rec.pos.TotalGames()
	switch {
	case total == 0:
		n.Payload.State = Empty
		return next
	case total < b.cfg.MinGames:
		n.Payload.State = Untrusted
		return next
	}
	n.Payload.State = Expanded

	var prepared map[graph.Move]bool
	if it.onLine && guide != nil {
		if moves := guide.PreparedMoves(n.Path()); len(moves) > 0 {
			prepared = make(map[graph.Move]bool, len(moves))
			for _, m := range moves {
				prepared[m] = true
			}
		}
	}

	for _, ms := range rec.pos.Moves {
		child, created, err := res.Tree.GetOrCreateChildSAN(n, ms.Move, ms.SAN, ms.Child)
		if err != nil {
			n.Payload.State = Aborted
			n.Payload.Err = err
			res.Errors = append(res.Errors, fmt.Errorf("attach children of %s: %w", n.Key, err))
			b.log.Warn().Err(err).Str("path", n.Path().String()).Msg("branch aborted")
			return next
		}
		if !created {
			continue
		}
		reach := n.Payload.Reach * float64(min(ms.Games(), total)) / float64(total)
		onLine := prepared[ms.Move]
		child.Payload = Payload{Reach: reach}
		if reach > b.cfg.Epsilon || onLine {
			child.Payload.State = Pending
			next = append(next, frontierItem{node: child, onLine: onLine})
		} else {
			child.Payload.State = Pruned
		}
	}
	return next
}

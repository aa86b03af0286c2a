package explorer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/prepgraph/internal/graph"
)

// Static serves records from memory. Unknown positions return an empty
// record (zero games). It counts lookups and can be told to fail keys.
type Static struct {
	mu        sync.RWMutex
	positions map[graph.PositionKey]*Position
	failures  map[graph.PositionKey]error
	calls     atomic.Int64
}

// NewStatic returns an empty Static source.
func NewStatic() *Static {
	return &Static{
		positions: make(map[graph.PositionKey]*Position),
		failures:  make(map[graph.PositionKey]error),
	}
}

// Set stores the record for key.
func (s *Static) Set(key graph.PositionKey, p *Position) {
	s.mu.Lock()
	s.positions[key.Base()] = p
	s.mu.Unlock()
}

// Fail makes every lookup of key return err.
func (s *Static) Fail(key graph.PositionKey, err error) {
	s.mu.Lock()
	s.failures[key.Base()] = err
	s.mu.Unlock()
}

// Calls is the number of lookups served so far.
func (s *Static) Calls() int64 { return s.calls.Load() }

// Lookup implements Source.
func (s *Static) Lookup(ctx context.Context, req Request) (*Position, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &DataSourceError{Key: req.Key, Err: err}
	}
	key := req.Key.Base()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failures[key]; ok {
		return nil, AsDataSourceError(key, err)
	}
	if p, ok := s.positions[key]; ok {
		return p, nil
	}
	return &Position{}, nil
}

// Counts is a (SAN, games) pair for SetCounts.
type Counts struct {
	SAN   string
	Games uint64
}

// SetCounts stores a record for the position reached by playing line from
// the start. total is the game count of the position itself; each move's
// games are booked as draws.
func (s *Static) SetCounts(line []string, total uint64, moves ...Counts) error {
	gs := pgn.NewStartingPosition()
	for _, san := range line {
		if _, err := graph.ApplySAN(gs, san); err != nil {
			return err
		}
	}
	key, err := graph.Canonicalize(gs)
	if err != nil {
		return err
	}
	rec := &Position{Draws: total}
	for _, c := range moves {
		ms, err := Stat(key, c.SAN)
		if err != nil {
			return err
		}
		ms.Draws = c.Games
		rec.Moves = append(rec.Moves, ms)
	}
	s.Set(key, rec)
	return nil
}

// Stat resolves a SAN move from key into a MoveStat with its label and child
// key filled in.
func Stat(key graph.PositionKey, san string) (MoveStat, error) {
	gs, err := key.GameState()
	if err != nil {
		return MoveStat{}, err
	}
	m, err := graph.ApplySAN(gs, san)
	if err != nil {
		return MoveStat{}, err
	}
	child, err := graph.Canonicalize(gs)
	if err != nil {
		return MoveStat{}, err
	}
	return MoveStat{Move: m, SAN: san, Child: child}, nil
}

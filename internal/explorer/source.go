// Package explorer defines the statistics data source consumed by the
// builder and ships a client for the lichess opening explorer.
package explorer

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/freeeve/prepgraph/internal/graph"
)

// Filter narrows the games a record is computed over. It is threaded
// unchanged through every request of one analysis.
type Filter struct {
	Database  string   `yaml:"database" json:"database"` // "lichess" or "masters"
	Speeds    []string `yaml:"speeds" json:"speeds"`
	RatingMin int      `yaml:"rating_min" json:"rating_min"`
	RatingMax int      `yaml:"rating_max" json:"rating_max"`
	Moves     int      `yaml:"moves" json:"moves"` // max moves per position, 0 = source default
}

// String is a canonical rendering: speeds are sorted, so equal filters
// print the same.
func (f Filter) String() string {
	speeds := append([]string(nil), f.Speeds...)
	sort.Strings(speeds)
	var b strings.Builder
	b.WriteString(f.Database)
	b.WriteString("|")
	b.WriteString(strings.Join(speeds, ","))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(f.RatingMin))
	b.WriteString("-")
	b.WriteString(strconv.Itoa(f.RatingMax))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(f.Moves))
	return b.String()
}

// Fingerprint hashes the canonical form of the filter.
func (f Filter) Fingerprint() uint64 {
	return xxhash.Sum64String(f.String())
}

// Request asks for the record of one position.
type Request struct {
	Key    graph.PositionKey
	Filter Filter
}

// ColorToMove is the side whose move frequencies the record describes.
func (r Request) ColorToMove() graph.Color {
	return r.Key.SideToMove()
}

// MoveStat is one candidate move from a position.
type MoveStat struct {
	Move          graph.Move        `json:"move"`
	SAN           string            `json:"san"`
	Child         graph.PositionKey `json:"child"`
	White         uint64            `json:"white"`
	Draws         uint64            `json:"draws"`
	Black         uint64            `json:"black"`
	AverageRating int               `json:"average_rating,omitempty"`
}

// Games is the number of games that continued with this move.
func (m MoveStat) Games() uint64 {
	return m.White + m.Draws + m.Black
}

// Opening names a position.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Position is the aggregate record for one position under a filter.
// Move counts sum to at most TotalGames; the source may list only the most
// popular moves.
type Position struct {
	White   uint64     `json:"white"`
	Draws   uint64     `json:"draws"`
	Black   uint64     `json:"black"`
	Moves   []MoveStat `json:"moves"`
	Opening *Opening   `json:"opening,omitempty"`
}

// TotalGames is the number of games reaching the position.
func (p *Position) TotalGames() uint64 {
	if p == nil {
		return 0
	}
	return p.White + p.Draws + p.Black
}

// Move returns the stat for m.
func (p *Position) Move(m graph.Move) (MoveStat, bool) {
	if p == nil {
		return MoveStat{}, false
	}
	for _, ms := range p.Moves {
		if ms.Move == m {
			return ms, true
		}
	}
	return MoveStat{}, false
}

// Source returns the record for a position. Implementations must be safe
// for concurrent use. Failures are reported as *DataSourceError.
type Source interface {
	Lookup(ctx context.Context, req Request) (*Position, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) (*Position, error)

// Lookup calls f.
func (f SourceFunc) Lookup(ctx context.Context, req Request) (*Position, error) {
	return f(ctx, req)
}

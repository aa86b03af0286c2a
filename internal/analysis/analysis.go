// Package analysis runs one repertoire through the whole pipeline: grow the
// statistics tree along the prepared lines, score the union of both trees
// and rank the results.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/config"
	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/merge"
	"github.com/freeeve/prepgraph/internal/report"
	"github.com/freeeve/prepgraph/internal/repertoire"
	"github.com/freeeve/prepgraph/internal/stats"
)

// Input is one repertoire to analyze.
type Input struct {
	// Side is the color the repertoire is played with, nil when unknown.
	Side       *graph.Color
	Repertoire *repertoire.Repertoire
	// Names labels report entries, may be nil.
	Names report.Namer
}

// Result holds every stage's output.
type Result struct {
	Side       *graph.Color
	Build      *stats.Result
	Tree       *merge.Tree
	Report     *report.Report
	Repertoire repertoire.Stats
	Elapsed    time.Duration
}

// SideName is "white", "black" or "any".
func (r *Result) SideName() string {
	if r.Side == nil {
		return "any"
	}
	return r.Side.String()
}

// Filter is the explorer filter of cfg.
func Filter(cfg config.Config) explorer.Filter {
	return explorer.Filter{
		Database:  cfg.Explorer.Database,
		Speeds:    cfg.Explorer.Speeds,
		RatingMin: cfg.Explorer.RatingMin,
		RatingMax: cfg.Explorer.RatingMax,
		Moves:     cfg.Explorer.Moves,
	}
}

// StatsConfig maps cfg onto the builder's settings.
func StatsConfig(cfg config.Config) stats.Config {
	return stats.Config{
		Filter:          Filter(cfg),
		Epsilon:         cfg.Epsilon,
		MinGames:        cfg.MinGames,
		RootProbability: cfg.RootProbability,
		Concurrency:     cfg.Concurrency,
		MaxRequests:     cfg.MaxRequests,
		Timeout:         cfg.Timeout,
		DistinctDepth:   cfg.DistinctDepth,
	}
}

// MergeConfig maps cfg onto the scoring thresholds.
func MergeConfig(cfg config.Config, side *graph.Color) merge.Config {
	return merge.Config{
		Epsilon:         cfg.Epsilon,
		TauHigh:         cfg.TauHigh,
		TauLow:          cfg.TauLow,
		RootProbability: cfg.RootProbability,
		Side:            side,
	}
}

// ReportOptions maps cfg onto list lengths.
func ReportOptions(cfg config.Config, names report.Namer) report.Options {
	return report.Options{
		Best:   cfg.Report.Best,
		Worst:  cfg.Report.Worst,
		Most:   cfg.Report.Most,
		Costly: cfg.Report.Costly,
		Names:  names,
	}
}

// NewLichess builds the explorer client described by cfg.
func NewLichess(cfg config.Config, log zerolog.Logger) *explorer.Lichess {
	return explorer.NewLichess(explorer.LichessConfig{
		BaseURL:  cfg.Explorer.BaseURL,
		Token:    cfg.Explorer.Token,
		Attempts: cfg.Explorer.Attempts,
		Delay:    cfg.Explorer.Delay,
		Logger:   log,
	})
}

// Run analyzes in. A truncated statistics build still produces a report;
// check Result.Build.Truncated.
func Run(ctx context.Context, cfg config.Config, src explorer.Source, in Input, log zerolog.Logger) (*Result, error) {
	if in.Repertoire == nil {
		return nil, errors.New("analysis: nil repertoire")
	}
	start := time.Now()
	log = log.With().Str("component", "analysis").Logger()
	if in.Side != nil {
		log = log.With().Stringer("side", in.Side).Logger()
	}

	res := &Result{
		Side:       in.Side,
		Repertoire: in.Repertoire.Stats(in.Side),
	}
	log.Info().
		Int("lines", res.Repertoire.Lines).
		Int("positions", res.Repertoire.Positions).
		Msg("analyzing repertoire")

	built, err := stats.NewBuilder(src, StatsConfig(cfg), log).Build(ctx, in.Repertoire)
	if err != nil {
		return nil, fmt.Errorf("build statistics: %w", err)
	}
	res.Build = built
	if built.Truncated {
		log.Warn().Int("requests", built.Requests).Msg("statistics build truncated, results are partial")
	}

	scored, err := merge.Merge(built.Tree, in.Repertoire.Tree(), MergeConfig(cfg, in.Side))
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	res.Tree = scored
	for _, p := range scored.Problems {
		log.Warn().Err(p).Msg("inconsistent position")
	}

	res.Report = report.Build(scored, ReportOptions(cfg, in.Names))
	res.Elapsed = time.Since(start)
	log.Info().
		Int("scored", scored.Len()).
		Int("missing", res.Report.Summary.Class(merge.Missing).Count).
		Int("overprepared", res.Report.Summary.Class(merge.Overprepared).Count).
		Dur("elapsed", res.Elapsed).
		Msg("analysis done")
	return res, nil
}

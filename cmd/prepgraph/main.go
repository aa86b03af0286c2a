// Command prepgraph scores chess repertoires against opening explorer
// statistics: which frequent positions are unprepared and which prepared
// lines are rarely reached.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/analysis"
	"github.com/freeeve/prepgraph/internal/config"
	"github.com/freeeve/prepgraph/internal/eco"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/httpapi"
	"github.com/freeeve/prepgraph/internal/logx"
	"github.com/freeeve/prepgraph/internal/report"
	"github.com/freeeve/prepgraph/internal/repertoire"
	"github.com/freeeve/prepgraph/internal/store"
)

// pathList collects a repeatable flag.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	var white, black pathList
	var (
		configPath  = flag.String("config", "", "YAML config file")
		cacheFile   = flag.String("cache", "", "explorer response cache file")
		ecoDir      = flag.String("eco-dir", "", "directory containing ECO .tsv files")
		best        = flag.Int("best", 0, "list this many missing positions (-1 = all)")
		worst       = flag.Int("worst", 0, "list this many overprepared positions (-1 = all)")
		most        = flag.Int("most", 0, "list this many positions to narrow")
		costly      = flag.Int("costly", 0, "list this many positions to reduce")
		reportJSON  = flag.String("report-json", "", "write the reports as JSON to this file")
		diffWith    = flag.String("diff", "", "compare missing positions with a previous -report-json file")
		addr        = flag.String("addr", "", "serve results over HTTP on this address after the analysis")
		printConfig = flag.Bool("print-config", false, "print the effective config and exit")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Var(&white, "white", "PGN file or directory with white repertoire lines (repeatable)")
	flag.Var(&black, "black", "PGN file or directory with black repertoire lines (repeatable)")
	flag.Parse()

	logger := logx.NewLogger(logx.Level(*verbose))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cache":
			cfg.CacheFile = *cacheFile
		case "eco-dir":
			cfg.ECODir = *ecoDir
		case "best":
			cfg.Report.Best = *best
		case "worst":
			cfg.Report.Worst = *worst
		case "most":
			cfg.Report.Most = *most
		case "costly":
			cfg.Report.Costly = *costly
		}
	})

	if *printConfig {
		b, err := cfg.YAML()
		if err != nil {
			logger.Fatal().Err(err).Msg("encode config")
		}
		_, _ = os.Stdout.Write(b)
		return
	}
	if len(white) == 0 && len(black) == 0 {
		fmt.Fprintln(os.Stderr, "usage: prepgraph -white <pgn>... | -black <pgn>... [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var names report.Namer
	if cfg.ECODir != "" {
		db := eco.NewDatabase()
		if err := db.LoadDir(cfg.ECODir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.ECODir).Msg("failed to load ECO database")
		} else {
			logger.Info().Int("openings", db.Count()).Msg("ECO database loaded")
			names = db
		}
	}

	cache := store.NewExplorerCache(analysis.NewLichess(cfg, logger))
	if cfg.CacheFile != "" {
		n, err := cache.Load(cfg.CacheFile)
		if err != nil {
			logger.Warn().Err(err).Str("file", cfg.CacheFile).Msg("ignoring unreadable cache")
		} else {
			logger.Info().Int("entries", n).Str("file", cfg.CacheFile).Msg("cache loaded")
		}
	}

	results := httpapi.NewResults()
	reports := make(map[string]*report.Report)
	for _, job := range []struct {
		color graph.Color
		paths pathList
	}{{graph.White, white}, {graph.Black, black}} {
		if len(job.paths) == 0 {
			continue
		}
		res, err := analyze(ctx, cfg, cache, job.color, job.paths, names, logger)
		if err != nil {
			logger.Error().Err(err).Stringer("side", job.color).Msg("analysis failed")
			continue
		}
		if err := report.Render(os.Stdout, res.Report); err != nil {
			logger.Fatal().Err(err).Msg("write report")
		}
		fmt.Println()
		results.Put(res)
		reports[res.SideName()] = res.Report
	}

	st := cache.Stats()
	logger.Info().Uint64("hits", st.Hits).Uint64("misses", st.Misses).Int("entries", st.Entries).Msg("explorer cache")
	if cfg.CacheFile != "" && cache.Changed() {
		if err := cache.Save(cfg.CacheFile); err != nil {
			logger.Error().Err(err).Str("file", cfg.CacheFile).Msg("save cache")
		} else {
			logger.Info().Str("file", cfg.CacheFile).Msg("cache saved")
		}
	}

	if *diffWith != "" {
		if err := printDiff(*diffWith, reports); err != nil {
			logger.Error().Err(err).Msg("diff reports")
		}
	}
	if *reportJSON != "" {
		if err := writeReports(*reportJSON, reports); err != nil {
			logger.Error().Err(err).Msg("write report json")
		}
	}

	if *addr != "" && len(reports) > 0 {
		serve(ctx, *addr, results, logger)
	}
}

func analyze(ctx context.Context, cfg config.Config, src *store.ExplorerCache, color graph.Color, paths []string, names report.Namer, logger zerolog.Logger) (*analysis.Result, error) {
	rep := repertoire.New(repertoire.Options{
		DistinctDepth: cfg.DistinctDepth,
		Logger:        logger,
	})
	sum, err := rep.LoadPGN(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("load repertoire: %w", err)
	}
	logger.Info().
		Stringer("side", color).
		Int("files", sum.Files).
		Int("games", sum.Games).
		Int("skipped", sum.Skipped).
		Msg("repertoire loaded")

	return analysis.Run(ctx, cfg, src, analysis.Input{
		Side:       &color,
		Repertoire: rep,
		Names:      names,
	}, logger)
}

func writeReports(path string, reports map[string]*report.Report) error {
	b, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func printDiff(path string, reports map[string]*report.Report) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var prev map[string]*report.Report
	if err := json.Unmarshal(b, &prev); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for side, next := range reports {
		old, ok := prev[side]
		if !ok {
			continue
		}
		fmt.Printf("## Changes in missing positions (%s) ##\n", side)
		if err := report.RenderDelta(os.Stdout, report.Diff(old, next)); err != nil {
			return err
		}
	}
	return nil
}

func serve(ctx context.Context, addr string, results *httpapi.Results, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(logger.With().Str("component", "http").Logger(), results),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Strs("sides", results.Sides()).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
}

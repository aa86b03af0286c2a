package repertoire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/prepgraph/internal/graph"
)

// LoadSummary reports what LoadPGN read.
type LoadSummary struct {
	Files   int
	Games   int
	Skipped int
}

// LoadPGN adds the mainline of every game in paths. Directories are
// expanded to the PGN files they contain (.pgn and .pgn.zst). Games that do
// not replay are logged and skipped; only unreadable files fail the load.
func (r *Repertoire) LoadPGN(ctx context.Context, paths ...string) (LoadSummary, error) {
	var sum LoadSummary
	files, err := expandPaths(paths)
	if err != nil {
		return sum, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		games, skipped, err := r.loadFile(ctx, path)
		sum.Games += games
		sum.Skipped += skipped
		if err != nil {
			return sum, fmt.Errorf("read %s: %w", path, err)
		}
		sum.Files++
	}
	return sum, nil
}

func (r *Repertoire) loadFile(ctx context.Context, path string) (games, skipped int, err error) {
	start := time.Now()
	parser := pgn.Games(path)
	base := filepath.Base(path)

	stopped := false
	i := 0
gameLoop:
	for game := range parser.Games {
		select {
		case <-ctx.Done():
			if !stopped {
				parser.Stop()
				stopped = true
			}
			break gameLoop
		default:
		}
		i++

		name := lineName(base, i, game.Tags)
		if fen := game.Tags["FEN"]; fen != "" && !isStartFEN(fen) {
			r.log.Warn().Str("line", name).Str("fen", fen).Msg("skipping game with custom start position")
			skipped++
			continue
		}
		if err := r.AddGame(name, game.Moves); err != nil {
			r.log.Warn().Err(err).Str("line", name).Msg("skipping game")
			skipped++
			continue
		}
		games++
	}

	if stopped {
		return games, skipped, ctx.Err()
	}
	if err := parser.Err(); err != nil {
		return games, skipped, err
	}

	r.log.Info().
		Str("file", base).
		Int("games", games).
		Int("skipped", skipped).
		Dur("elapsed", time.Since(start)).
		Msg("repertoire file loaded")
	return games, skipped, nil
}

func lineName(file string, i int, tags map[string]string) string {
	if ev := tags["Event"]; ev != "" && ev != "?" {
		return fmt.Sprintf("%s#%d %s", file, i, ev)
	}
	return fmt.Sprintf("%s#%d", file, i)
}

func isStartFEN(fen string) bool {
	k, err := graph.KeyFromFEN(fen)
	return err == nil && k == graph.StartKey()
}

// expandPaths replaces each directory with its PGN files, sorted by name.
func expandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && isPGNFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, filepath.Join(p, name))
		}
	}
	return out, nil
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		return filepath.Ext(strings.TrimSuffix(name, ext)) == ".pgn"
	}
	return false
}

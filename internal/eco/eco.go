// Package eco names positions after ECO (Encyclopedia of Chess Openings)
// classifications loaded from TSV files.
package eco

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/prepgraph/internal/graph"
)

// Opening is an ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

func (o Opening) String() string {
	return o.ECO + " " + o.Name
}

// Database maps positions to openings. Transposed move orders find the same
// entry. Safe for concurrent reads once loading is done.
type Database struct {
	byKey map[graph.PositionKey]Opening
	count int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byKey: make(map[graph.PositionKey]Opening),
	}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if _, err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a TSV file of eco, name and pgn columns. Rows whose moves
// do not replay are skipped. It returns the number of rows loaded.
func (db *Database) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum, loaded := 0, 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		if err := db.Add(parts[0], parts[1], parts[2]); err != nil {
			continue
		}
		loaded++
	}
	return loaded, scanner.Err()
}

// Add records the opening reached by movetext such as "1. e4 e5 2. Nf3".
// A later entry for the same position replaces the earlier one.
func (db *Database) Add(code, name, movetext string) error {
	gs := pgn.NewStartingPosition()
	cleaned := moveNumberRegex.ReplaceAllString(movetext, "")
	for _, san := range strings.Fields(cleaned) {
		if san[0] == '$' || san[0] == '{' {
			continue
		}
		san = strings.TrimRight(san, "+#!?")
		if _, err := graph.ApplySAN(gs, san); err != nil {
			return err
		}
	}
	key, err := graph.Canonicalize(gs)
	if err != nil {
		return err
	}
	if _, dup := db.byKey[key]; !dup {
		db.count++
	}
	db.byKey[key] = Opening{ECO: code, Name: name}
	return nil
}

// Lookup returns the opening for a position. Depth-distinct keys are matched
// by position alone.
func (db *Database) Lookup(key graph.PositionKey) (Opening, bool) {
	if db == nil {
		return Opening{}, false
	}
	o, ok := db.byKey[key.Base()]
	return o, ok
}

// Count returns the number of positions with an opening.
func (db *Database) Count() int {
	return db.count
}

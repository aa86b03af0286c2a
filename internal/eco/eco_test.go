package eco

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/prepgraph/internal/graph"
)

func keyAfter(t *testing.T, sans ...string) graph.PositionKey {
	t.Helper()
	gs := pgn.NewStartingPosition()
	for _, san := range sans {
		if _, err := graph.ApplySAN(gs, san); err != nil {
			t.Fatalf("ApplySAN %s: %v", san, err)
		}
	}
	k, err := graph.Canonicalize(gs)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	tsv := "eco\tname\tpgn\n" +
		"B00\tKing's Pawn Game\t1. e4\n" +
		"C50\tItalian Game\t1. e4 e5 2. Nf3 Nc6 3. Bc4\n" +
		"D37\tQueen's Gambit Declined: Three Knights\t1. d4 d5 2. c4 e6 3. Nc3 Nf6 4. Nf3\n" +
		"X99\tBroken\t1. e4 e4\n" +
		"short row\n"
	if err := os.WriteFile(filepath.Join(dir, "a.tsv"), []byte(tsv), 0o644); err != nil {
		t.Fatal(err)
	}

	db := NewDatabase()
	if err := db.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if db.Count() != 3 {
		t.Errorf("Count = %d, want 3", db.Count())
	}

	tests := []struct {
		name  string
		moves []string
		eco   string
	}{
		{"king's pawn", []string{"e4"}, "B00"},
		{"italian", []string{"e4", "e5", "Nf3", "Nc6", "Bc4"}, "C50"},
		{"qgd by transposition", []string{"Nf3", "d5", "d4", "Nf6", "c4", "e6", "Nc3"}, "D37"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, ok := db.Lookup(keyAfter(t, tt.moves...))
			if !ok {
				t.Fatal("opening not found")
			}
			if o.ECO != tt.eco {
				t.Errorf("ECO = %s, want %s", o.ECO, tt.eco)
			}
		})
	}

	if _, ok := db.Lookup(graph.StartKey()); ok {
		t.Error("start position should have no opening")
	}
	if _, ok := db.Lookup(keyAfter(t, "e4").WithDepth(1)); !ok {
		t.Error("depth-distinct key should match by position")
	}
}

func TestLoadDir_Empty(t *testing.T) {
	if err := NewDatabase().LoadDir(t.TempDir()); err == nil {
		t.Error("expected error for a directory without .tsv files")
	}
}

func TestNilDatabase(t *testing.T) {
	var db *Database
	if _, ok := db.Lookup(graph.StartKey()); ok {
		t.Error("nil database should find nothing")
	}
}

package repertoire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/tree"
)

func newRep() *Repertoire {
	return New(Options{Logger: zerolog.Nop()})
}

func uciPath(t *testing.T, moves ...string) tree.Path {
	t.Helper()
	var p tree.Path
	for _, s := range moves {
		m, err := graph.MoveFromUCI(s)
		if err != nil {
			t.Fatal(err)
		}
		p = append(p, m)
	}
	return p
}

func TestAddLine_SharesPrefix(t *testing.T) {
	r := newRep()
	if err := r.AddLine("najdorf", "e4", "c5", "Nf3", "d6"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddLine("sveshnikov", "e4", "c5", "Nf3", "Nc6"); err != nil {
		t.Fatal(err)
	}

	if got := r.Tree().Len(); got != 6 {
		t.Errorf("Len = %d, want 6", got)
	}
	nf3, ok := r.Tree().Lookup(uciPath(t, "e2e4", "c7c5", "g1f3"))
	if !ok {
		t.Fatal("missing e4 c5 Nf3")
	}
	if nf3.Payload.Terminal {
		t.Error("shared prefix should not be terminal")
	}
	if len(nf3.Payload.Lines) != 2 {
		t.Errorf("lines through Nf3 = %v", nf3.Payload.Lines)
	}
	d6, _ := nf3.Child(uciPath(t, "d7d6")[0])
	if d6 == nil || !d6.Payload.Terminal {
		t.Error("line end should be terminal")
	}
	if e, _ := nf3.Edge(uciPath(t, "b8c6")[0]); e.SAN != "Nc6" {
		t.Errorf("edge SAN = %q", e.SAN)
	}
}

func TestAddLine_IllegalMoveInsertsNothing(t *testing.T) {
	r := newRep()
	if err := r.AddLine("bad", "e4", "e5", "Ke3"); err == nil {
		t.Fatal("expected error for illegal move")
	}
	if r.Tree().Len() != 1 || r.Lines() != 0 {
		t.Errorf("Len = %d lines = %d, want untouched tree", r.Tree().Len(), r.Lines())
	}
}

func TestAddLine_ConflictInsertsNothing(t *testing.T) {
	r := newRep()
	if err := r.AddLine("open", "e4"); err != nil {
		t.Fatal(err)
	}
	e4, _ := r.Tree().Lookup(uciPath(t, "e2e4"))
	if _, _, err := r.Tree().GetOrCreateChild(e4, uciPath(t, "e7e5")[0], graph.StartKey()); err != nil {
		t.Fatal(err)
	}
	before := r.Tree().Len()

	err := r.AddLine("king pawn", "e4", "e5", "Nf3")
	var ite *tree.InconsistentTranspositionError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InconsistentTranspositionError", err)
	}
	if r.Tree().Len() != before || r.Lines() != 1 {
		t.Errorf("Len = %d lines = %d, want %d 1", r.Tree().Len(), r.Lines(), before)
	}
	if got := e4.Payload.Lines; len(got) != 1 || got[0] != "open" {
		t.Errorf("e4 lines = %v, want [open]", got)
	}
}

func TestPreparedMoves(t *testing.T) {
	r := newRep()
	for _, l := range [][]string{{"d4", "Nf6", "c4"}, {"d4", "d5", "c4"}} {
		if err := r.AddLine("", l...); err != nil {
			t.Fatal(err)
		}
	}
	got := r.PreparedMoves(uciPath(t, "d2d4"))
	if len(got) != 2 || got[0].ToUCI() != "g8f6" || got[1].ToUCI() != "d7d5" {
		t.Errorf("PreparedMoves(d4) = %v", got)
	}
	if got := r.PreparedMoves(uciPath(t, "e2e4")); got != nil {
		t.Errorf("PreparedMoves(e4) = %v, want nil", got)
	}
}

func TestStats(t *testing.T) {
	r := newRep()
	for _, l := range [][]string{
		{"e4", "e5", "Nf3"},
		{"e4", "c5", "Nf3"},
		{"e4", "c5", "Nc3"},
	} {
		if err := r.AddLine("", l...); err != nil {
			t.Fatal(err)
		}
	}
	white := graph.White
	st := r.Stats(&white)
	if st.Positions != 7 || st.Lines != 3 || st.Leaves != 3 || st.MaxDepth != 3 {
		t.Errorf("Stats = %+v", st)
	}
	// Only after 1.e4 c5 does white choose between two moves.
	if st.DecisionPoints != 1 {
		t.Errorf("DecisionPoints = %d, want 1", st.DecisionPoints)
	}
	if r.Stats(nil).DecisionPoints != 0 {
		t.Error("no side means no decision points")
	}
}

func TestLoadPGN_Directory(t *testing.T) {
	dir := t.TempDir()
	pgnText := `[Event "Najdorf"]
[White "?"]
[Black "?"]
[Result "*"]

1. e4 c5 2. Nf3 d6 *

[Event "Dragon"]
[White "?"]
[Black "?"]
[Result "*"]

1. e4 c5 2. Nf3 g6 *
`
	if err := os.WriteFile(filepath.Join(dir, "sicilian.pgn"), []byte(pgnText), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newRep()
	sum, err := r.LoadPGN(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	if sum.Files != 1 || sum.Games != 2 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if _, ok := r.Tree().Lookup(uciPath(t, "e2e4", "c7c5", "g1f3", "g7g6")); !ok {
		t.Error("dragon line missing")
	}
}

func TestLoadPGN_MissingPath(t *testing.T) {
	if _, err := newRep().LoadPGN(context.Background(), filepath.Join(t.TempDir(), "nope.pgn")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestIsPGNFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.pgn":     true,
		"a.pgn.zst": true,
		"a.zst":     false,
		"a.txt":     false,
		"pgn":       false,
	} {
		if got := isPGNFile(name); got != want {
			t.Errorf("isPGNFile(%q) = %v, want %v", name, got, want)
		}
	}
}

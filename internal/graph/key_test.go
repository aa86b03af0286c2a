package graph

import (
	"errors"
	"testing"

	"github.com/freeeve/pgn/v3"
)

func playSAN(t *testing.T, sans ...string) *pgn.GameState {
	t.Helper()
	gs := pgn.NewStartingPosition()
	for _, san := range sans {
		if _, err := ApplySAN(gs, san); err != nil {
			t.Fatalf("ApplySAN(%s): %v", san, err)
		}
	}
	return gs
}

func TestCanonicalize_Deterministic(t *testing.T) {
	gs := playSAN(t, "e4", "c5", "Nf3")
	a, err := Canonicalize(gs)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	b, err := Canonicalize(gs)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if a != b {
		t.Errorf("keys differ: %v vs %v", a, b)
	}
}

func TestCanonicalize_StartPosition(t *testing.T) {
	k, err := Canonicalize(pgn.NewStartingPosition())
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if k != StartKey() {
		t.Errorf("start key = %q, want %q", k, StartKey())
	}
	if k.SideToMove() != White {
		t.Errorf("SideToMove = %v, want white", k.SideToMove())
	}
}

func TestCanonicalize_Transposition(t *testing.T) {
	// Queen's Gambit Declined reached by two move orders.
	a, err := Canonicalize(playSAN(t, "d4", "d5", "c4", "e6", "Nc3"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonicalize(playSAN(t, "c4", "e6", "Nc3", "d5", "d4"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("transposed positions differ:\n  %v\n  %v", a, b)
	}
}

func TestKeyFromFEN_IgnoresCounters(t *testing.T) {
	a := MustKeyFromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	b := MustKeyFromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 7 42")
	c := MustKeyFromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -")
	if a != b || a != c {
		t.Errorf("counters should not matter: %v %v %v", a, b, c)
	}
	if a.SideToMove() != Black {
		t.Errorf("SideToMove = %v, want black", a.SideToMove())
	}
}

func TestKeyFromFEN_EnPassantNormalized(t *testing.T) {
	// After 1.e4 no black pawn can capture on e3.
	k := MustKeyFromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if k.ShortFEN() != "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -" {
		t.Errorf("ep square should be dropped, got %q", k.ShortFEN())
	}

	// Black pawn on d4 can take en passant on e3.
	k = MustKeyFromFEN("rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 3")
	if k.ShortFEN() != "rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3" {
		t.Errorf("ep square should be kept, got %q", k.ShortFEN())
	}
}

func TestKeyFromFEN_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"empty", ""},
		{"five fields", "8/8/8/8/8/8/8/8 w - - 0"},
		{"seven ranks", "rnbqkbnr/pppppppp/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{"short rank", "rnbqkbnr/pppppppp/8/8/7/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{"long rank", "rnbqkbnr/pppppppp/8/8/9/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{"bad piece", "rnbqkbnr/pppppppp/8/8/3X4/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{"no white king", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQQBNR w kq - 0 1"},
		{"two black kings", "rnbqkbnr/pppppppp/8/8/4k3/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{"pawn on rank 8", "Pnbqkbnr/pppppppp/8/8/8/8/1PPPPPPP/RNBQKBNR w KQkq - 0 1"},
		{"side", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1"},
		{"castling order", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w QK - 0 1"},
		{"castling letter", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkx - 0 1"},
		{"ep wrong rank", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e6 0 1"},
		{"ep garbage", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq z9 0 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyFromFEN(tt.fen)
			var ipe *InvalidPositionError
			if !errors.As(err, &ipe) {
				t.Fatalf("KeyFromFEN(%q) error = %v, want InvalidPositionError", tt.fen, err)
			}
		})
	}
}

func TestKey_WithDepth(t *testing.T) {
	k := StartKey()
	d2 := k.WithDepth(2)
	d4 := k.WithDepth(4)
	if d2 == d4 {
		t.Error("depth-distinct keys at different plies should differ")
	}
	if d2 == k {
		t.Error("depth-distinct key should differ from plain key")
	}
	if d2.Base() != k {
		t.Error("Base should drop the ply")
	}
	if ply, ok := d4.Depth(); !ok || ply != 4 {
		t.Errorf("Depth() = %d, %v; want 4, true", ply, ok)
	}
	if d4.WithDepth(4) != d4 {
		t.Error("WithDepth should be stable")
	}
}

func TestKey_GameStateRoundTrip(t *testing.T) {
	k, err := Canonicalize(playSAN(t, "Nf3", "d5", "g3"))
	if err != nil {
		t.Fatal(err)
	}
	gs, err := k.GameState()
	if err != nil {
		t.Fatalf("GameState: %v", err)
	}
	back, err := Canonicalize(gs)
	if err != nil {
		t.Fatal(err)
	}
	if back != k {
		t.Errorf("round trip: %v -> %v", k, back)
	}
}

func TestParseColor(t *testing.T) {
	for in, want := range map[string]Color{"white": White, "W": White, "black": Black, " b ": Black} {
		got, err := ParseColor(in)
		if err != nil || got != want {
			t.Errorf("ParseColor(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseColor("red"); err == nil {
		t.Error("ParseColor(red) should fail")
	}
}

func TestKey_TextRoundTrip(t *testing.T) {
	for _, k := range []PositionKey{StartKey(), StartKey().WithDepth(6)} {
		b, err := k.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back PositionKey
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if back != k {
			t.Errorf("round trip %q -> %q", k, back)
		}
	}
}

package graph

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// StartFEN is the standard game start.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color is the side to move.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// Other returns the opposite color.
func (c Color) Other() Color {
	return 1 - c
}

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	}
	return White, fmt.Errorf("unknown color %q", s)
}

// PositionKey is the canonical identity of a chess position: placement,
// side to move, castling rights and en-passant square (the first four FEN
// fields). Move counters are dropped so transpositions share a key.
//
// In depth-distinct mode the ply is part of the key too; see WithDepth.
// The zero value is not a valid key.
type PositionKey struct {
	fen      string
	depth    int
	distinct bool
}

// Canonicalize derives the key of a game state.
func Canonicalize(gs *pgn.GameState) (PositionKey, error) {
	if gs == nil {
		return PositionKey{}, invalid("", "nil game state")
	}
	return KeyFromFEN(gs.ToFEN())
}

// KeyFromFEN parses a 4- or 6-field FEN into a key.
func KeyFromFEN(fen string) (PositionKey, error) {
	fields := strings.Fields(fen)
	if len(fields) != 4 && len(fields) != 6 {
		return PositionKey{}, invalid(fen, "want 4 or 6 fields, got %d", len(fields))
	}

	board, err := parsePlacement(fen, fields[0])
	if err != nil {
		return PositionKey{}, err
	}
	if err := checkKingsAndPawns(fen, &board); err != nil {
		return PositionKey{}, err
	}

	side := fields[1]
	if side != "w" && side != "b" {
		return PositionKey{}, invalid(fen, "side to move %q", side)
	}
	if !validCastling(fields[2]) {
		return PositionKey{}, invalid(fen, "castling rights %q", fields[2])
	}
	ep, err := normalizeEnPassant(fen, &board, side, fields[3])
	if err != nil {
		return PositionKey{}, err
	}

	return PositionKey{fen: fields[0] + " " + side + " " + fields[2] + " " + ep}, nil
}

// MustKeyFromFEN is KeyFromFEN for constants and tests.
func MustKeyFromFEN(fen string) PositionKey {
	k, err := KeyFromFEN(fen)
	if err != nil {
		panic(err)
	}
	return k
}

var startKey = MustKeyFromFEN(StartFEN)

// StartKey returns the key of the standard start position.
func StartKey() PositionKey {
	return startKey
}

// WithDepth returns a copy of the key that also distinguishes the ply.
func (k PositionKey) WithDepth(ply int) PositionKey {
	return PositionKey{fen: k.fen, depth: ply, distinct: true}
}

// Base drops the ply, if any.
func (k PositionKey) Base() PositionKey {
	return PositionKey{fen: k.fen}
}

// Depth returns the ply and whether the key carries one.
func (k PositionKey) Depth() (int, bool) {
	return k.depth, k.distinct
}

// IsZero reports whether k is the zero value.
func (k PositionKey) IsZero() bool {
	return k.fen == ""
}

// SideToMove returns the color to move in the position.
func (k PositionKey) SideToMove() Color {
	if i := strings.IndexByte(k.fen, ' '); i >= 0 && i+1 < len(k.fen) && k.fen[i+1] == 'b' {
		return Black
	}
	return White
}

// FEN returns a full 6-field FEN with neutral move counters.
func (k PositionKey) FEN() string {
	return k.fen + " 0 1"
}

// ShortFEN returns the four canonical fields.
func (k PositionKey) ShortFEN() string {
	return k.fen
}

// GameState rebuilds a pgn game state for the position.
func (k PositionKey) GameState() (*pgn.GameState, error) {
	if k.IsZero() {
		return nil, invalid("", "zero key")
	}
	gs, err := pgn.NewGame(k.FEN())
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", k.fen, err)
	}
	return gs, nil
}

func (k PositionKey) String() string {
	if k.distinct {
		return fmt.Sprintf("%s @%d", k.fen, k.depth)
	}
	return k.fen
}

// parsePlacement fills a board indexed A1=0 ... H8=63.
func parsePlacement(fen, placement string) ([64]byte, error) {
	var board [64]byte
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return board, invalid(fen, "want 8 ranks, got %d", len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			switch {
			case c >= '1' && c <= '8':
				file += int(c - '0')
			case strings.IndexByte("pnbrqkPNBRQK", c) >= 0:
				if file < 8 {
					board[rank*8+file] = c
				}
				file++
			default:
				return board, invalid(fen, "unknown piece %q", c)
			}
			if file > 8 {
				return board, invalid(fen, "rank %d overflows", rank+1)
			}
		}
		if file != 8 {
			return board, invalid(fen, "rank %d has %d files", rank+1, file)
		}
	}
	return board, nil
}

func checkKingsAndPawns(fen string, board *[64]byte) error {
	var whiteKings, blackKings int
	for sq, p := range board {
		switch p {
		case 'K':
			whiteKings++
		case 'k':
			blackKings++
		case 'P', 'p':
			if sq < 8 || sq >= 56 {
				return invalid(fen, "pawn on back rank")
			}
		}
	}
	if whiteKings != 1 || blackKings != 1 {
		return invalid(fen, "kings: white=%d black=%d", whiteKings, blackKings)
	}
	return nil
}

func validCastling(s string) bool {
	if s == "-" {
		return true
	}
	if s == "" || len(s) > 4 {
		return false
	}
	// Must be an ordered subset of KQkq.
	order := "KQkq"
	pos := 0
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(order[pos:], s[i])
		if idx < 0 {
			return false
		}
		pos += idx + 1
	}
	return true
}

// normalizeEnPassant keeps the en-passant square only when a pawn of the side
// to move could capture onto it, so 1.e4 e6 2.d4 and 1.d4 e6 2.e4 share a key.
func normalizeEnPassant(fen string, board *[64]byte, side, ep string) (string, error) {
	if ep == "-" {
		return ep, nil
	}
	if len(ep) != 2 || ep[0] < 'a' || ep[0] > 'h' {
		return "", invalid(fen, "en passant %q", ep)
	}
	file := int(ep[0] - 'a')
	var pawnRank int
	var pawn byte
	switch {
	case side == "w" && ep[1] == '6':
		pawnRank, pawn = 4, 'P' // capturing white pawns stand on rank 5
	case side == "b" && ep[1] == '3':
		pawnRank, pawn = 3, 'p' // capturing black pawns stand on rank 4
	default:
		return "", invalid(fen, "en passant %q with %s to move", ep, side)
	}
	for _, df := range [2]int{-1, 1} {
		f := file + df
		if f >= 0 && f < 8 && board[pawnRank*8+f] == pawn {
			return ep, nil
		}
	}
	return "-", nil
}

// MarshalText encodes the key as its String form.
func (k PositionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a key written by MarshalText.
func (k *PositionKey) UnmarshalText(b []byte) error {
	s := string(b)
	depth, distinct := 0, false
	if i := strings.LastIndex(s, " @"); i >= 0 {
		if _, err := fmt.Sscanf(s[i+2:], "%d", &depth); err != nil {
			return fmt.Errorf("key depth in %q: %w", s, err)
		}
		s, distinct = s[:i], true
	}
	parsed, err := KeyFromFEN(s)
	if err != nil {
		return err
	}
	if distinct {
		parsed = parsed.WithDepth(depth)
	}
	*k = parsed
	return nil
}

package graph

import (
	"fmt"

	"github.com/freeeve/pgn/v3"
)

// Move is a move label: from-square, to-square and promotion packed in a
// uint32. Labels render as UCI; castling is the king's two-square move.
//
//	bits 0-5:   from square (0-63, A1=0 ... H8=63)
//	bits 6-11:  to square (0-63)
//	bits 12-14: promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N)
type Move uint32

const (
	moveFromMask   = 0x3F
	moveToMask     = 0xFC0
	movePromoMask  = 0x7000
	movePromoShift = 12
	moveToShift    = 6
)

// Promotion piece types
const (
	PromoNone   = 0
	PromoQueen  = 1
	PromoRook   = 2
	PromoBishop = 3
	PromoKnight = 4
)

// EncodeMove creates a Move from square indices and optional promotion.
// Out-of-range squares yield the zero Move.
func EncodeMove(from, to int, promo byte) Move {
	if from < 0 || from > 63 || to < 0 || to > 63 || promo > PromoKnight {
		return 0
	}
	return Move(uint32(from) | (uint32(to) << moveToShift) | (uint32(promo) << movePromoShift))
}

// DecodeMove extracts from square, to square, and promotion from a Move.
func DecodeMove(m Move) (from, to int, promo byte) {
	return m.FromSquare(), m.ToSquare(), m.Promotion()
}

func (m Move) FromSquare() int {
	return int(m & moveFromMask)
}

func (m Move) ToSquare() int {
	return int((m & moveToMask) >> moveToShift)
}

func (m Move) Promotion() byte {
	return byte((m & movePromoMask) >> movePromoShift)
}

// ToUCI converts a Move to UCI notation (e.g., "e2e4", "e7e8q").
func (m Move) ToUCI() string {
	from, to, promo := DecodeMove(m)
	uci := []byte{
		byte('a' + from%8), byte('1' + from/8),
		byte('a' + to%8), byte('1' + to/8),
	}
	if promo > 0 && promo <= PromoKnight {
		uci = append(uci, "qrbn"[promo-1])
	}
	return string(uci)
}

func (m Move) String() string {
	return m.ToUCI()
}

// MarshalText encodes the move in UCI.
func (m Move) MarshalText() ([]byte, error) {
	return []byte(m.ToUCI()), nil
}

// UnmarshalText parses a UCI move.
func (m *Move) UnmarshalText(b []byte) error {
	parsed, err := MoveFromUCI(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MoveFromUCI parses a UCI move string into a Move.
func MoveFromUCI(uci string) (Move, error) {
	if len(uci) != 4 && len(uci) != 5 {
		return 0, fmt.Errorf("bad UCI move length: %q", uci)
	}

	fromFile := int(uci[0]) - 'a'
	fromRank := int(uci[1]) - '1'
	toFile := int(uci[2]) - 'a'
	toRank := int(uci[3]) - '1'

	if fromFile < 0 || fromFile > 7 || fromRank < 0 || fromRank > 7 {
		return 0, fmt.Errorf("invalid from square in UCI: %s", uci)
	}
	if toFile < 0 || toFile > 7 || toRank < 0 || toRank > 7 {
		return 0, fmt.Errorf("invalid to square in UCI: %s", uci)
	}

	var promo byte = PromoNone
	if len(uci) == 5 {
		switch uci[4] {
		case 'q', 'Q':
			promo = PromoQueen
		case 'r', 'R':
			promo = PromoRook
		case 'b', 'B':
			promo = PromoBishop
		case 'n', 'N':
			promo = PromoKnight
		default:
			return 0, fmt.Errorf("invalid promotion piece: %c", uci[4])
		}
	}

	return EncodeMove(fromRank*8+fromFile, toRank*8+toFile, promo), nil
}

// MoveFromMv converts a pgn move played from gs into a label. A king move
// onto its own rook (explorer-style castling) is folded into the
// two-square form.
func MoveFromMv(gs *pgn.GameState, mv pgn.Mv) Move {
	from, to := int(mv.From), int(mv.To)

	if p := gs.PieceAt(mv.From); (p == 'K' || p == 'k') && from/8 == to/8 {
		switch {
		case to-from == 3:
			to = from + 2
		case from-to == 4:
			to = from - 2
		}
	}

	var promo byte
	switch mv.Promo {
	case pgn.PromoQueen:
		promo = PromoQueen
	case pgn.PromoRook:
		promo = PromoRook
	case pgn.PromoBishop:
		promo = PromoBishop
	case pgn.PromoKnight:
		promo = PromoKnight
	}
	return EncodeMove(from, to, promo)
}

// ApplySAN plays a SAN move on gs in place and returns its label.
func ApplySAN(gs *pgn.GameState, san string) (Move, error) {
	mv, err := pgn.ParseSAN(gs, san)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", san, err)
	}
	label := MoveFromMv(gs, mv)
	if err := pgn.ApplyMove(gs, mv); err != nil {
		return 0, fmt.Errorf("apply %q: %w", san, err)
	}
	return label, nil
}

// ApplyMv plays a parsed pgn move on gs in place and returns its label.
func ApplyMv(gs *pgn.GameState, mv pgn.Mv) (Move, error) {
	label := MoveFromMv(gs, mv)
	if err := pgn.ApplyMove(gs, mv); err != nil {
		return 0, fmt.Errorf("apply %s: %w", label, err)
	}
	return label, nil
}

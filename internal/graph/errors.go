package graph

import "fmt"

// InvalidPositionError reports a board state that breaks a basic chess
// invariant. It is a caller bug: full legality is checked upstream.
type InvalidPositionError struct {
	FEN    string
	Reason string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.FEN, e.Reason)
}

func invalid(fen, format string, args ...any) error {
	return &InvalidPositionError{FEN: fen, Reason: fmt.Sprintf(format, args...)}
}

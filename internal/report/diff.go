package report

import "github.com/samber/lo"

// Delta compares the Missing lists of two reports.
type Delta struct {
	// Entered were not Missing before.
	Entered []Entry `json:"entered"`
	// Left are no longer Missing, either because they were prepared or
	// because they dropped below the threshold.
	Left []Entry `json:"left"`
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Entered) == 0 && len(d.Left) == 0
}

// Diff matches lines by ID. Entered keeps the order of next and Left the
// order of prev.
func Diff(prev, next *Report) Delta {
	before := lo.KeyBy(prev.Missing, func(e Entry) string { return e.ID })
	after := lo.KeyBy(next.Missing, func(e Entry) string { return e.ID })
	return Delta{
		Entered: lo.Filter(next.Missing, func(e Entry, _ int) bool {
			_, ok := before[e.ID]
			return !ok
		}),
		Left: lo.Filter(prev.Missing, func(e Entry, _ int) bool {
			_, ok := after[e.ID]
			return !ok
		}),
	}
}

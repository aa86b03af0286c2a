package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

type section struct {
	title   string
	advice  string
	entries []Entry
	score   func(Entry) string
}

// Render writes r as plain text.
func Render(w io.Writer, r *Report) error {
	ew := &errWriter{w: w}
	s := r.Summary

	title := "Repertoire statistics"
	if r.Side != "" {
		title += " (" + r.Side + ")"
	}
	ew.printf("## %s ##\n", title)
	ew.printf("Positions scored: %s\n", humanize.Comma(int64(s.Nodes)))
	ew.printf("Prepared positions: %s\n", humanize.Comma(int64(s.PreparedPositions)))
	ew.printf("Expected plies in book: %.2f\n", s.ExpectedBookPlies)
	tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "class\tpositions\treach mass\t\n")
	for _, c := range s.Classes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", c.Class, humanize.Comma(int64(c.Count)), percent(c.Mass))
	}
	tw.Flush()
	if s.Problems > 0 {
		ew.printf("Inconsistent positions: %d\n", s.Problems)
	}

	sections := []section{
		{
			title:   "Positions you are most likely to reach out of book",
			advice:  "Adding these improves the repertoire the most",
			entries: r.Missing,
			score:   func(e Entry) string { return percent(e.Reach) },
		},
		{
			title:   "Positions you are least likely to reach with a line prepared",
			advice:  "Removing these has the least impact",
			entries: r.Overprepared,
			score:   func(e Entry) string { return percent(e.Reach) },
		},
		{
			title:   "Positions where your prepared moves are least likely to be used",
			advice:  "Consider playing fewer different moves here",
			entries: r.Narrowing,
			score:   func(e Entry) string { return fmt.Sprintf("%s/%d", percent(e.Reach), e.Prepared) },
		},
		{
			title:   "Most frequent positions with more than one move prepared",
			advice:  "Reducing your options here saves the most work",
			entries: r.Reduction,
			score:   func(e Entry) string { return fmt.Sprintf("%s x%d", percent(e.Reach), e.Prepared) },
		},
	}
	for _, sec := range sections {
		if len(sec.entries) == 0 {
			continue
		}
		ew.printf("\n## %s ##\n%s\n\n", sec.title, sec.advice)
		tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
		for _, e := range sec.entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sec.score(e), games(e.Games), e.Line, e.Opening)
		}
		tw.Flush()
	}
	return ew.err
}

// RenderDelta writes the lines that entered or left the Missing list.
func RenderDelta(w io.Writer, d Delta) error {
	ew := &errWriter{w: w}
	if d.Empty() {
		ew.printf("No change in missing positions\n")
		return ew.err
	}
	for _, e := range d.Entered {
		ew.printf("+ %s  %s  %s\n", percent(e.Reach), e.Line, e.Opening)
	}
	for _, e := range d.Left {
		ew.printf("- %s  %s  %s\n", percent(e.Reach), e.Line, e.Opening)
	}
	return ew.err
}

func percent(p float64) string {
	return fmt.Sprintf("%.3f%%", p*100)
}

func games(n uint64) string {
	if n == 0 {
		return "-"
	}
	return humanize.Comma(int64(n)) + " games"
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}

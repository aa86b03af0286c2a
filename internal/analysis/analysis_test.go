package analysis

import (
	"context"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/config"
	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/merge"
	"github.com/freeeve/prepgraph/internal/repertoire"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Epsilon = 0.1
	cfg.MinGames = 0
	cfg.Timeout = 0
	cfg.Report.Best = -1
	cfg.Report.Worst = -1
	return cfg
}

// source answers 1. e4 (61%) and 1. d4 (39%), then the Open Game.
func source(t *testing.T) *explorer.Static {
	t.Helper()
	src := explorer.NewStatic()
	set := func(line string, total uint64, moves ...explorer.Counts) {
		if err := src.SetCounts(strings.Fields(line), total, moves...); err != nil {
			t.Fatalf("SetCounts(%q): %v", line, err)
		}
	}
	set("", 1000, explorer.Counts{SAN: "e4", Games: 610}, explorer.Counts{SAN: "d4", Games: 390})
	set("e4", 610, explorer.Counts{SAN: "e5", Games: 305}, explorer.Counts{SAN: "c5", Games: 305})
	set("d4", 390, explorer.Counts{SAN: "d5", Games: 390})
	set("e4 c5", 305)
	set("e4 e5", 305, explorer.Counts{SAN: "Nf3", Games: 305})
	set("e4 e5 Nf3", 305, explorer.Counts{SAN: "Nc6", Games: 200})
	set("e4 e5 Nf3 Nc6", 200)
	return src
}

func whiteRepertoire(t *testing.T) *repertoire.Repertoire {
	t.Helper()
	rep := repertoire.New(repertoire.Options{Logger: zerolog.Nop()})
	if err := rep.AddLine("open game", "e4", "e5", "Nf3"); err != nil {
		t.Fatal(err)
	}
	return rep
}

func find(t *testing.T, res *Result, sans ...string) *merge.Node {
	t.Helper()
	n, ok := res.Tree.Find(pathOf(t, sans...))
	if !ok {
		t.Fatalf("no scored node for %v", sans)
	}
	return n
}

func TestRun(t *testing.T) {
	white := graph.White
	src := source(t)
	res, err := Run(context.Background(), testConfig(), src,
		Input{Side: &white, Repertoire: whiteRepertoire(t)}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if res.SideName() != "white" || res.Report.Side != "white" {
		t.Errorf("side = %q / %q, want white", res.SideName(), res.Report.Side)
	}
	if res.Build.Truncated {
		t.Error("build should not be truncated")
	}
	// root, e4, d4, e4 e5, e4 c5, d4 d5, Nf3, Nc6
	if res.Build.Requests != 8 || src.Calls() != 8 {
		t.Errorf("requests %d calls %d, want 8", res.Build.Requests, src.Calls())
	}
	if res.Repertoire.Lines != 1 {
		t.Errorf("lines = %d, want 1", res.Repertoire.Lines)
	}

	var missing []string
	for _, e := range res.Report.Missing {
		missing = append(missing, e.Line)
	}
	if want := []string{"1. e4 c5", "1. e4 e5 2. Nf3 Nc6"}; !slices.Equal(missing, want) {
		t.Fatalf("missing = %q, want %q", missing, want)
	}
	if r := res.Report.Missing[0].Reach; math.Abs(r-0.305) > 1e-9 {
		t.Errorf("c5 reach = %v, want 0.305", r)
	}
	if len(res.Report.Overprepared) != 0 {
		t.Errorf("overprepared = %d entries, want none", len(res.Report.Overprepared))
	}

	// The player never plays 1. d4, so neither it nor the replies to it
	// can be missing.
	for _, sans := range [][]string{{"d4"}, {"d4", "d5"}} {
		if n := find(t, res, sans...); n.Class != merge.Negligible {
			t.Errorf("%v: class %v, want negligible", sans, n.Class)
		}
	}
	if got := res.Report.Summary.Class(merge.Covered).Count; got != 4 {
		t.Errorf("covered = %d, want 4", got)
	}
}

func TestRun_Truncated(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequests = 1
	res, err := Run(context.Background(), cfg, source(t),
		Input{Repertoire: whiteRepertoire(t)}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Build.Truncated || res.Report == nil {
		t.Errorf("truncated %v report %v", res.Build.Truncated, res.Report)
	}
	if res.SideName() != "any" {
		t.Errorf("side = %q, want any", res.SideName())
	}

	// 1. e4 was never fetched, so its replies cannot be scored.
	if e5 := find(t, res, "e4", "e5"); e5.Class != merge.Unknown {
		t.Errorf("e5: class %v, want unknown", e5.Class)
	}
}

func TestRun_NilRepertoire(t *testing.T) {
	if _, err := Run(context.Background(), testConfig(), source(t), Input{}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing repertoire")
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := config.Default()
	sc := StatsConfig(cfg)
	if sc.Epsilon != cfg.Epsilon || sc.Filter.Database != "lichess" {
		t.Errorf("stats config = %+v", sc)
	}
	if !slices.Equal(sc.Filter.Speeds, cfg.Explorer.Speeds) {
		t.Errorf("speeds = %v, want %v", sc.Filter.Speeds, cfg.Explorer.Speeds)
	}

	black := graph.Black
	mc := MergeConfig(cfg, &black)
	if mc.TauHigh != cfg.TauHigh || mc.Side != &black {
		t.Errorf("merge config = %+v", mc)
	}

	ro := ReportOptions(cfg, nil)
	if ro.Best != 10 || ro.Most != 0 {
		t.Errorf("report options = %+v", ro)
	}
}

func pathOf(t *testing.T, sans ...string) []graph.Move {
	t.Helper()
	key := graph.StartKey()
	var p []graph.Move
	for _, san := range sans {
		ms, err := explorer.Stat(key, san)
		if err != nil {
			t.Fatal(err)
		}
		p = append(p, ms.Move)
		key = ms.Child
	}
	return p
}

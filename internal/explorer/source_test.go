package explorer

import (
	"context"
	"errors"
	"testing"

	"github.com/freeeve/prepgraph/internal/graph"
)

func TestFilter_FingerprintIgnoresSpeedOrder(t *testing.T) {
	a := Filter{Database: "lichess", Speeds: []string{"rapid", "blitz"}, RatingMin: 1600}
	b := Filter{Database: "lichess", Speeds: []string{"blitz", "rapid"}, RatingMin: 1600}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("speed order should not change the fingerprint")
	}
	b.RatingMin = 1800
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different ratings should change the fingerprint")
	}
	if a.Speeds[0] != "rapid" {
		t.Error("String must not reorder the caller's slice")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	if err := s.SetCounts(nil, 100, Counts{"e4", 60}, Counts{"d4", 40}); err != nil {
		t.Fatal(err)
	}
	p, err := s.Lookup(context.Background(), Request{Key: graph.StartKey()})
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalGames() != 100 || len(p.Moves) != 2 || p.Moves[0].Games() != 60 {
		t.Errorf("record = %+v", p)
	}
	e4, _ := graph.MoveFromUCI("e2e4")
	if ms, ok := p.Move(e4); !ok || ms.SAN != "e4" {
		t.Errorf("Move(e2e4) = %+v, %v", ms, ok)
	}

	// Unknown positions are empty, not errors.
	p, err = s.Lookup(context.Background(), Request{Key: p.Moves[0].Child})
	if err != nil || p.TotalGames() != 0 {
		t.Errorf("unknown key: %+v, %v", p, err)
	}

	boom := errors.New("boom")
	s.Fail(graph.StartKey(), boom)
	_, err = s.Lookup(context.Background(), Request{Key: graph.StartKey()})
	var dse *DataSourceError
	if !errors.As(err, &dse) || !errors.Is(err, boom) {
		t.Errorf("err = %v, want DataSourceError wrapping boom", err)
	}
	if s.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", s.Calls())
	}
}

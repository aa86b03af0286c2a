package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/prepgraph/internal/explorer"
	"github.com/freeeve/prepgraph/internal/graph"
)

func startRecord(t *testing.T) *explorer.Static {
	t.Helper()
	src := explorer.NewStatic()
	if err := src.SetCounts(nil, 100, explorer.Counts{SAN: "e4", Games: 60}, explorer.Counts{SAN: "d4", Games: 40}); err != nil {
		t.Fatal(err)
	}
	return src
}

func lookup(t *testing.T, c *ExplorerCache, req explorer.Request) *explorer.Position {
	t.Helper()
	p, err := c.Lookup(context.Background(), req)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return p
}

func TestExplorerCache_HitsAndMisses(t *testing.T) {
	src := startRecord(t)
	c := NewExplorerCache(src)
	req := explorer.Request{Key: graph.StartKey(), Filter: explorer.Filter{Database: "lichess"}}

	p1 := lookup(t, c, req)
	p2 := lookup(t, c, req)
	if p1 != p2 {
		t.Error("second lookup should return the cached record")
	}
	if src.Calls() != 1 {
		t.Errorf("calls = %d, want 1", src.Calls())
	}
	if st := c.Stats(); st.Hits != 1 || st.Misses != 1 || st.Entries != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss 1 entry", st)
	}
	if !c.Changed() {
		t.Error("cache should be changed after a miss")
	}

	// A different filter is a different entry.
	req.Filter.RatingMin = 2000
	lookup(t, c, req)
	if src.Calls() != 2 {
		t.Errorf("calls = %d, want 2", src.Calls())
	}
}

func TestExplorerCache_ErrorsNotCached(t *testing.T) {
	src := explorer.NewStatic()
	src.Fail(graph.StartKey(), errors.New("down"))
	c := NewExplorerCache(src)
	req := explorer.Request{Key: graph.StartKey()}

	_, err := c.Lookup(context.Background(), req)
	var dse *explorer.DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("err = %v, want DataSourceError", err)
	}
	if _, err := c.Lookup(context.Background(), req); err == nil {
		t.Fatal("second lookup: expected error")
	}
	if src.Calls() != 2 {
		t.Errorf("calls = %d, want 2", src.Calls())
	}
	if c.Stats().Entries != 0 || c.Changed() {
		t.Errorf("entries %d changed %v, want empty cache", c.Stats().Entries, c.Changed())
	}
}

func TestExplorerCache_CollapsesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	src := explorer.SourceFunc(func(ctx context.Context, req explorer.Request) (*explorer.Position, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return &explorer.Position{Draws: 7}, nil
	})
	c := NewExplorerCache(src)
	req := explorer.Request{Key: graph.StartKey()}

	var wg sync.WaitGroup
	results := make([]*explorer.Position, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Lookup(context.Background(), req)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, p := range results {
		if errs[i] != nil || p == nil {
			t.Fatalf("lookup %d: %v", i, errs[i])
		}
		if p.TotalGames() != 7 {
			t.Errorf("lookup %d: total = %d, want 7", i, p.TotalGames())
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("source calls = %d, want 1", calls)
	}
}

func TestExplorerCache_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "explorer.json.zst")
	src := startRecord(t)
	c := NewExplorerCache(src)
	filter := explorer.Filter{Database: "lichess", Speeds: []string{"blitz"}}
	req := explorer.Request{Key: graph.StartKey(), Filter: filter}
	want := lookup(t, c, req)

	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if c.Changed() {
		t.Error("cache should be clean after Save")
	}

	restored := NewExplorerCache(explorer.NewStatic())
	n, err := restored.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 || restored.Changed() {
		t.Errorf("loaded %d changed %v, want 1 clean", n, restored.Changed())
	}

	got := lookup(t, restored, req)
	if got.TotalGames() != want.TotalGames() {
		t.Errorf("total = %d, want %d", got.TotalGames(), want.TotalGames())
	}
	if len(got.Moves) != 2 {
		t.Fatalf("moves = %d, want 2", len(got.Moves))
	}
	m := got.Moves[0]
	if m.Move != want.Moves[0].Move || m.Child != want.Moves[0].Child || m.SAN != "e4" {
		t.Errorf("first move = %+v, want %+v", m, want.Moves[0])
	}
	if restored.Stats().Hits != 1 {
		t.Errorf("hits = %d, want 1", restored.Stats().Hits)
	}
}

func TestExplorerCache_LoadMissingFile(t *testing.T) {
	c := NewExplorerCache(explorer.NewStatic())
	n, err := c.Load(filepath.Join(t.TempDir(), "nope.zst"))
	if err != nil || n != 0 {
		t.Errorf("Load = %d, %v; want 0, nil", n, err)
	}
}

// Package httpapi serves analysis results as JSON.
package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/analysis"
	"github.com/freeeve/prepgraph/internal/graph"
	"github.com/freeeve/prepgraph/internal/tree"
)

// Results holds the latest analysis per side. Safe for concurrent use.
type Results struct {
	mu     sync.RWMutex
	bySide map[string]*analysis.Result
}

// NewResults creates an empty result set.
func NewResults() *Results {
	return &Results{bySide: make(map[string]*analysis.Result)}
}

// Put stores res, replacing any result for the same side.
func (s *Results) Put(res *analysis.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySide[res.SideName()] = res
}

// Get returns the result for side. An empty side matches when only one
// result is held.
func (s *Results) Get(side string) (*analysis.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if side == "" {
		if len(s.bySide) != 1 {
			return nil, false
		}
		for _, res := range s.bySide {
			return res, true
		}
	}
	res, ok := s.bySide[strings.ToLower(side)]
	return res, ok
}

// Sides lists the sides held, sorted.
func (s *Results) Sides() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sides := make([]string, 0, len(s.bySide))
	for side := range s.bySide {
		sides = append(sides, side)
	}
	sort.Strings(sides)
	return sides
}

// Handler serves the result set.
type Handler struct {
	results *Results
	log     zerolog.Logger
}

// NewRouter creates the HTTP handler.
func NewRouter(log zerolog.Logger, results *Results) http.Handler {
	h := &Handler{
		results: results,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /v1/report", h.report)
	mux.HandleFunc("GET /v1/node", h.node)

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) (*analysis.Result, bool) {
	side := r.URL.Query().Get("side")
	res, ok := h.results.Get(side)
	if !ok {
		msg := "no analysis for side " + side
		if side == "" {
			msg = "side required, one of: " + strings.Join(h.results.Sides(), ", ")
		}
		writeError(w, r, http.StatusNotFound, msg)
		return nil, false
	}
	return res, true
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	res, ok := h.result(w, r)
	if !ok {
		return
	}
	writeJSON(w, ToReportResponse(res))
}

// node looks up ?moves=e2e4,e7e5 in the scored tree.
func (h *Handler) node(w http.ResponseWriter, r *http.Request) {
	res, ok := h.result(w, r)
	if !ok {
		return
	}
	path, err := parseMoves(r.URL.Query().Get("moves"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n, ok := res.Tree.Find(path)
	if !ok {
		writeError(w, r, http.StatusNotFound, "line not in the scored tree")
		return
	}
	writeJSON(w, ToNodeResponse(n))
}

func parseMoves(s string) (tree.Path, error) {
	path := tree.Path{}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		m, err := graph.MoveFromUCI(f)
		if err != nil {
			return nil, err
		}
		path = append(path, m)
	}
	return path, nil
}

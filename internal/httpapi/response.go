package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/freeeve/prepgraph/internal/analysis"
	"github.com/freeeve/prepgraph/internal/merge"
	"github.com/freeeve/prepgraph/internal/report"
)

// ReportResponse is the body of /v1/report.
type ReportResponse struct {
	Side      string         `json:"side"`
	Truncated bool           `json:"truncated"`
	Requests  int            `json:"requests"`
	Errors    int            `json:"errors"`
	Report    *report.Report `json:"report"`
}

// NodeResponse is the body of /v1/node.
type NodeResponse struct {
	Moves        string          `json:"moves"`
	Line         string          `json:"line"`
	FEN          string          `json:"fen"`
	Ply          int             `json:"ply"`
	Reach        float64         `json:"reach"`
	UpperBound   bool            `json:"upper_bound,omitempty"`
	Class        merge.Class     `json:"class"`
	InRepertoire bool            `json:"in_repertoire"`
	Games        uint64          `json:"games"`
	TotalGames   uint64          `json:"total_games"`
	State        string          `json:"state,omitempty"`
	Error        string          `json:"error,omitempty"`
	Lines        []string        `json:"lines,omitempty"`
	Children     []ChildResponse `json:"children"`
}

// ChildResponse is one continuation of a node.
type ChildResponse struct {
	UCI          string      `json:"uci"`
	SAN          string      `json:"san,omitempty"`
	Reach        float64     `json:"reach"`
	Games        uint64      `json:"games"`
	Class        merge.Class `json:"class"`
	InRepertoire bool        `json:"in_repertoire"`
}

// ToReportResponse converts an analysis result.
func ToReportResponse(res *analysis.Result) *ReportResponse {
	resp := &ReportResponse{
		Side:   res.SideName(),
		Report: res.Report,
	}
	if res.Build != nil {
		resp.Truncated = res.Build.Truncated
		resp.Requests = res.Build.Requests
		resp.Errors = len(res.Build.Errors)
	}
	return resp
}

// ToNodeResponse converts a scored node and its children.
func ToNodeResponse(n *merge.Node) *NodeResponse {
	if n == nil {
		return nil
	}
	resp := &NodeResponse{
		Moves:        n.Path.String(),
		Line:         report.SANLine(n),
		FEN:          n.Key.FEN(),
		Ply:          n.Ply,
		Reach:        n.Reach,
		UpperBound:   n.UpperBound,
		Class:        n.Class,
		InRepertoire: n.InRepertoire(),
		Games:        n.Games,
		Children:     make([]ChildResponse, 0, len(n.Children)),
	}
	if n.Stats != nil {
		resp.TotalGames = n.Stats.TotalGames()
	}
	if n.HasStats {
		resp.State = n.StatsState.String()
	}
	if n.StatsErr != nil {
		resp.Error = n.StatsErr.Error()
	}
	if n.Rep != nil {
		resp.Lines = n.Rep.Lines
	}
	for _, c := range n.Children {
		resp.Children = append(resp.Children, ChildResponse{
			UCI:          c.Move.ToUCI(),
			SAN:          c.SAN,
			Reach:        c.Reach,
			Games:        c.Games,
			Class:        c.Class,
			InRepertoire: c.InRepertoire(),
		})
	}
	return resp
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, RequestID: GetRequestID(r.Context())})
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/issuearena/issuearena/internal/adapters/standings"
	"github.com/issuearena/issuearena/internal/domain/claim"
	"github.com/issuearena/issuearena/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Claim protocol
	Occupy(ctx context.Context, issueID, team string) claim.Result

	// Issue lifecycle
	CreateIssue(ctx context.Context, issue model.Issue) (model.Issue, error)
	GetIssue(ctx context.Context, issueID string) (model.Issue, error)
	ListIssues(ctx context.Context) ([]model.Issue, error)
	CloseIssue(ctx context.Context, issueID, team, prURL string) (model.Issue, error)
	SetPRStatus(ctx context.Context, issueID string, status model.PRStatus) (model.Issue, error)

	// Team sessions
	Login(ctx context.Context, team string) error
	Logout(ctx context.Context, team string) error

	// Read operations expose standings data.
	TopN(ctx context.Context, n int) ([]Entry, error)
	Rank(ctx context.Context, team string) (Entry, error)
}

// Entry mirrors the read shape returned by standings queries.
type Entry = standings.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	claimsHandler    *ClaimsHandler
	issuesHandler    *IssuesHandler
	standingsHandler *StandingsHandler
	rankHandler      *RankHandler
	teamsHandler     *TeamsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxStandingsLimit int) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		claimsHandler:    NewClaimsHandler(deps),
		issuesHandler:    NewIssuesHandler(deps),
		standingsHandler: NewStandingsHandler(deps, maxStandingsLimit),
		rankHandler:      NewRankHandler(deps),
		teamsHandler:     NewTeamsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/claims", MetricsMiddleware(s.claimsHandler.HandlePostClaim, "claims"))
	mux.HandleFunc("/issues", MetricsMiddleware(s.issuesHandler.HandleIssues, "issues"))
	mux.HandleFunc("/issues/", MetricsMiddleware(s.issuesHandler.HandleIssue, "issue"))
	mux.HandleFunc("/standings", MetricsMiddleware(s.standingsHandler.HandleGetStandings, "standings"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/teams/login", MetricsMiddleware(s.teamsHandler.HandleLogin, "login"))
	mux.HandleFunc("/teams/logout", MetricsMiddleware(s.teamsHandler.HandleLogout, "logout"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

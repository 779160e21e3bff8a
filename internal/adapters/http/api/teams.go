// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/issuearena/issuearena/internal/adapters/standings"
)

// TeamDependencies defines the interface for team session operations.
type TeamDependencies interface {
	Login(ctx context.Context, team string) error
	Logout(ctx context.Context, team string) error
}

// TeamsHandler handles team session requests.
type TeamsHandler struct {
	deps TeamDependencies
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(deps TeamDependencies) *TeamsHandler {
	return &TeamsHandler{deps: deps}
}

// sessionRequest mirrors the OpenAPI schema for POST /teams/login and logout.
type sessionRequest struct {
	Team string `json:"team"`
}

type sessionResponse struct {
	Status string `json:"status"`
}

// HandleLogin handles POST /teams/login requests. A team logging in for the
// first time is registered with zero points; a second live session for the
// same team is rejected.
func (h *TeamsHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	team, ok := h.decodeTeam(w, r, op)
	if !ok {
		return
	}
	if err := h.deps.Login(r.Context(), team); err != nil {
		if errors.Is(err, standings.ErrSessionActive) {
			writeError(w, http.StatusConflict, "session_active", WrapKind(op, ErrConflict, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: "logged_in"})
}

// HandleLogout handles POST /teams/logout requests.
func (h *TeamsHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	const op = "api.logout"
	team, ok := h.decodeTeam(w, r, op)
	if !ok {
		return
	}
	if err := h.deps.Logout(r.Context(), team); err != nil {
		if errors.Is(err, standings.ErrTeamNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: "logged_out"})
}

func (h *TeamsHandler) decodeTeam(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return "", false
	}
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return "", false
	}
	if strings.TrimSpace(req.Team) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return "", false
	}
	return req.Team, true
}

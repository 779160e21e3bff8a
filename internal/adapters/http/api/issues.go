// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/issuearena/issuearena/internal/adapters/store"
	service "github.com/issuearena/issuearena/internal/app"
	"github.com/issuearena/issuearena/internal/domain/model"
)

// IssueDependencies defines the interface for issue lifecycle operations.
type IssueDependencies interface {
	CreateIssue(ctx context.Context, issue model.Issue) (model.Issue, error)
	GetIssue(ctx context.Context, issueID string) (model.Issue, error)
	ListIssues(ctx context.Context) ([]model.Issue, error)
	CloseIssue(ctx context.Context, issueID, team, prURL string) (model.Issue, error)
	SetPRStatus(ctx context.Context, issueID string, status model.PRStatus) (model.Issue, error)
}

// IssuesHandler handles issue requests.
type IssuesHandler struct {
	deps IssueDependencies
}

// NewIssuesHandler creates a new issues handler.
func NewIssuesHandler(deps IssueDependencies) *IssuesHandler {
	return &IssuesHandler{deps: deps}
}

// createIssueRequest mirrors the OpenAPI schema for POST /issues.
type createIssueRequest struct {
	ID    string   `json:"id,omitempty"`
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
}

// closeIssueRequest mirrors the OpenAPI schema for POST /issues/{id}/close.
type closeIssueRequest struct {
	Team  string `json:"team"`
	PRURL string `json:"pr_url"`
}

// prStatusRequest mirrors the OpenAPI schema for POST /issues/{id}/pr-status.
type prStatusRequest struct {
	Status string `json:"status"`
}

// HandleIssues handles GET /issues and POST /issues requests.
func (h *IssuesHandler) HandleIssues(w http.ResponseWriter, r *http.Request) {
	const op = "api.issues"
	switch r.Method {
	case http.MethodGet:
		issues, err := h.deps.ListIssues(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, issues)
	case http.MethodPost:
		var req createIssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		issue, err := h.deps.CreateIssue(r.Context(), model.Issue{
			ID:    req.ID,
			Title: req.Title,
			Tags:  req.Tags,
		})
		if err != nil {
			if errors.Is(err, store.ErrExists) {
				writeError(w, http.StatusConflict, "already_exists", WrapKind(op, ErrConflict, err))
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusCreated, issue)
	default:
		http.NotFound(w, r)
	}
}

// HandleIssue handles GET /issues/{id}, POST /issues/{id}/close and
// POST /issues/{id}/pr-status requests.
func (h *IssuesHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	const op = "api.issue"
	rest := strings.TrimPrefix(r.URL.Path, "/issues/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
	case action == "close" && r.Method == http.MethodPost:
		h.handleClose(w, r, id)
	case action == "pr-status" && r.Method == http.MethodPost:
		h.handlePRStatus(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *IssuesHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.get_issue"
	issue, err := h.deps.GetIssue(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *IssuesHandler) handleClose(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.close_issue"
	var req closeIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Team) == "" || strings.TrimSpace(req.PRURL) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	issue, err := h.deps.CloseIssue(r.Context(), id, req.Team, req.PRURL)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, service.ErrNotAssignee):
			writeError(w, http.StatusForbidden, "not_assignee", err)
		case errors.Is(err, service.ErrIssueNotOccupied):
			writeError(w, http.StatusConflict, "not_occupied", WrapKind(op, ErrConflict, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *IssuesHandler) handlePRStatus(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.pr_status"
	var req prStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	issue, err := h.deps.SetPRStatus(r.Context(), id, model.PRStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPRStatus):
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, service.ErrIssueNotClosed):
			writeError(w, http.StatusConflict, "not_closed", WrapKind(op, ErrConflict, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/claim"
)

// ClaimDependencies defines the interface for claim operations.
type ClaimDependencies interface {
	Occupy(ctx context.Context, issueID, team string) claim.Result
}

// ClaimsHandler handles claim requests.
type ClaimsHandler struct {
	deps ClaimDependencies
}

// NewClaimsHandler creates a new claims handler.
func NewClaimsHandler(deps ClaimDependencies) *ClaimsHandler {
	return &ClaimsHandler{deps: deps}
}

// claimRequest mirrors the OpenAPI schema for POST /claims.
type claimRequest struct {
	IssueID string `json:"issue_id"`
	Team    string `json:"team"`
}

func (c claimRequest) validate() error {
	switch {
	case strings.TrimSpace(c.IssueID) == "":
		return errors.New("missing issue_id")
	case strings.TrimSpace(c.Team) == "":
		return errors.New("missing team")
	}
	return nil
}

type claimResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandlePostClaim handles POST /claims requests.
//
// A won claim returns 200. Terminal business rejections return 409 so the
// caller knows retrying is pointless; an exhausted retry budget returns 503
// because a later attempt may find the store healthy again.
func (h *ClaimsHandler) HandlePostClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_claim"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	result := h.deps.Occupy(r.Context(), req.IssueID, req.Team)
	if result.Success {
		writeJSON(w, http.StatusOK, claimResponse{Success: true, Message: result.Message()})
		return
	}

	status, code := classifyClaimFailure(result.Err)
	writeError(w, status, code, result.Err)
}

// classifyClaimFailure maps a claim failure to an HTTP status and error code.
func classifyClaimFailure(err error) (int, string) {
	switch {
	case errors.Is(err, claim.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, claim.ErrAlreadySelf):
		return http.StatusConflict, "already_self"
	case errors.Is(err, claim.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, claim.ErrQuotaExceeded):
		return http.StatusConflict, "quota_exceeded"
	case errors.Is(err, claim.ErrRetriesExhausted), errors.Is(err, claim.ErrTimeout):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

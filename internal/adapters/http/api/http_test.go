package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/issuearena/issuearena/internal/adapters/http/api"
	"github.com/issuearena/issuearena/internal/adapters/standings"
	"github.com/issuearena/issuearena/internal/adapters/store"
	service "github.com/issuearena/issuearena/internal/app"
	"github.com/issuearena/issuearena/internal/domain/claim"
	"github.com/issuearena/issuearena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDeps implements api.Dependencies with overridable behavior per test.
type mockDeps struct {
	occupy      func(ctx context.Context, issueID, team string) claim.Result
	createIssue func(ctx context.Context, issue model.Issue) (model.Issue, error)
	getIssue    func(ctx context.Context, issueID string) (model.Issue, error)
	listIssues  func(ctx context.Context) ([]model.Issue, error)
	closeIssue  func(ctx context.Context, issueID, team, prURL string) (model.Issue, error)
	setPRStatus func(ctx context.Context, issueID string, status model.PRStatus) (model.Issue, error)
	login       func(ctx context.Context, team string) error
	logout      func(ctx context.Context, team string) error
	topN        func(ctx context.Context, n int) ([]api.Entry, error)
	rank        func(ctx context.Context, team string) (api.Entry, error)
}

func (m *mockDeps) Occupy(ctx context.Context, issueID, team string) claim.Result {
	if m.occupy == nil {
		return claim.Result{Success: true}
	}
	return m.occupy(ctx, issueID, team)
}

func (m *mockDeps) CreateIssue(ctx context.Context, issue model.Issue) (model.Issue, error) {
	if m.createIssue == nil {
		issue.Status = model.StatusOpen
		return issue, nil
	}
	return m.createIssue(ctx, issue)
}

func (m *mockDeps) GetIssue(ctx context.Context, issueID string) (model.Issue, error) {
	if m.getIssue == nil {
		return model.Issue{ID: issueID, Status: model.StatusOpen}, nil
	}
	return m.getIssue(ctx, issueID)
}

func (m *mockDeps) ListIssues(ctx context.Context) ([]model.Issue, error) {
	if m.listIssues == nil {
		return nil, nil
	}
	return m.listIssues(ctx)
}

func (m *mockDeps) CloseIssue(ctx context.Context, issueID, team, prURL string) (model.Issue, error) {
	if m.closeIssue == nil {
		return model.Issue{ID: issueID, Status: model.StatusClosed, PRURL: prURL}, nil
	}
	return m.closeIssue(ctx, issueID, team, prURL)
}

func (m *mockDeps) SetPRStatus(ctx context.Context, issueID string, status model.PRStatus) (model.Issue, error) {
	if m.setPRStatus == nil {
		return model.Issue{ID: issueID, Status: model.StatusClosed, PRStatus: status}, nil
	}
	return m.setPRStatus(ctx, issueID, status)
}

func (m *mockDeps) Login(ctx context.Context, team string) error {
	if m.login == nil {
		return nil
	}
	return m.login(ctx, team)
}

func (m *mockDeps) Logout(ctx context.Context, team string) error {
	if m.logout == nil {
		return nil
	}
	return m.logout(ctx, team)
}

func (m *mockDeps) TopN(ctx context.Context, n int) ([]api.Entry, error) {
	if m.topN == nil {
		return nil, nil
	}
	return m.topN(ctx, n)
}

func (m *mockDeps) Rank(ctx context.Context, team string) (api.Entry, error) {
	if m.rank == nil {
		return api.Entry{Team: team}, nil
	}
	return m.rank(ctx, team)
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	server := api.NewServer(deps, mockStats{}, 100)
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errCode(rec *httptest.ResponseRecorder) string {
	var resp struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return resp.Code
}

func TestClaimsEndpoint(t *testing.T) {
	Convey("Given the claims endpoint", t, func() {
		Convey("When a claim is won", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/claims", `{"issue_id":"a","team":"team-a"}`)

			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				Success bool `json:"success"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Success, ShouldBeTrue)
		})

		Convey("When the body is malformed", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/claims", `{"issue_id":`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When required fields are missing", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/claims", `{"issue_id":"a"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the claim fails, the failure maps to a status", func() {
			cases := []struct {
				err  error
				want int
				code string
			}{
				{claim.ErrAlreadySelf, http.StatusConflict, "already_self"},
				{claim.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
				{claim.ErrQuotaExceeded, http.StatusConflict, "quota_exceeded"},
				{store.ErrNotFound, http.StatusNotFound, "not_found"},
				{claim.ErrRetriesExhausted, http.StatusServiceUnavailable, "unavailable"},
				{claim.ErrTimeout, http.StatusServiceUnavailable, "unavailable"},
			}
			for _, tc := range cases {
				failure := tc.err
				mux := newMux(&mockDeps{
					occupy: func(context.Context, string, string) claim.Result {
						return claim.Result{Err: failure}
					},
				})
				rec := do(mux, http.MethodPost, "/claims", `{"issue_id":"a","team":"team-a"}`)
				So(rec.Code, ShouldEqual, tc.want)
				So(errCode(rec), ShouldEqual, tc.code)
			}
		})

		Convey("When the method is not POST", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodGet, "/claims", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestIssuesEndpoints(t *testing.T) {
	Convey("Given the issues endpoints", t, func() {
		Convey("When creating an issue", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/issues", `{"title":"fix the build","tags":["easy"]}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)
		})

		Convey("When creating without a title", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/issues", `{"tags":["easy"]}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When creating a duplicate", func() {
			mux := newMux(&mockDeps{
				createIssue: func(context.Context, model.Issue) (model.Issue, error) {
					return model.Issue{}, store.ErrExists
				},
			})
			rec := do(mux, http.MethodPost, "/issues", `{"title":"again"}`)
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(errCode(rec), ShouldEqual, "already_exists")
		})

		Convey("When listing issues", func() {
			mux := newMux(&mockDeps{
				listIssues: func(context.Context) ([]model.Issue, error) {
					return []model.Issue{{ID: "a"}, {ID: "b"}}, nil
				},
			})
			rec := do(mux, http.MethodGet, "/issues", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var issues []model.Issue
			So(json.Unmarshal(rec.Body.Bytes(), &issues), ShouldBeNil)
			So(len(issues), ShouldEqual, 2)
		})

		Convey("When fetching one issue", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodGet, "/issues/a", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When fetching a missing issue", func() {
			mux := newMux(&mockDeps{
				getIssue: func(context.Context, string) (model.Issue, error) {
					return model.Issue{}, store.ErrNotFound
				},
			})
			rec := do(mux, http.MethodGet, "/issues/nope", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When closing an issue", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/issues/a/close", `{"team":"team-a","pr_url":"https://git.example/pr/1"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When closing without a pull request", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/issues/a/close", `{"team":"team-a"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a non-assignee closes", func() {
			mux := newMux(&mockDeps{
				closeIssue: func(context.Context, string, string, string) (model.Issue, error) {
					return model.Issue{}, service.ErrNotAssignee
				},
			})
			rec := do(mux, http.MethodPost, "/issues/a/close", `{"team":"team-b","pr_url":"https://git.example/pr/1"}`)
			So(rec.Code, ShouldEqual, http.StatusForbidden)
			So(errCode(rec), ShouldEqual, "not_assignee")
		})

		Convey("When closing an unoccupied issue", func() {
			mux := newMux(&mockDeps{
				closeIssue: func(context.Context, string, string, string) (model.Issue, error) {
					return model.Issue{}, service.ErrIssueNotOccupied
				},
			})
			rec := do(mux, http.MethodPost, "/issues/a/close", `{"team":"team-a","pr_url":"https://git.example/pr/1"}`)
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(errCode(rec), ShouldEqual, "not_occupied")
		})

		Convey("When updating the pull request status", func() {
			mux := newMux(&mockDeps{})
			rec := do(mux, http.MethodPost, "/issues/a/pr-status", `{"status":"merged"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the status value is unknown", func() {
			mux := newMux(&mockDeps{
				setPRStatus: func(context.Context, string, model.PRStatus) (model.Issue, error) {
					return model.Issue{}, service.ErrInvalidPRStatus
				},
			})
			rec := do(mux, http.MethodPost, "/issues/a/pr-status", `{"status":"bogus"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the issue is not closed yet", func() {
			mux := newMux(&mockDeps{
				setPRStatus: func(context.Context, string, model.PRStatus) (model.Issue, error) {
					return model.Issue{}, service.ErrIssueNotClosed
				},
			})
			rec := do(mux, http.MethodPost, "/issues/a/pr-status", `{"status":"merged"}`)
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(errCode(rec), ShouldEqual, "not_closed")
		})
	})
}

func TestStandingsEndpoint(t *testing.T) {
	Convey("Given the standings endpoint", t, func() {
		mux := newMux(&mockDeps{
			topN: func(_ context.Context, n int) ([]api.Entry, error) {
				entries := []api.Entry{
					{Rank: 1, Team: "alpha", Points: 40},
					{Rank: 2, Team: "bravo", Points: 25},
				}
				if n < len(entries) {
					entries = entries[:n]
				}
				return entries, nil
			},
		})

		Convey("When asking for the top teams", func() {
			rec := do(mux, http.MethodGet, "/standings?limit=2", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var entries []api.Entry
			So(json.Unmarshal(rec.Body.Bytes(), &entries), ShouldBeNil)
			So(len(entries), ShouldEqual, 2)
			So(entries[0].Team, ShouldEqual, "alpha")
		})

		Convey("When the limit is missing", func() {
			rec := do(mux, http.MethodGet, "/standings", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit is not a number", func() {
			rec := do(mux, http.MethodGet, "/standings?limit=lots", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit exceeds the cap", func() {
			rec := do(mux, http.MethodGet, "/standings?limit=1000", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(errCode(rec), ShouldEqual, "limit_exceeded")
		})
	})
}

func TestRankEndpoint(t *testing.T) {
	Convey("Given the rank endpoint", t, func() {
		Convey("When the team exists", func() {
			mux := newMux(&mockDeps{
				rank: func(_ context.Context, team string) (api.Entry, error) {
					return api.Entry{Rank: 3, Team: team, Points: 15}, nil
				},
			})
			rec := do(mux, http.MethodGet, "/rank/team-a", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var entry api.Entry
			So(json.Unmarshal(rec.Body.Bytes(), &entry), ShouldBeNil)
			So(entry.Rank, ShouldEqual, 3)
		})

		Convey("When the team is unknown", func() {
			mux := newMux(&mockDeps{
				rank: func(context.Context, string) (api.Entry, error) {
					return api.Entry{}, standings.ErrTeamNotFound
				},
			})
			rec := do(mux, http.MethodGet, "/rank/ghost", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the path has no team", func() {
			rec := do(newMux(&mockDeps{}), http.MethodGet, "/rank/", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestTeamEndpoints(t *testing.T) {
	Convey("Given the team session endpoints", t, func() {
		Convey("When a team logs in", func() {
			rec := do(newMux(&mockDeps{}), http.MethodPost, "/teams/login", `{"team":"team-a"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the session is already live", func() {
			mux := newMux(&mockDeps{
				login: func(context.Context, string) error { return standings.ErrSessionActive },
			})
			rec := do(mux, http.MethodPost, "/teams/login", `{"team":"team-a"}`)
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(errCode(rec), ShouldEqual, "session_active")
		})

		Convey("When the team name is blank", func() {
			rec := do(newMux(&mockDeps{}), http.MethodPost, "/teams/login", `{"team":"  "}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a team logs out", func() {
			rec := do(newMux(&mockDeps{}), http.MethodPost, "/teams/logout", `{"team":"team-a"}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When an unknown team logs out", func() {
			mux := newMux(&mockDeps{
				logout: func(context.Context, string) error { return standings.ErrTeamNotFound },
			})
			rec := do(mux, http.MethodPost, "/teams/logout", `{"team":"ghost"}`)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(&mockDeps{})

		Convey("When probing health", func() {
			rec := do(mux, http.MethodGet, "/healthz", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When reading stats", func() {
			rec := do(mux, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var stats map[string]interface{}
			So(json.Unmarshal(rec.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
		})
	})
}

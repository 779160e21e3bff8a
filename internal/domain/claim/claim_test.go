package claim_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/claim"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/internal/domain/quota"
	"github.com/issuearena/issuearena/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// noSleep makes retry backoff instantaneous in tests.
func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newFixture(opts ...claim.Option) (*store.MemStore, *quota.Cache, *claim.Coordinator) {
	st := store.NewMemStore()
	cache := quota.NewCache(quota.WithSweepProbability(0))
	base := []claim.Option{claim.WithSleep(noSleep)}
	c := claim.NewCoordinator(st, cache, append(base, opts...)...)
	return st, cache, c
}

func mustCreate(st *store.MemStore, id string, tags ...string) {
	issue := model.Issue{
		ID:     id,
		Title:  "issue " + id,
		Tags:   tags,
		Status: model.StatusOpen,
	}
	if err := st.Create(context.Background(), issue); err != nil {
		panic(err)
	}
}

func TestOccupy(t *testing.T) {
	Convey("Given an open issue", t, func() {
		ctx := context.Background()
		st, _, c := newFixture()
		mustCreate(st, "issue-1", "easy")

		Convey("When a team claims it", func() {
			result := c.Occupy(ctx, "issue-1", "team-a")

			Convey("Then the claim is won", func() {
				So(result.Success, ShouldBeTrue)
				So(result.Err, ShouldBeNil)
				So(result.Message(), ShouldEqual, "issue occupied")
			})

			Convey("And the issue is occupied by that team", func() {
				doc, err := st.Get(ctx, "issue-1")
				So(err, ShouldBeNil)
				So(doc.Status, ShouldEqual, model.StatusOccupied)
				So(doc.AssignedTo, ShouldEqual, "team-a")
				So(doc.OccupiedAt, ShouldNotBeNil)
			})
		})

		Convey("When the same team claims its own occupied issue", func() {
			So(c.Occupy(ctx, "issue-1", "team-a").Success, ShouldBeTrue)
			result := c.Occupy(ctx, "issue-1", "team-a")

			Convey("Then it is told the issue is already its own", func() {
				So(result.Success, ShouldBeFalse)
				So(errors.Is(result.Err, claim.ErrAlreadySelf), ShouldBeTrue)
				So(errors.Is(result.Err, claim.ErrAlreadyResolved), ShouldBeFalse)
			})
		})

		Convey("When another team claims an occupied issue", func() {
			So(c.Occupy(ctx, "issue-1", "team-a").Success, ShouldBeTrue)
			result := c.Occupy(ctx, "issue-1", "team-b")

			Convey("Then it is told the issue is taken", func() {
				So(result.Success, ShouldBeFalse)
				So(errors.Is(result.Err, claim.ErrAlreadyResolved), ShouldBeTrue)
			})
		})

		Convey("When the input is malformed", func() {
			Convey("Then a missing issue id is rejected", func() {
				result := c.Occupy(ctx, "", "team-a")
				So(errors.Is(result.Err, claim.ErrInvalidInput), ShouldBeTrue)
			})

			Convey("Then a missing team is rejected", func() {
				result := c.Occupy(ctx, "issue-1", "")
				So(errors.Is(result.Err, claim.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When the issue does not exist", func() {
			result := c.Occupy(ctx, "no-such-issue", "team-a")

			Convey("Then the claim fails terminally", func() {
				So(result.Success, ShouldBeFalse)
				So(errors.Is(result.Err, store.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestOccupyExactlyOnce(t *testing.T) {
	Convey("Given many teams racing for one issue", t, func() {
		ctx := context.Background()
		st, _, c := newFixture()
		mustCreate(st, "contested", "hard")

		const racers = 24
		results := make([]claim.Result, racers)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.Occupy(ctx, "contested", "team-"+strconv.Itoa(i))
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one claim wins", func() {
			wins := 0
			for _, r := range results {
				if r.Success {
					wins++
				} else {
					So(r.Err, ShouldNotBeNil)
				}
			}
			So(wins, ShouldEqual, 1)
		})

		Convey("And the store holds a single assignee", func() {
			doc, err := st.Get(ctx, "contested")
			So(err, ShouldBeNil)
			So(doc.Status, ShouldEqual, model.StatusOccupied)
			So(doc.AssignedTo, ShouldNotBeEmpty)
		})
	})
}

func TestOccupyQuota(t *testing.T) {
	Convey("Given a team already holding the quota limit", t, func() {
		ctx := context.Background()
		st, cache, c := newFixture(claim.WithQuotaLimit(3))
		for i := 0; i < 4; i++ {
			mustCreate(st, "issue-"+strconv.Itoa(i), "medium")
		}

		for i := 0; i < 3; i++ {
			So(c.Occupy(ctx, "issue-"+strconv.Itoa(i), "team-a").Success, ShouldBeTrue)
		}

		Convey("When it claims a fourth issue", func() {
			result := c.Occupy(ctx, "issue-3", "team-a")

			Convey("Then the claim is rejected on quota", func() {
				So(result.Success, ShouldBeFalse)
				So(errors.Is(result.Err, claim.ErrQuotaExceeded), ShouldBeTrue)
			})

			Convey("And the issue stays open", func() {
				doc, err := st.Get(ctx, "issue-3")
				So(err, ShouldBeNil)
				So(doc.Status, ShouldEqual, model.StatusOpen)
			})
		})

		Convey("When a slot is released and the cache invalidated", func() {
			_, err := st.Update(ctx, "issue-0",
				func(model.Issue) error { return nil },
				func(doc model.Issue) model.Issue {
					doc.Status = model.StatusOpen
					doc.AssignedTo = ""
					doc.OccupiedAt = nil
					return doc
				},
			)
			So(err, ShouldBeNil)
			cache.Invalidate("team-a")

			Convey("Then the team can claim again", func() {
				So(c.Occupy(ctx, "issue-3", "team-a").Success, ShouldBeTrue)
			})
		})

		Convey("And another team is unaffected", func() {
			So(c.Occupy(ctx, "issue-3", "team-b").Success, ShouldBeTrue)
		})
	})
}

func TestOccupyRetries(t *testing.T) {
	Convey("Given a store with transient failures", t, func() {
		ctx := context.Background()
		st, _, c := newFixture(claim.WithMaxRetries(3))
		mustCreate(st, "flaky", "easy")

		Convey("When the first two transactions fail", func() {
			st.FailNext(2)
			result := c.Occupy(ctx, "flaky", "team-a")

			Convey("Then the third attempt wins", func() {
				So(result.Success, ShouldBeTrue)
				doc, err := st.Get(ctx, "flaky")
				So(err, ShouldBeNil)
				So(doc.AssignedTo, ShouldEqual, "team-a")
			})
		})

		Convey("When every attempt fails", func() {
			st.FailNext(10)
			result := c.Occupy(ctx, "flaky", "team-a")

			Convey("Then the retry budget is exhausted", func() {
				So(result.Success, ShouldBeFalse)
				So(errors.Is(result.Err, claim.ErrRetriesExhausted), ShouldBeTrue)
				So(errors.Is(result.Err, store.ErrUnavailable), ShouldBeTrue)
			})

			Convey("And the issue is still claimable once the store recovers", func() {
				st.FailNext(0)
				So(c.Occupy(ctx, "flaky", "team-b").Success, ShouldBeTrue)
			})
		})
	})
}

func TestResultMessage(t *testing.T) {
	Convey("Given claim results", t, func() {
		Convey("Then failures surface their sentinel text", func() {
			r := claim.Result{Err: claim.ErrQuotaExceeded}
			So(r.Message(), ShouldEqual, claim.ErrQuotaExceeded.Error())
		})

		Convey("Then a bare failure still has a message", func() {
			r := claim.Result{}
			So(r.Message(), ShouldEqual, "claim failed")
		})
	})
}

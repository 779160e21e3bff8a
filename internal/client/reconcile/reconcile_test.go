package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/client/reconcile"
	"github.com/issuearena/issuearena/internal/domain/claim"
	"github.com/issuearena/issuearena/internal/domain/model"
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

// fakeClaimer resolves every attempt with a fixed result. The during hook
// runs while the attempt is in flight, before the result is returned.
type fakeClaimer struct {
	result claim.Result
	during func()
}

func (f *fakeClaimer) Occupy(ctx context.Context, issueID, team string) claim.Result {
	if f.during != nil {
		f.during()
	}
	return f.result
}

// fakeFeed records subscriptions and lets tests push stream errors.
type fakeFeed struct {
	mu      sync.Mutex
	watches int
	onError func(error)
}

func (f *fakeFeed) Watch(onChange func([]model.Issue, store.Origin), onError func(error)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches++
	f.onError = onError
	return func() {}
}

func (f *fakeFeed) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches
}

func (f *fakeFeed) failStream(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

func board(ids ...string) []model.Issue {
	out := make([]model.Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Issue{
			ID:     id,
			Title:  "issue " + id,
			Tags:   []string{"medium"},
			Status: model.StatusOpen,
		})
	}
	return out
}

func TestOnSnapshot(t *testing.T) {
	Convey("Given a reconciler with an empty view", t, func() {
		r := reconcile.New(&fakeClaimer{}, &fakeFeed{})

		Convey("When a server snapshot arrives", func() {
			r.OnSnapshot(board("a", "b"), store.OriginServer)

			Convey("Then the view adopts it", func() {
				issues := r.Issues()
				So(len(issues), ShouldEqual, 2)
				So(issues[0].ID, ShouldEqual, "a")
				So(issues[1].ID, ShouldEqual, "b")
				So(r.StateOf("a"), ShouldEqual, reconcile.Confirmed)
			})
		})

		Convey("When a local-cache echo arrives", func() {
			r.OnSnapshot(board("a", "b"), store.OriginServer)
			r.OnSnapshot(board("phantom"), store.OriginLocal)

			Convey("Then it is dropped", func() {
				issues := r.Issues()
				So(len(issues), ShouldEqual, 2)
				So(issues[0].ID, ShouldEqual, "a")
			})
		})

		Convey("When a later server snapshot removes an issue", func() {
			r.OnSnapshot(board("a", "b"), store.OriginServer)
			r.OnSnapshot(board("b"), store.OriginServer)

			Convey("Then the view follows the server", func() {
				issues := r.Issues()
				So(len(issues), ShouldEqual, 1)
				So(issues[0].ID, ShouldEqual, "b")
			})
		})
	})
}

func TestClaim(t *testing.T) {
	Convey("Given a reconciler seeded from the server", t, func() {
		ctx := context.Background()

		Convey("When a claim succeeds", func() {
			r := reconcile.New(&fakeClaimer{result: claim.Result{Success: true}}, &fakeFeed{})
			r.OnSnapshot(board("a", "b"), store.OriginServer)

			result := r.Claim(ctx, "a", "team-a")

			Convey("Then the optimistic mutation is kept", func() {
				So(result.Success, ShouldBeTrue)
				So(r.StateOf("a"), ShouldEqual, reconcile.Confirmed)

				issues := r.Issues()
				So(issues[0].Status, ShouldEqual, model.StatusOccupied)
				So(issues[0].AssignedTo, ShouldEqual, "team-a")
				So(issues[0].OccupiedAt, ShouldNotBeNil)
			})

			Convey("And the untouched issue is unchanged", func() {
				issues := r.Issues()
				So(issues[1].Status, ShouldEqual, model.StatusOpen)
			})
		})

		Convey("When a claim fails", func() {
			r := reconcile.New(
				&fakeClaimer{result: claim.Result{Err: claim.ErrAlreadyResolved}},
				&fakeFeed{},
			)
			r.OnSnapshot(board("a", "b"), store.OriginServer)
			before := r.Issues()

			result := r.Claim(ctx, "a", "team-a")

			Convey("Then the view is restored to the pre-attempt snapshot", func() {
				So(result.Success, ShouldBeFalse)
				So(r.Issues(), ShouldResemble, before)
				So(r.StateOf("a"), ShouldEqual, reconcile.Confirmed)
			})
		})

		Convey("When a server snapshot lands while the claim is pending", func() {
			var r *reconcile.Reconciler
			claimer := &fakeClaimer{result: claim.Result{Err: claim.ErrQuotaExceeded}}
			claimer.during = func() {
				r.OnSnapshot(board("a", "b", "c"), store.OriginServer)
			}
			r = reconcile.New(claimer, &fakeFeed{})
			r.OnSnapshot(board("a", "b"), store.OriginServer)

			result := r.Claim(ctx, "a", "team-a")

			Convey("Then the deferred snapshot wins over the rollback", func() {
				So(result.Success, ShouldBeFalse)

				issues := r.Issues()
				So(len(issues), ShouldEqual, 3)
				So(issues[2].ID, ShouldEqual, "c")
				So(issues[0].Status, ShouldEqual, model.StatusOpen)
			})
		})
	})
}

func TestRunResubscribes(t *testing.T) {
	Convey("Given a running reconciler whose feed keeps failing", t, func() {
		feed := &fakeFeed{}
		r := reconcile.New(&fakeClaimer{}, feed,
			reconcile.WithResubscribeBackoff(5*time.Millisecond),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			r.Run(ctx)
		}()

		Convey("When the stream errors", func() {
			deadline := time.Now().Add(2 * time.Second)
			for feed.watchCount() == 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			feed.failStream(errors.New("stream reset"))

			Convey("Then the subscription is re-established", func() {
				for feed.watchCount() < 2 && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
				So(feed.watchCount(), ShouldBeGreaterThanOrEqualTo, 2)

				cancel()
				select {
				case <-done:
				case <-time.After(time.Second):
					So("run did not stop", ShouldBeEmpty)
				}
			})
		})
	})
}

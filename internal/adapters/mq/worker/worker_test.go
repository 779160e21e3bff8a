package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/mq/queue"
	"github.com/issuearena/issuearena/internal/adapters/mq/worker"
	"github.com/issuearena/issuearena/internal/adapters/standings"
	"github.com/issuearena/issuearena/internal/adapters/store"
	"github.com/issuearena/issuearena/internal/domain/award"
	"github.com/issuearena/issuearena/internal/domain/model"
	"github.com/issuearena/issuearena/internal/domain/policy"
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

type fixture struct {
	st     *store.MemStore
	ledger *standings.TreapStore
	rules  *policy.Table
	guard  award.Guard
	jobs   *queue.InMemoryQueue
}

func newFixture() *fixture {
	return &fixture{
		st:     store.NewMemStore(),
		ledger: standings.NewTreapStore(),
		rules:  policy.NewTable(),
		guard:  award.NewInMemoryGuard(),
		jobs:   queue.NewInMemoryQueue(queue.WithCapacity(16)),
	}
}

// occupy seeds an occupied issue and returns the expiry job describing it.
func (f *fixture) occupy(ctx context.Context, id, team string, difficulty model.Difficulty, at time.Time) model.ExpiryJob {
	issue := model.Issue{
		ID:         id,
		Title:      "issue " + id,
		Tags:       []string{string(difficulty)},
		Status:     model.StatusOccupied,
		AssignedTo: team,
		OccupiedAt: &at,
	}
	if err := f.st.Create(ctx, issue); err != nil {
		panic(err)
	}
	return model.ExpiryJob{IssueID: id, Team: team, Difficulty: difficulty, OccupiedAt: at}
}

// runOne processes queued jobs through a single worker and stops it.
func (f *fixture) runOne(ctx context.Context) {
	w := worker.NewReleaseWorker(f.jobs, f.st, f.ledger, f.rules, f.guard)
	go w.Run(ctx)

	// Wait for the queue to drain, then stop the worker.
	deadline := time.Now().Add(2 * time.Second)
	for f.jobs.Len(ctx) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond) // let the in-flight job finish

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = w.Shutdown(shutdownCtx)
}

func TestReleaseWorker(t *testing.T) {
	Convey("Given an expired occupied issue", t, func() {
		ctx := context.Background()
		f := newFixture()
		So(f.ledger.Register(ctx, "team-a"), ShouldBeNil)
		_, err := f.ledger.AddPoints(ctx, "team-a", 50)
		So(err, ShouldBeNil)

		occupiedAt := time.Now().Add(-2 * time.Hour)
		job := f.occupy(ctx, "overdue", "team-a", model.DifficultyMedium, occupiedAt)

		Convey("When the release worker processes its job", func() {
			So(f.jobs.Enqueue(ctx, job), ShouldBeTrue)
			f.runOne(ctx)

			Convey("Then the penalty is deducted", func() {
				points, err := f.ledger.ReadPoints(ctx, "team-a")
				So(err, ShouldBeNil)
				So(points, ShouldEqual, 40) // medium penalty is 10
			})

			Convey("And the issue returns to the open pool", func() {
				doc, err := f.st.Get(ctx, "overdue")
				So(err, ShouldBeNil)
				So(doc.Status, ShouldEqual, model.StatusOpen)
				So(doc.AssignedTo, ShouldBeEmpty)
				So(doc.OccupiedAt, ShouldBeNil)
			})
		})

		Convey("When the same cycle is swept twice", func() {
			So(f.jobs.Enqueue(ctx, job), ShouldBeTrue)
			So(f.jobs.Enqueue(ctx, job), ShouldBeTrue)
			f.runOne(ctx)

			Convey("Then the penalty applies only once", func() {
				points, err := f.ledger.ReadPoints(ctx, "team-a")
				So(err, ShouldBeNil)
				So(points, ShouldEqual, 40)
			})
		})

		Convey("When the penalty exceeds the balance", func() {
			So(f.ledger.WritePoints(ctx, "team-a", 3), ShouldBeNil)
			So(f.jobs.Enqueue(ctx, job), ShouldBeTrue)
			f.runOne(ctx)

			Convey("Then points floor at zero", func() {
				points, err := f.ledger.ReadPoints(ctx, "team-a")
				So(err, ShouldBeNil)
				So(points, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an expired issue with an unrecognized difficulty tag", t, func() {
		ctx := context.Background()
		f := newFixture()
		So(f.ledger.Register(ctx, "team-a"), ShouldBeNil)
		_, err := f.ledger.AddPoints(ctx, "team-a", 20)
		So(err, ShouldBeNil)

		occupiedAt := time.Now().Add(-2 * time.Hour)
		job := f.occupy(ctx, "mislabeled", "team-a", model.Difficulty("ops"), occupiedAt)

		Convey("When the release worker processes its job", func() {
			So(f.jobs.Enqueue(ctx, job), ShouldBeTrue)
			f.runOne(ctx)

			Convey("Then the issue is released without deducting points", func() {
				points, err := f.ledger.ReadPoints(ctx, "team-a")
				So(err, ShouldBeNil)
				So(points, ShouldEqual, 20)

				doc, err := f.st.Get(ctx, "mislabeled")
				So(err, ShouldBeNil)
				So(doc.Status, ShouldEqual, model.StatusOpen)
			})
		})
	})

	Convey("Given a job from a stale assignment cycle", t, func() {
		ctx := context.Background()
		f := newFixture()
		So(f.ledger.Register(ctx, "team-a"), ShouldBeNil)
		So(f.ledger.Register(ctx, "team-b"), ShouldBeNil)
		_, err := f.ledger.AddPoints(ctx, "team-b", 30)
		So(err, ShouldBeNil)

		staleAt := time.Now().Add(-3 * time.Hour)
		staleJob := f.occupy(ctx, "reclaimed", "team-a", model.DifficultyEasy, staleAt)

		// The issue was released and re-occupied by another team since.
		freshAt := time.Now().Add(-time.Minute)
		_, err = f.st.Update(ctx, "reclaimed",
			func(model.Issue) error { return nil },
			func(doc model.Issue) model.Issue {
				doc.AssignedTo = "team-b"
				doc.OccupiedAt = &freshAt
				return doc
			},
		)
		So(err, ShouldBeNil)

		Convey("When the stale job is processed", func() {
			So(f.jobs.Enqueue(ctx, staleJob), ShouldBeTrue)
			f.runOne(ctx)

			Convey("Then the stale team is still penalized for its expired cycle", func() {
				points, err := f.ledger.ReadPoints(ctx, "team-a")
				So(err, ShouldBeNil)
				So(points, ShouldEqual, 0) // easy penalty 5, floored
			})

			Convey("But the new occupation is left untouched", func() {
				doc, err := f.st.Get(ctx, "reclaimed")
				So(err, ShouldBeNil)
				So(doc.Status, ShouldEqual, model.StatusOccupied)
				So(doc.AssignedTo, ShouldEqual, "team-b")
				So(doc.OccupiedAt.Equal(freshAt), ShouldBeTrue)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of release workers", t, func() {
		ctx := context.Background()
		f := newFixture()
		So(f.ledger.Register(ctx, "team-a"), ShouldBeNil)
		_, err := f.ledger.AddPoints(ctx, "team-a", 100)
		So(err, ShouldBeNil)

		occupiedAt := time.Now().Add(-2 * time.Hour)
		jobs := make([]model.ExpiryJob, 0, 4)
		for _, id := range []string{"a", "b", "c", "d"} {
			jobs = append(jobs, f.occupy(ctx, id, "team-a", model.DifficultyEasy, occupiedAt))
		}

		pool := worker.NewPool(2, f.jobs, f.st, f.ledger, f.rules, f.guard)
		pool.Start(ctx)

		Convey("When several jobs are enqueued", func() {
			for _, j := range jobs {
				So(f.jobs.Enqueue(ctx, j), ShouldBeTrue)
			}

			// Wait until every issue is back in the pool.
			deadline := time.After(2 * time.Second)
			for {
				open := 0
				for _, id := range []string{"a", "b", "c", "d"} {
					doc, err := f.st.Get(ctx, id)
					if err == nil && doc.Status == model.StatusOpen {
						open++
					}
				}
				if open == 4 {
					break
				}
				select {
				case <-deadline:
					t.Fatal("jobs not processed in time")
				case <-time.After(10 * time.Millisecond):
				}
			}
			pool.Stop()

			Convey("Then every expired issue was released and penalized once", func() {
				points, err := f.ledger.ReadPoints(ctx, "team-a")
				So(err, ShouldBeNil)
				So(points, ShouldEqual, 80) // 4 easy penalties of 5
			})
		})
	})
}

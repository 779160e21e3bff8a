package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/issuearena/issuearena/internal/adapters/mq/queue"
	"github.com/issuearena/issuearena/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(id string) queue.Job {
	return model.ExpiryJob{
		IssueID:    id,
		Team:       "team-a",
		Difficulty: model.DifficultyMedium,
		OccupiedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory queue", t, func() {
		ctx := context.Background()

		Convey("When enqueueing within capacity", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2))

			So(q.Enqueue(ctx, job("a")), ShouldBeTrue)
			So(q.Enqueue(ctx, job("b")), ShouldBeTrue)

			Convey("Then the length reflects the jobs", func() {
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("And a third enqueue is refused", func() {
				So(q.Enqueue(ctx, job("c")), ShouldBeFalse)
			})
		})

		Convey("When dequeueing", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			So(q.Enqueue(ctx, job("a")), ShouldBeTrue)
			So(q.Enqueue(ctx, job("b")), ShouldBeTrue)

			jobs := q.Dequeue(ctx)

			Convey("Then jobs come out in order", func() {
				first := <-jobs
				second := <-jobs
				So(first.IssueID, ShouldEqual, "a")
				So(second.IssueID, ShouldEqual, "b")
			})
		})

		Convey("When the queue is closed", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			So(q.Enqueue(ctx, job("a")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then further enqueues are refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, job("b")), ShouldBeFalse)
			})

			Convey("And the dequeue channel drains and closes", func() {
				jobs := q.Dequeue(ctx)
				j, ok := <-jobs
				So(ok, ShouldBeTrue)
				So(j.IssueID, ShouldEqual, "a")

				_, ok = <-jobs
				So(ok, ShouldBeFalse)
			})

			Convey("And closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}

func TestCycleKey(t *testing.T) {
	Convey("Given two jobs for the same issue in different cycles", t, func() {
		first := job("a")
		second := job("a")
		second.OccupiedAt = first.OccupiedAt.Add(time.Hour)

		Convey("Then their cycle keys differ", func() {
			So(first.CycleKey(), ShouldNotEqual, second.CycleKey())
		})

		Convey("And the same cycle yields the same key", func() {
			So(first.CycleKey(), ShouldEqual, job("a").CycleKey())
		})
	})
}

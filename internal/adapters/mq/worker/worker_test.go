package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/geocapture/internal/adapters/mq/queue"
	worker "github.com/okian/geocapture/internal/adapters/mq/worker"
	model "github.com/okian/geocapture/internal/domain/model"
)

type mockNotifier struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{fail: make(map[string]error)}
}

func (m *mockNotifier) Notify(_ context.Context, n queue.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[n.ID]; ok {
		return err
	}
	m.seen = append(m.seen, n.ID)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *mockNotifier) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.seen {
		if s == id {
			return true
		}
	}
	return false
}

func denial(id string) queue.Notice {
	return queue.Notice{ID: id, Kind: model.KindConsentDenied, Auxiliary: map[string]any{"code": 1}}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a notice queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		notifier := newMockNotifier()
		w := worker.NewInMemoryWorker(q, notifier, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When notices are enqueued", func() {
			q.Enqueue(ctx, denial("a"))
			q.Enqueue(ctx, denial("b"))

			convey.Convey("Then each is delivered", func() {
				convey.So(eventually(func() bool { return notifier.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When delivery fails for one notice", func() {
			notifier.mu.Lock()
			notifier.fail["bad"] = errors.New("terminal closed")
			notifier.mu.Unlock()

			q.Enqueue(ctx, denial("bad"))
			q.Enqueue(ctx, denial("good"))

			convey.Convey("Then the worker keeps going", func() {
				convey.So(eventually(func() bool { return notifier.has("good") }), convey.ShouldBeTrue)
				convey.So(notifier.has("bad"), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then it stops promptly and tolerates a second call", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of notice workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		notifier := newMockNotifier()
		pool := worker.NewPool(4, q, notifier)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx := context.Background()
		pool.Start(ctx)

		for i := 0; i < 100; i++ {
			q.Enqueue(ctx, denial(fmt.Sprintf("n%d", i)))
		}

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(ctx)

			convey.Convey("Then buffered notices are drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(notifier.count(), convey.ShouldEqual, 100)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newMockNotifier())

		convey.Convey("Then a single worker is used", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 1)
		})
	})
}

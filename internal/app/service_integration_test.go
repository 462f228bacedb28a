package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/geocapture/internal/adapters/persistence"
	service "github.com/okian/geocapture/internal/app"
	"github.com/okian/geocapture/internal/domain/aggregate"
	"github.com/okian/geocapture/internal/domain/model"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service with persistence", t, func() {
		artifact := filepath.Join(t.TempDir(), "captures.json")
		svc, _ := newStarted(t, service.WithArtifactPath(artifact))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When one coarse and one precise location are submitted", func() {
			_, err := svc.Submit(ctx, model.KindCoarseLocation,
				map[string]any{"latitude": 40.7, "longitude": -74.0, "city": "NYC"}, "198.51.100.4")
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, model.KindPreciseLocation,
				map[string]any{"latitude": 40.71, "longitude": -74.01, "accuracy": 8}, "198.51.100.4")
			So(err, ShouldBeNil)

			Convey("Then the summary counts both and the listing starts with the precise event", func() {
				So(svc.Summary(ctx), ShouldResemble, aggregate.Summary{
					Total: 2, CoarseCount: 1, PreciseCount: 1, SuccessRate: 0.5,
				})
				listing := svc.Listing(ctx, aggregate.ListOptions{})
				So(listing, ShouldHaveLength, 2)
				So(listing[0].Kind, ShouldEqual, model.KindPreciseLocation)
			})

			Convey("And the artifact holds both events in log order", func() {
				persisted, err := persistence.ReadArtifact(artifact)
				So(err, ShouldBeNil)
				So(persisted, ShouldHaveLength, 2)
				So(persisted[0].Kind, ShouldEqual, model.KindCoarseLocation)
				So(persisted[1].Kind, ShouldEqual, model.KindPreciseLocation)
				So(*persisted[1].PrecisionMeters, ShouldEqual, 8.0)
			})
		})

		Convey("When only a denial is submitted", func() {
			_, err := svc.Submit(ctx, model.KindConsentDenied,
				map[string]any{"error": "User denied Geolocation", "code": 1}, "198.51.100.4")
			So(err, ShouldBeNil)

			Convey("Then it is not counted but remains in the audit listing", func() {
				sum := svc.Summary(ctx)
				So(sum.Total, ShouldEqual, 0)
				So(sum.PreciseCount, ShouldEqual, 0)
				So(sum.DeniedCount, ShouldEqual, 1)
				So(sum.SuccessRate, ShouldEqual, 0.0)

				listing := svc.Listing(ctx, aggregate.ListOptions{})
				So(listing, ShouldHaveLength, 1)
				So(listing[0].Kind, ShouldEqual, model.KindConsentDenied)
			})
		})

		Convey("When a malformed event follows a good one", func() {
			_, err := svc.Submit(ctx, model.KindCoarseLocation,
				map[string]any{"latitude": 40.7, "longitude": -74.0}, "198.51.100.4")
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, model.KindPreciseLocation,
				map[string]any{"longitude": -74.0}, "198.51.100.4")
			So(err, ShouldNotBeNil)

			Convey("Then the log and the artifact are unchanged", func() {
				So(svc.Events(ctx), ShouldHaveLength, 1)
				persisted, err := persistence.ReadArtifact(artifact)
				So(err, ShouldBeNil)
				So(persisted, ShouldHaveLength, 1)
			})
		})
	})
}

func TestServiceConcurrency(t *testing.T) {
	Convey("Given a started service with persistence", t, func() {
		artifact := filepath.Join(t.TempDir(), "captures.json")
		svc, notices := newStarted(t,
			service.WithArtifactPath(artifact),
			service.WithNoticeWorkers(4),
			service.WithNoticeQueueSize(512),
		)
		ctx := context.Background()

		Convey("When N independent callers submit concurrently", func() {
			const n = 100
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					kind := model.KindCoarseLocation
					if i%2 == 0 {
						kind = model.KindPreciseLocation
					}
					_, err := svc.Submit(ctx, kind, map[string]any{
						"latitude":  float64(i) / 10,
						"longitude": float64(-i) / 10,
						"caller":    fmt.Sprintf("caller-%d", i),
					}, fmt.Sprintf("10.0.0.%d", i))
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}
			svc.Stop()

			Convey("Then exactly N events are appended with unique positions", func() {
				events := svc.Events(ctx)
				So(events, ShouldHaveLength, n)
				seqs := make(map[uint64]bool, n)
				ids := make(map[string]bool, n)
				for i, ev := range events {
					So(ev.Seq, ShouldEqual, uint64(i+1))
					if i > 0 {
						So(ev.ReceivedAt.Before(events[i-1].ReceivedAt), ShouldBeFalse)
					}
					seqs[ev.Seq] = true
					ids[ev.ID] = true
				}
				So(seqs, ShouldHaveLength, n)
				So(ids, ShouldHaveLength, n)
			})

			Convey("And the artifact deserializes to the same events in log order", func() {
				persisted, err := persistence.ReadArtifact(artifact)
				So(err, ShouldBeNil)
				events := svc.Events(ctx)
				So(persisted, ShouldHaveLength, n)
				for i := range persisted {
					So(persisted[i].ID, ShouldEqual, events[i].ID)
					So(persisted[i].Aux("caller"), ShouldEqual, events[i].Aux("caller"))
				}
			})

			Convey("And every accepted event produced a notice", func() {
				So(notices.count(), ShouldEqual, n)
			})

			Convey("And the summary is consistent", func() {
				sum := svc.Summary(ctx)
				So(sum.Total, ShouldEqual, sum.CoarseCount+sum.PreciseCount)
				So(sum.PreciseCount, ShouldEqual, n/2)
				So(sum.SuccessRate, ShouldEqual, 0.5)
			})
		})
	})
}

package simulate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/geocapture/internal/adapters/http/api"
	service "github.com/okian/geocapture/internal/app"
	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, model.CaptureEvent) error { return nil } //nolint:gocritic // hugeParam: test double

func newServer(t *testing.T, opts ...api.Option) (*httptest.Server, *service.Service) {
	t.Helper()
	svc := service.New(
		service.WithArtifactPath(filepath.Join(t.TempDir(), "captures.json")),
		service.WithNotifier(discardNotifier{}),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, opts...).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

// loopback trusts the simulator's forwarded subject addresses.
var loopback = api.WithTrustedProxies(netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128"))

func testConfig(baseURL string, flows int, grant float64) *Config {
	return &Config{
		BaseURL:     baseURL,
		Flows:       flows,
		Concurrency: 8,
		GrantRatio:  grant,
		Timeout:     5 * time.Second,
		Seed:        7,
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running capture server", t, func() {
		srv, svc := newServer(t, loopback, api.WithRateLimit(100, 4))
		ctx := context.Background()

		Convey("When a mixed population runs through the flow", func() {
			stats, err := Run(ctx, testConfig(srv.URL, 40, 0.5))

			Convey("Then every flow completes and the server agrees", func() {
				So(err, ShouldBeNil)
				So(stats.FlowsStarted, ShouldEqual, 40)
				So(stats.FlowsCompleted, ShouldEqual, 40)
				So(stats.FlowsCancelled, ShouldEqual, 0)
				So(stats.Granted+stats.Denied, ShouldEqual, 40)
				So(stats.CoarseAccepted, ShouldEqual, 40)
				So(stats.PreciseAccepted, ShouldEqual, stats.Granted)
				So(stats.DeniedLogged, ShouldEqual, stats.Denied)
				So(stats.SubmitFailures, ShouldEqual, 0)

				summary := svc.Summary(ctx)
				So(summary.CoarseCount, ShouldEqual, 40)
				So(summary.PreciseCount, ShouldEqual, stats.Granted)
				So(summary.DeniedCount, ShouldEqual, stats.Denied)
				So(summary.Total, ShouldEqual, 40+stats.Granted)
				So(stats.After.Total, ShouldEqual, summary.Total)
			})
		})

		Convey("When every subject grants", func() {
			stats, err := Run(ctx, testConfig(srv.URL, 10, 1))

			Convey("Then only precise outcomes are recorded", func() {
				So(err, ShouldBeNil)
				So(stats.Granted, ShouldEqual, 10)
				So(stats.Denied, ShouldEqual, 0)
				So(svc.Summary(ctx).SuccessRate, ShouldEqual, 0.5)
			})
		})

		Convey("When every subject declines", func() {
			stats, err := Run(ctx, testConfig(srv.URL, 10, 0))

			Convey("Then denials are logged but not counted as captures", func() {
				So(err, ShouldBeNil)
				So(stats.Denied, ShouldEqual, 10)
				summary := svc.Summary(ctx)
				So(summary.Total, ShouldEqual, 10)
				So(summary.DeniedCount, ShouldEqual, 10)
				So(summary.PreciseCount, ShouldEqual, 0)
			})
		})

		Convey("When flows are paced", func() {
			cfg := testConfig(srv.URL, 5, 0.5)
			cfg.RPS = 50
			cfg.Concurrency = 1
			started := time.Now()
			_, err := Run(ctx, cfg)

			Convey("Then starts are spread over time", func() {
				So(err, ShouldBeNil)
				So(time.Since(started), ShouldBeGreaterThanOrEqualTo, 60*time.Millisecond)
			})
		})
	})
}

func TestRunWithLookupProvider(t *testing.T) {
	Convey("Given a server and a failing lookup provider", t, func() {
		srv, svc := newServer(t)
		provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer provider.Close()

		cfg := testConfig(srv.URL, 6, 1)
		cfg.LookupURL = provider.URL
		stats, err := Run(context.Background(), cfg)

		Convey("Then flows still reach a precise outcome without a coarse capture", func() {
			So(err, ShouldBeNil)
			So(stats.LookupFailures, ShouldEqual, 6)
			So(stats.CoarseAccepted, ShouldEqual, 0)
			So(stats.PreciseAccepted, ShouldEqual, 6)
			So(svc.Summary(context.Background()).Total, ShouldEqual, 6)
		})
	})

	Convey("Given a lookup provider that answers", t, func() {
		srv, svc := newServer(t, loopback)
		var gotXFF []string
		provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotXFF = append(gotXFF, r.Header.Get("X-Forwarded-For"))
			_, _ = w.Write([]byte(`{"latitude":51.5,"longitude":-0.12,"city":"London","country_name":"United Kingdom","ip":"198.51.100.4","org":"Example"}`))
		}))
		defer provider.Close()

		cfg := testConfig(srv.URL, 1, 0)
		cfg.LookupURL = provider.URL
		_, err := Run(context.Background(), cfg)

		Convey("Then the subject's address is forwarded and the result captured", func() {
			So(err, ShouldBeNil)
			So(gotXFF, ShouldResemble, []string{"10.0.0.0"})
			events := svc.Events(context.Background())
			So(len(events), ShouldEqual, 2)
			kinds := map[model.Kind]string{}
			for _, e := range events {
				kinds[e.Kind] = e.OriginAddress
			}
			So(kinds, ShouldResemble, map[model.Kind]string{
				model.KindCoarseLocation: "10.0.0.0",
				model.KindConsentDenied:  "10.0.0.0",
			})
		})
	})

	Convey("Given a server that does not trust the simulator", t, func() {
		srv, svc := newServer(t)

		_, err := Run(context.Background(), testConfig(srv.URL, 2, 1))

		Convey("Then every event is recorded under the peer address", func() {
			So(err, ShouldBeNil)
			for _, e := range svc.Events(context.Background()) {
				So(e.OriginAddress, ShouldEqual, "127.0.0.1")
			}
		})
	})
}

func TestRunFailures(t *testing.T) {
	Convey("Given invalid configuration", t, func() {
		for _, cfg := range []*Config{
			{Flows: 1, Concurrency: 1},
			{BaseURL: "http://x", Flows: 0, Concurrency: 1},
			{BaseURL: "http://x", Flows: 1, Concurrency: 0},
			{BaseURL: "http://x", Flows: 1, Concurrency: 1, GrantRatio: 1.5},
			{BaseURL: "http://x", Flows: 1, Concurrency: 1, RPS: -1},
		} {
			_, err := Run(context.Background(), cfg)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		}
	})

	Convey("Given a server that is not reachable", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := Run(context.Background(), testConfig(url, 1, 1))

		Convey("Then the health check fails", func() {
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}

func TestCompare(t *testing.T) {
	Convey("Given acknowledged submissions", t, func() {
		tl := &tally{}
		tl.coarse.Add(3)
		tl.precise.Add(1)
		tl.denied.Add(2)
		before := Counts{Total: 5, CoarseCount: 4, PreciseCount: 1, DeniedCount: 0}

		Convey("Then matching deltas verify", func() {
			after := Counts{CoarseCount: 7, PreciseCount: 2, DeniedCount: 2}
			So(compare(before, after, tl), ShouldBeNil)
		})

		Convey("Then a missing capture is reported", func() {
			after := Counts{CoarseCount: 6, PreciseCount: 2, DeniedCount: 2}
			err := compare(before, after, tl)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "coarse_count")
		})
	})
}

func TestNewSubject(t *testing.T) {
	Convey("Given the same seed and index", t, func() {
		a := newSubject(42, 300, 0.5)
		b := newSubject(42, 300, 0.5)

		Convey("Then the subject is reproducible", func() {
			So(a, ShouldResemble, b)
			So(a.addr, ShouldEqual, "10.0.1.44")
			So(a.denial, ShouldBeBetweenOrEqual, 1, 3)
		})
	})

	Convey("Given the grant ratio extremes", t, func() {
		So(newSubject(1, 1, 1).grant, ShouldBeTrue)
		So(newSubject(1, 1, 0).grant, ShouldBeFalse)
	})
}

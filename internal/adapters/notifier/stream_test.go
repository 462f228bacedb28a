package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/geocapture/internal/domain/model"
)

type fakeStream struct {
	added []*redis.XAddArgs
	err   error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1-0", nil)
}

func TestStreamNotifier(t *testing.T) {
	acc := 6.5
	ev := model.CaptureEvent{
		ID: "e2", Seq: 7, Kind: model.KindPreciseLocation,
		Coordinates:     &model.Coordinates{Latitude: 38.72, Longitude: -9.14},
		PrecisionMeters: &acc,
		Auxiliary:       map[string]any{"userAgent": "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0"},
		OriginAddress:   "203.0.113.9",
		ReceivedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	Convey("Given a stream notifier on a fake client", t, func() {
		fake := &fakeStream{}
		n := NewStreamNotifier(fake, WithStream("captures"), WithStreamMaxLen(50))

		Convey("When an event is announced", func() {
			err := n.Notify(context.Background(), ev)

			Convey("Then one capped entry is added with the rendered event", func() {
				So(err, ShouldBeNil)
				So(len(fake.added), ShouldEqual, 1)
				args := fake.added[0]
				So(args.Stream, ShouldEqual, "captures")
				So(args.MaxLen, ShouldEqual, int64(50))
				So(args.Approx, ShouldBeTrue)

				values, ok := args.Values.(map[string]interface{})
				So(ok, ShouldBeTrue)
				So(values["kind"], ShouldEqual, "precise_location")
				So(values["seq"], ShouldEqual, uint64(7))

				var entry map[string]any
				So(json.Unmarshal(values["payload"].([]byte), &entry), ShouldBeNil)
				So(entry["origin_address"], ShouldEqual, "203.0.113.9")
				So(entry["map_url"], ShouldContainSubstring, "38.72")
			})
		})

		Convey("When the server refuses the entry", func() {
			fake.err = errors.New("READONLY")
			err := n.Notify(context.Background(), ev)

			Convey("Then the error names the stream", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "captures")
			})
		})
	})

	Convey("Given defaults", t, func() {
		n := NewStreamNotifier(&fakeStream{}, WithStream(""), WithStreamMaxLen(0))
		So(n.stream, ShouldEqual, DefaultStream)
		So(n.maxLen, ShouldEqual, int64(defaultStreamMaxLen))
	})

	Convey("Given an invalid redis URL", t, func() {
		_, err := DialRedis(context.Background(), "not a url")
		So(err, ShouldNotBeNil)
	})
}

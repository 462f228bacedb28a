package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/geocapture/internal/domain/model"
)

func TestClientSubmit(t *testing.T) {
	Convey("Given an ingestion server", t, func() {
		var (
			gotPath string
			gotBody map[string]any
			gotXFF  string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotXFF = r.Header.Get("X-Forwarded-For")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			if gotPath == PathDenied {
				_, _ = w.Write([]byte(`{"status":"logged"}`))
				return
			}
			if gotBody["latitude"] == nil {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"malformed_event","message":"latitude missing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL+"/", WithForwardedFor("203.0.113.7"))

		Convey("When a precise payload is submitted", func() {
			ack, err := c.SubmitAck(context.Background(), model.KindPreciseLocation, map[string]any{"latitude": 1.0, "longitude": 2.0})

			Convey("Then it reaches the precise endpoint", func() {
				So(err, ShouldBeNil)
				So(ack.Status, ShouldEqual, "success")
				So(gotPath, ShouldEqual, PathPrecise)
				So(gotXFF, ShouldEqual, "203.0.113.7")
			})
		})

		Convey("When a denial is submitted", func() {
			ack, err := c.SubmitAck(context.Background(), model.KindConsentDenied, map[string]any{"error": "denied", "code": 1})

			Convey("Then it is logged", func() {
				So(err, ShouldBeNil)
				So(ack.Status, ShouldEqual, "logged")
				So(gotPath, ShouldEqual, PathDenied)
			})
		})

		Convey("When the server rejects the payload", func() {
			err := c.Submit(context.Background(), model.KindCoarseLocation, map[string]any{"city": "NYC"})

			Convey("Then ErrRejected carries the status", func() {
				So(errors.Is(err, ErrRejected), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "400")
			})
		})

		Convey("When the kind is unknown", func() {
			err := c.Submit(context.Background(), model.KindUnknown, map[string]any{})

			Convey("Then nothing is sent", func() {
				So(err, ShouldNotBeNil)
				So(gotPath, ShouldBeEmpty)
			})
		})
	})
}

package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/geocapture/internal/domain/acquisition"
)

func TestClientLookup(t *testing.T) {
	Convey("Given a provider returning a full response", t, func() {
		var forwarded string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded = r.Header.Get("X-Forwarded-For")
			_, _ = w.Write([]byte(`{"ip":"198.51.100.4","city":"NYC","region":"New York","country_name":"United States","postal":"10001","latitude":40.7,"longitude":-74.0,"timezone":"America/New_York","org":"Example ISP"}`))
		}))
		defer srv.Close()

		res, err := NewClient(srv.URL, WithForwardedFor("198.51.100.4")).Lookup(context.Background())

		Convey("Then the contract fields are mapped", func() {
			So(err, ShouldBeNil)
			So(res.Latitude, ShouldEqual, 40.7)
			So(res.Longitude, ShouldEqual, -74.0)
			So(res.CountryName, ShouldEqual, "United States")
			So(res.Org, ShouldEqual, "Example ISP")
			So(forwarded, ShouldEqual, "198.51.100.4")
		})
	})

	Convey("Given a provider reporting an error body", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Lookup(context.Background())

		Convey("Then the lookup is unavailable", func() {
			So(errors.Is(err, acquisition.ErrLookupUnavailable), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "RateLimited")
		})
	})

	Convey("Given a response without coordinates", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"city":"NYC"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Lookup(context.Background())

		Convey("Then the lookup is unavailable", func() {
			So(errors.Is(err, acquisition.ErrLookupUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a failing provider", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Lookup(context.Background())

		Convey("Then the status is reported", func() {
			So(errors.Is(err, acquisition.ErrLookupUnavailable), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "502")
		})
	})
}

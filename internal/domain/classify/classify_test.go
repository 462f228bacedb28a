package classify

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/geocapture/internal/domain/model"
)

func decode(s string) map[string]any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		panic(err)
	}
	return m
}

func TestClassifyCoarse(t *testing.T) {
	Convey("Given a coarse lookup payload", t, func() {
		payload := decode(`{"type":"ip_geolocation","latitude":40.7,"longitude":-74.0,"city":"NYC","isp":"Example ISP","timestamp":"2026-01-01T00:00:00Z"}`)

		Convey("When classified for the coarse kind", func() {
			ev, err := Classify(model.KindCoarseLocation, payload, "198.51.100.4")

			Convey("Then coordinates are extracted and fields kept verbatim", func() {
				So(err, ShouldBeNil)
				So(ev.Kind, ShouldEqual, model.KindCoarseLocation)
				So(ev.Coordinates, ShouldResemble, &model.Coordinates{Latitude: 40.7, Longitude: -74.0})
				So(ev.PrecisionMeters, ShouldBeNil)
				So(ev.OriginAddress, ShouldEqual, "198.51.100.4")
				So(ev.Aux("city"), ShouldEqual, "NYC")
				So(ev.Aux("timestamp"), ShouldEqual, "2026-01-01T00:00:00Z")
			})

			Convey("Then the event does not alias the payload", func() {
				So(err, ShouldBeNil)
				payload["city"] = "changed"
				So(ev.Aux("city"), ShouldEqual, "NYC")
			})
		})

		Convey("When latitude is missing", func() {
			delete(payload, FieldLatitude)
			_, err := Classify(model.KindCoarseLocation, payload, "")

			Convey("Then the payload is malformed", func() {
				So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
				var me *MalformedError
				So(errors.As(err, &me), ShouldBeTrue)
				So(me.Field, ShouldEqual, FieldLatitude)
			})
		})

		Convey("When longitude is a string", func() {
			payload[FieldLongitude] = "-74.0"
			_, err := Classify(model.KindCoarseLocation, payload, "")

			Convey("Then the payload is malformed", func() {
				So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
			})
		})

		Convey("When latitude is out of range", func() {
			payload[FieldLatitude] = 91.0
			_, err := Classify(model.KindCoarseLocation, payload, "")

			Convey("Then the payload is malformed", func() {
				So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "out of range")
			})
		})

		Convey("When submitted to the precise kind", func() {
			_, err := Classify(model.KindPreciseLocation, payload, "")

			Convey("Then the conflicting discriminator is rejected", func() {
				So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "conflicts")
			})
		})
	})
}

func TestClassifyPrecise(t *testing.T) {
	Convey("Given a precise payload with correlation context", t, func() {
		payload := decode(`{"latitude":40.71,"longitude":-74.01,"accuracy":8,"altitude":null,"speed":1.2,"ipData":{"city":"NYC","ip":"198.51.100.4"}}`)

		Convey("When classified", func() {
			ev, err := Classify(model.KindPreciseLocation, payload, "198.51.100.4")

			Convey("Then precision and correlation are populated", func() {
				So(err, ShouldBeNil)
				So(ev.PrecisionMeters, ShouldNotBeNil)
				So(*ev.PrecisionMeters, ShouldEqual, 8.0)
				corr, ok := ev.Aux(AuxCorrelatedCoarse).(map[string]any)
				So(ok, ShouldBeTrue)
				So(corr["city"], ShouldEqual, "NYC")
				So(ev.Auxiliary, ShouldContainKey, "altitude")
			})
		})

		Convey("When accuracy is negative", func() {
			payload[FieldAccuracy] = -1.0
			_, err := Classify(model.KindPreciseLocation, payload, "")

			Convey("Then the payload is malformed", func() {
				So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
			})
		})

		Convey("When accuracy is absent", func() {
			delete(payload, FieldAccuracy)
			ev, err := Classify(model.KindPreciseLocation, payload, "")

			Convey("Then precision is left unset", func() {
				So(err, ShouldBeNil)
				So(ev.PrecisionMeters, ShouldBeNil)
			})
		})
	})
}

func TestClassifyDenied(t *testing.T) {
	Convey("Given a denial payload", t, func() {
		payload := decode(`{"error":"User denied Geolocation","code":1,"timestamp":"2026-01-01T00:00:00Z"}`)

		Convey("When classified", func() {
			ev, err := Classify(model.KindConsentDenied, payload, "203.0.113.9")

			Convey("Then no coordinates are attached", func() {
				So(err, ShouldBeNil)
				So(ev.Coordinates, ShouldBeNil)
				So(ev.Aux(FieldError), ShouldEqual, "User denied Geolocation")
				So(ev.Counted(), ShouldBeFalse)
			})
		})

		Convey("When neither error nor code is present", func() {
			_, err := Classify(model.KindConsentDenied, map[string]any{"timestamp": "x"}, "")

			Convey("Then the payload is malformed", func() {
				So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
			})
		})
	})
}

func TestKindOf(t *testing.T) {
	Convey("Given payloads with and without a discriminator", t, func() {
		Convey("Then known discriminators resolve", func() {
			k, err := KindOf(map[string]any{"type": "gps_precise"})
			So(err, ShouldBeNil)
			So(k, ShouldEqual, model.KindPreciseLocation)
		})

		Convey("Then a missing discriminator is malformed", func() {
			_, err := KindOf(map[string]any{"latitude": 1.0})
			So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
		})

		Convey("Then a non-string discriminator is malformed", func() {
			_, err := KindOf(map[string]any{"type": 3.0})
			So(errors.Is(err, ErrMalformedEvent), ShouldBeTrue)
		})
	})
}

func TestNumber(t *testing.T) {
	Convey("Given decoded JSON values", t, func() {
		f, ok := Number(json.Number("8.5"))
		So(ok, ShouldBeTrue)
		So(f, ShouldEqual, 8.5)

		_, ok = Number("8.5")
		So(ok, ShouldBeFalse)

		_, ok = Number(json.Number("abc"))
		So(ok, ShouldBeFalse)
	})
}

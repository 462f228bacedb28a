package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"github.com/okian/geocapture/internal/domain/classify"
	"github.com/okian/geocapture/internal/domain/model"
)

// CoarseCaveat qualifies every network-derived position.
const CoarseCaveat = "City-level (~10-50km)"

const (
	unknownValue  = "Unknown"
	unknownDevice = "Unknown Device"
	mapsBaseURL   = "https://www.google.com/maps"
)

// Detail is one labelled line of a rendered entry.
type Detail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Entry is a capture event rendered for display.
type Entry struct {
	Seq             uint64             `json:"seq"`
	Kind            model.Kind         `json:"kind"`
	Title           string             `json:"title"`
	ReceivedAt      time.Time          `json:"received_at"`
	OriginAddress   string             `json:"origin_address"`
	Coordinates     *model.Coordinates `json:"coordinates,omitempty"`
	PrecisionMeters *float64           `json:"precision_meters,omitempty"`
	MapURL          string             `json:"map_url,omitempty"`
	Caveat          string             `json:"caveat,omitempty"`
	Device          string             `json:"device"`
	Details         []Detail           `json:"details"`
	Auxiliary       map[string]any     `json:"auxiliary,omitempty"`
}

// ListOptions narrows a listing. Zero values mean no limit and all kinds.
type ListOptions struct {
	Limit int
	Kind  model.Kind
	// IncludeAuxiliary attaches the raw client fields to each entry.
	IncludeAuxiliary bool
}

// Listing renders events most recent first.
func Listing(events []model.CaptureEvent, opts ListOptions) []Entry {
	out := make([]Entry, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		ev := &events[i]
		if opts.Kind != model.KindUnknown && ev.Kind != opts.Kind {
			continue
		}
		out = append(out, render(ev, opts.IncludeAuxiliary))
	}
	return out
}

func render(ev *model.CaptureEvent, withAux bool) Entry {
	e := Entry{
		Seq:             ev.Seq,
		Kind:            ev.Kind,
		ReceivedAt:      ev.ReceivedAt,
		OriginAddress:   ev.OriginAddress,
		Coordinates:     ev.Coordinates,
		PrecisionMeters: ev.PrecisionMeters,
		Device:          DeviceSummary(stringAux(ev, "userAgent")),
	}
	if withAux {
		e.Auxiliary = ev.Auxiliary
	}
	if ev.Coordinates != nil {
		e.MapURL = MapURL(*ev.Coordinates)
	}

	switch ev.Kind {
	case model.KindPreciseLocation:
		e.Title = "Precise location"
		e.Details = []Detail{
			{Label: "Precision", Value: precision(ev.PrecisionMeters)},
			{Label: "Altitude", Value: measure(ev.Aux("altitude"), "m")},
			{Label: "Speed", Value: measure(ev.Aux("speed"), "m/s")},
			{Label: "Heading", Value: measure(ev.Aux("heading"), "°")},
		}
	case model.KindCoarseLocation:
		e.Title = "Coarse location"
		e.Caveat = CoarseCaveat
		e.Details = []Detail{
			{Label: "City", Value: text(ev.Aux("city"))},
			{Label: "Region", Value: text(ev.Aux("region"))},
			{Label: "Country", Value: text(ev.Aux("country"))},
			{Label: "ISP", Value: text(ev.Aux("isp"))},
			{Label: "Postal", Value: text(ev.Aux("postal"))},
			{Label: "Accuracy", Value: CoarseCaveat},
		}
	case model.KindConsentDenied:
		e.Title = "Consent denied"
		e.Details = []Detail{
			{Label: "Reason", Value: text(ev.Aux(classify.FieldError))},
			{Label: "Code", Value: text(ev.Aux(classify.FieldCode))},
		}
	}

	if e.Device == unknownDevice {
		if p := stringAux(ev, "platform"); p != "" {
			e.Device = p
		}
	}
	return e
}

// MapURL links a coordinate pair to a map search.
func MapURL(c model.Coordinates) string {
	q := strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
	return mapsBaseURL + "?q=" + q
}

// DeviceSummary renders a user agent as "Browser version on OS".
func DeviceSummary(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return unknownDevice
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		name, _ := parsed.Browser()
		return strings.TrimSpace("Bot " + name)
	}

	browser, version := parsed.Browser()
	if browser == "" {
		browser = "Unknown browser"
	}
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}

	osName := parsed.OSInfo().Name
	if osName == "" {
		osName = parsed.Platform()
	}
	if osName == "" {
		osName = "unknown OS"
	}

	out := strings.TrimSpace(browser + " " + version)
	out += " on " + osName
	if parsed.Mobile() {
		out += " (mobile)"
	}
	return out
}

func precision(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("±%.0fm", *p)
}

func measure(v any, unit string) string {
	n, ok := classify.Number(v)
	if !ok {
		return "N/A"
	}
	if unit == "°" {
		return fmt.Sprintf("%.0f°", n)
	}
	return fmt.Sprintf("%.1f %s", n, unit)
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return unknownValue
	case string:
		if strings.TrimSpace(t) == "" {
			return unknownValue
		}
		return t
	}
	if n, ok := classify.Number(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func stringAux(ev *model.CaptureEvent, key string) string {
	s, _ := ev.Aux(key).(string)
	return s
}

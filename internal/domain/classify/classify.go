// Package classify turns raw client payloads into capture events.
//
// Classification is pure: it validates the fields required for a kind and
// copies every client-supplied field into the event's auxiliary mapping.
// Server-side stamping (ID, sequence, receive time) happens at append.
package classify

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/okian/geocapture/internal/domain/model"
)

// Payload keys with meaning to the classifier.
const (
	FieldType      = "type"
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldAccuracy  = "accuracy"
	FieldError     = "error"
	FieldCode      = "code"
	FieldIPData    = "ipData"

	// AuxCorrelatedCoarse holds the coarse lookup a precise payload carried.
	AuxCorrelatedCoarse = "correlated_coarse"
)

// KindOf reads the payload discriminator. A missing or unknown discriminator
// is malformed.
func KindOf(payload map[string]any) (model.Kind, error) {
	raw, ok := payload[FieldType]
	if !ok || raw == nil {
		return model.KindUnknown, malformed(model.KindUnknown, FieldType, "missing discriminator")
	}
	s, ok := raw.(string)
	if !ok {
		return model.KindUnknown, malformed(model.KindUnknown, FieldType, "discriminator must be a string")
	}
	k, err := model.ParseKind(strings.TrimSpace(s))
	if err != nil {
		return model.KindUnknown, malformed(model.KindUnknown, FieldType, err.Error())
	}
	return k, nil
}

// Classify validates payload as an event of the given kind and builds the
// unstamped event. A "type" field, when present, must agree with kind.
func Classify(kind model.Kind, payload map[string]any, origin string) (model.CaptureEvent, error) {
	if !kind.Valid() {
		return model.CaptureEvent{}, malformed(kind, FieldType, "unknown kind")
	}
	if payload == nil {
		return model.CaptureEvent{}, malformed(kind, "", "empty payload")
	}
	if _, present := payload[FieldType]; present {
		declared, err := KindOf(payload)
		if err != nil {
			return model.CaptureEvent{}, malformed(kind, FieldType, "unrecognised discriminator")
		}
		if declared != kind {
			return model.CaptureEvent{}, malformed(kind, FieldType, "discriminator "+declared.String()+" conflicts with "+kind.String())
		}
	}

	ev := model.CaptureEvent{
		Kind:          kind,
		Auxiliary:     cloneMap(payload),
		OriginAddress: origin,
	}

	switch kind {
	case model.KindCoarseLocation, model.KindPreciseLocation:
		coords, err := coordinates(kind, payload)
		if err != nil {
			return model.CaptureEvent{}, err
		}
		ev.Coordinates = coords
	case model.KindConsentDenied:
		if isAbsent(payload[FieldError]) && isAbsent(payload[FieldCode]) {
			return model.CaptureEvent{}, malformed(kind, FieldError, "denial carries neither error nor code")
		}
	}

	if kind == model.KindPreciseLocation {
		if raw, ok := payload[FieldAccuracy]; ok && raw != nil {
			acc, ok := Number(raw)
			if !ok || math.IsNaN(acc) || math.IsInf(acc, 0) {
				return model.CaptureEvent{}, malformed(kind, FieldAccuracy, "not a number")
			}
			if acc < 0 {
				return model.CaptureEvent{}, malformed(kind, FieldAccuracy, "negative accuracy")
			}
			ev.PrecisionMeters = &acc
		}
		if ip, ok := payload[FieldIPData].(map[string]any); ok {
			ev.Auxiliary[AuxCorrelatedCoarse] = cloneMap(ip)
		}
	}

	return ev, nil
}

func coordinates(kind model.Kind, payload map[string]any) (*model.Coordinates, error) {
	lat, err := bounded(kind, payload, FieldLatitude, 90)
	if err != nil {
		return nil, err
	}
	lon, err := bounded(kind, payload, FieldLongitude, 180)
	if err != nil {
		return nil, err
	}
	return &model.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func bounded(kind model.Kind, payload map[string]any, field string, limit float64) (float64, error) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		return 0, malformed(kind, field, "missing")
	}
	v, ok := Number(raw)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed(kind, field, "not a number")
	}
	if v < -limit || v > limit {
		return 0, malformed(kind, field, "out of range")
	}
	return v, nil
}

// Number converts a decoded JSON numeric value to float64. Strings are not
// numbers.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// cloneMap deep-copies decoded JSON so appended events share nothing with
// the caller's payload.
func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	}
	return v
}

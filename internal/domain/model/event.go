// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Kind discriminates capture events.
type Kind uint8

// Capture event kinds.
const (
	KindUnknown Kind = iota
	KindCoarseLocation
	KindPreciseLocation
	KindConsentDenied
)

var kindNames = map[Kind]string{
	KindCoarseLocation:  "coarse_location",
	KindPreciseLocation: "precise_location",
	KindConsentDenied:   "consent_denied",
}

// Payload discriminators sent by capture clients.
const (
	TypeIPGeolocation    = "ip_geolocation"
	TypeGPSPrecise       = "gps_precise"
	TypePermissionDenied = "permission_denied"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether k is one of the three capture kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts either the kind name or the client payload discriminator.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "coarse_location", TypeIPGeolocation:
		return KindCoarseLocation, nil
	case "precise_location", TypeGPSPrecise:
		return KindPreciseLocation, nil
	case "consent_denied", TypePermissionDenied:
		return KindConsentDenied, nil
	}
	return KindUnknown, fmt.Errorf("unknown kind %q", s)
}

// Discriminator returns the client payload "type" value for the kind.
func (k Kind) Discriminator() string {
	switch k {
	case KindCoarseLocation:
		return TypeIPGeolocation
	case KindPreciseLocation:
		return TypeGPSPrecise
	case KindConsentDenied:
		return TypePermissionDenied
	}
	return ""
}

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CaptureEvent is the atomic unit of record. Events are immutable once
// appended to the log; Auxiliary must be treated as read-only by readers.
type CaptureEvent struct {
	ID              string         `json:"id"`
	Seq             uint64         `json:"seq"`
	Kind            Kind           `json:"kind"`
	Coordinates     *Coordinates   `json:"coordinates,omitempty"`
	PrecisionMeters *float64       `json:"precision_meters,omitempty"`
	Auxiliary       map[string]any `json:"auxiliary"`
	OriginAddress   string         `json:"origin_address"`
	ReceivedAt      time.Time      `json:"received_at"`
}

// Counted reports whether the event participates in capture statistics.
func (e *CaptureEvent) Counted() bool {
	return e.Kind == KindCoarseLocation || e.Kind == KindPreciseLocation
}

// Aux returns the auxiliary value for key, or nil.
func (e *CaptureEvent) Aux(key string) any {
	if e.Auxiliary == nil {
		return nil
	}
	return e.Auxiliary[key]
}

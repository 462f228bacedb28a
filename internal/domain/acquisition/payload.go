package acquisition

import (
	"time"

	"github.com/okian/geocapture/internal/domain/model"
)

func (f *Flow) stamp(p map[string]any) map[string]any {
	p["timestamp"] = f.now().UTC().Format(time.RFC3339Nano)
	p["userAgent"] = f.client.UserAgent
	p["platform"] = f.client.Platform
	p["language"] = f.client.Language
	p["screen"] = f.client.Screen
	return p
}

// coarseFields maps the lookup contract onto payload field names.
func coarseFields(r LookupResult) map[string]any {
	return map[string]any{
		"latitude":  r.Latitude,
		"longitude": r.Longitude,
		"city":      r.City,
		"region":    r.Region,
		"country":   r.CountryName,
		"ip":        r.IP,
		"isp":       r.Org,
		"postal":    r.Postal,
		"timezone":  r.Timezone,
	}
}

func (f *Flow) coarsePayload(r LookupResult) map[string]any {
	p := coarseFields(r)
	p["type"] = model.TypeIPGeolocation
	return f.stamp(p)
}

func (f *Flow) precisePayload(pos Position, coarse *LookupResult) map[string]any {
	p := map[string]any{
		"type":             model.TypeGPSPrecise,
		"latitude":         pos.Latitude,
		"longitude":        pos.Longitude,
		"accuracy":         pos.Accuracy,
		"altitude":         optional(pos.Altitude),
		"altitudeAccuracy": optional(pos.AltitudeAccuracy),
		"heading":          optional(pos.Heading),
		"speed":            optional(pos.Speed),
	}
	if coarse != nil {
		p["ipData"] = coarseFields(*coarse)
	}
	return f.stamp(p)
}

func (f *Flow) deniedPayload(ce *CapabilityError) map[string]any {
	return map[string]any{
		"type":      model.TypePermissionDenied,
		"error":     ce.Message,
		"code":      ce.Code,
		"timestamp": f.now().UTC().Format(time.RFC3339Nano),
	}
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Package aggregate computes statistics and rendered listings by scanning
// a snapshot of the event log. Nothing here keeps state between calls.
package aggregate

import "github.com/okian/geocapture/internal/domain/model"

// Summary holds counts over one snapshot. Denials are reported but are not
// part of Total or SuccessRate.
type Summary struct {
	Total        int     `json:"total"`
	CoarseCount  int     `json:"coarse_count"`
	PreciseCount int     `json:"precise_count"`
	DeniedCount  int     `json:"denied_count"`
	SuccessRate  float64 `json:"success_rate"`
}

// Summarize scans events once.
func Summarize(events []model.CaptureEvent) Summary {
	var s Summary
	for i := range events {
		switch events[i].Kind {
		case model.KindCoarseLocation:
			s.CoarseCount++
		case model.KindPreciseLocation:
			s.PreciseCount++
		case model.KindConsentDenied:
			s.DeniedCount++
		}
	}
	s.Total = s.CoarseCount + s.PreciseCount
	if s.Total > 0 {
		s.SuccessRate = float64(s.PreciseCount) / float64(s.Total)
	}
	return s
}

// SuccessPercent is SuccessRate scaled to 0..100 for display.
func (s Summary) SuccessPercent() float64 {
	return s.SuccessRate * 100
}

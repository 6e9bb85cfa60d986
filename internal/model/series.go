package model

import (
	"encoding/json"
	"time"
)

// PointStatus classifies one hour of a reconstructed series.
type PointStatus int

const (
	// StatusOutOfRange marks hours before any observation; drawn as nothing.
	StatusOutOfRange PointStatus = iota
	// StatusMissing marks hours inside the covered span (or after the latest
	// observation) that have no observation.
	StatusMissing
	// StatusObserved marks hours that carry a value.
	StatusObserved
)

func (s PointStatus) String() string {
	switch s {
	case StatusObserved:
		return "observed"
	case StatusMissing:
		return "missing"
	default:
		return "out-of-range"
	}
}

// MarshalJSON encodes the status by name.
func (s PointStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// SeriesPoint is one hour of a complete hourly series. Value is always
// encoded and only meaningful when Status is StatusObserved, so an observed
// zero rate stays distinguishable from a gap.
type SeriesPoint struct {
	HourStart time.Time   `json:"hour_start"`
	Label     string      `json:"label"`
	Status    PointStatus `json:"status"`
	Value     float64     `json:"value"`
}

// Observed reports whether the point carries a value.
func (p SeriesPoint) Observed() bool {
	return p.Status == StatusObserved
}

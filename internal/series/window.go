package series

import (
	"time"

	"fundingboard/internal/model"
)

// WindowStart returns the start of the window covered by r, ending at now.
func WindowStart(r model.Range, now time.Time) time.Time {
	return now.Add(-r.Duration())
}

// Counts tallies points by status.
type Counts struct {
	Observed   int `json:"observed"`
	Missing    int `json:"missing"`
	OutOfRange int `json:"out_of_range"`
}

// Count tallies the statuses of points.
func Count(points []model.SeriesPoint) Counts {
	var c Counts
	for _, p := range points {
		switch p.Status {
		case model.StatusObserved:
			c.Observed++
		case model.StatusMissing:
			c.Missing++
		default:
			c.OutOfRange++
		}
	}
	return c
}

// Bounds returns the minimum and maximum observed values. ok is false when
// no point is observed.
func Bounds(points []model.SeriesPoint) (lo, hi float64, ok bool) {
	for _, p := range points {
		if !p.Observed() {
			continue
		}
		if !ok {
			lo, hi, ok = p.Value, p.Value, true
			continue
		}
		if p.Value < lo {
			lo = p.Value
		}
		if p.Value > hi {
			hi = p.Value
		}
	}
	return lo, hi, ok
}

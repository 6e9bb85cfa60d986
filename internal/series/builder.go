// Package series reconstructs complete, gap-annotated hourly funding series
// from sparse observations.
package series

import (
	"math"
	"sort"
	"time"

	"fundingboard/internal/model"
)

// LabelLayout renders the start of a collection period, e.g. "03/15, 02 PM".
const LabelLayout = "01/02, 03 PM"

type options struct {
	loc *time.Location
}

// Option customises Build.
type Option func(*options)

// WithLocation sets the time zone used for point labels. Hour alignment is
// always absolute, so the location never changes which hours are produced.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

type sample struct {
	ts    int64
	value float64
}

// Build returns one point per whole hour from the hour of windowStart through
// the hour of now, inclusive. Observations for other coins, before
// windowStart, or with a non-finite rate or non-positive timestamp are
// ignored. When several observations fall into the same hour the last one
// after a stable sort by timestamp wins, so exact timestamp ties resolve to
// the later input element.
func Build(observations []model.Observation, coin string, windowStart, now time.Time, opts ...Option) []model.SeriesPoint {
	o := options{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	startMs := windowStart.UnixMilli()
	samples := make([]sample, 0, 64)
	for _, obs := range observations {
		if obs.Coin != coin || obs.TimestampMs < startMs {
			continue
		}
		if obs.TimestampMs <= 0 || math.IsNaN(obs.FundingRate) || math.IsInf(obs.FundingRate, 0) {
			continue
		}
		samples = append(samples, sample{ts: obs.TimestampMs, value: obs.AnnualizedPct()})
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].ts < samples[j].ts })

	byHour := make(map[int64]float64, len(samples))
	for _, s := range samples {
		byHour[hourKey(time.UnixMilli(s.ts))] = s.value
	}

	first := FloorHour(windowStart)
	last := FloorHour(now)
	if last.Before(first) {
		last = first
	}

	latestObserved := first
	var earliest time.Time
	if len(samples) > 0 {
		earliest = time.UnixMilli(samples[0].ts)
		latestObserved = FloorHour(time.UnixMilli(samples[len(samples)-1].ts))
	}

	n := int(last.Sub(first)/time.Hour) + 1
	points := make([]model.SeriesPoint, 0, n)
	for i := 0; i < n; i++ {
		hour := first.Add(time.Duration(i) * time.Hour)
		p := model.SeriesPoint{
			HourStart: hour.In(o.loc),
			Label:     Label(hour, o.loc),
		}

		if v, ok := byHour[hour.Unix()]; ok {
			p.Status = model.StatusObserved
			p.Value = v
		} else {
			p.Status = classifyGap(hour, len(samples) > 0, earliest, latestObserved)
		}
		points = append(points, p)
	}
	return points
}

func classifyGap(hour time.Time, haveData bool, earliest, latestObserved time.Time) model.PointStatus {
	switch {
	case !haveData:
		return model.StatusOutOfRange
	case hour.After(latestObserved):
		// the pipeline should have produced a value by now
		return model.StatusMissing
	case !hour.Before(earliest):
		return model.StatusMissing
	default:
		return model.StatusOutOfRange
	}
}

// FloorHour truncates t to the start of its absolute hour.
func FloorHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

func hourKey(t time.Time) int64 {
	return FloorHour(t).Unix()
}

// Label formats the start of the collection period that produced the value
// stamped at hour, which is one hour earlier.
func Label(hour time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return hour.Add(-time.Hour).In(loc).Format(LabelLayout)
}

// ExpectedLen reports how many points Build produces for a window.
func ExpectedLen(windowStart, now time.Time) int {
	first, last := FloorHour(windowStart), FloorHour(now)
	if last.Before(first) {
		return 1
	}
	return int(last.Sub(first)/time.Hour) + 1
}

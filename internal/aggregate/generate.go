package aggregate

import (
	"math"
	"sort"
	"time"

	"fundingboard/internal/model"
)

// SnapshotTimeLayout is the layout of the snapshot timestamp fields.
const SnapshotTimeLayout = "2006-01-02 15:04:05 UTC"

// periodRequirement is the minimum number of hourly samples a coin needs
// before an average over the period is published.
var periodRequirement = map[model.Period]struct {
	days   int
	points int
}{
	model.Period1d: {1, 24},
	model.Period3d: {3, 72},
	model.Period5d: {5, 120},
}

// Generate derives a snapshot from the hourly log. The current rates are the
// samples stamped at the latest timestamp in the log; averages cover the
// days before that timestamp and are omitted for coins without enough
// samples. Zero rates appear in neither the positive nor the negative lists.
func Generate(observations []model.Observation, now time.Time) *model.Snapshot {
	snap := model.NewSnapshot()
	snap.GeneratedAt = now.UTC().Format(SnapshotTimeLayout)

	valid := make([]model.Observation, 0, len(observations))
	var latest int64
	for _, o := range observations {
		if o.Coin == "" || o.TimestampMs <= 0 || math.IsNaN(o.FundingRate) || math.IsInf(o.FundingRate, 0) {
			continue
		}
		valid = append(valid, o)
		if o.TimestampMs > latest {
			latest = o.TimestampMs
		}
	}
	if len(valid) == 0 {
		return snap
	}
	snap.Timestamp = time.UnixMilli(latest).UTC().Format(SnapshotTimeLayout)

	current := make(map[string]float64)
	byCoin := make(map[string][]model.Observation)
	for _, o := range valid {
		byCoin[o.Coin] = append(byCoin[o.Coin], o)
		if o.TimestampMs == latest {
			current[o.Coin] = o.AnnualizedPct()
		}
	}

	snap.PositiveCurrent, snap.NegativeCurrent = split(current)

	for _, p := range model.Periods {
		req := periodRequirement[p]
		from := latest - int64(req.days)*24*int64(time.Hour/time.Millisecond)
		averages := make(map[string]float64)
		for coin := range current {
			var sum float64
			var n int
			for _, o := range byCoin[coin] {
				if o.TimestampMs >= from {
					sum += o.FundingRate
					n++
				}
			}
			if n >= req.points {
				averages[coin] = model.Annualize(sum / float64(n))
			}
		}
		snap.PositiveAvg[p], snap.NegativeAvg[p] = split(averages)
	}
	return snap
}

func split(values map[string]float64) (positive, negative []model.RateEntry) {
	for coin, v := range values {
		v := v
		switch {
		case v > 0:
			positive = append(positive, model.RateEntry{Coin: coin, Rate: &v})
		case v < 0:
			negative = append(negative, model.RateEntry{Coin: coin, Rate: &v})
		}
	}
	sort.Slice(positive, func(i, j int) bool {
		if *positive[i].Rate != *positive[j].Rate {
			return *positive[i].Rate > *positive[j].Rate
		}
		return positive[i].Coin < positive[j].Coin
	})
	sort.Slice(negative, func(i, j int) bool {
		if *negative[i].Rate != *negative[j].Rate {
			return *negative[i].Rate < *negative[j].Rate
		}
		return negative[i].Coin < negative[j].Coin
	})
	return positive, negative
}

// Retain drops observations older than the retention window ending at now.
func Retain(observations []model.Observation, now time.Time, days int) []model.Observation {
	if days <= 0 {
		return observations
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	out := make([]model.Observation, 0, len(observations))
	for _, o := range observations {
		if o.TimestampMs >= cutoff {
			out = append(out, o)
		}
	}
	return out
}

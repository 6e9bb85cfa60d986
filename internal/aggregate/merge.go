// Package aggregate reshapes snapshot lists into per-coin rows and derives
// snapshots from the hourly history log.
package aggregate

import (
	"sort"

	"fundingboard/internal/model"
)

// Merge folds every list of the snapshot into one row per coin. For each
// metric the positive list is applied before the negative list, so a coin
// present in both resolves to the negative entry. A coin is new when it has
// no 5-day average; an explicit zero average is data, not absence.
func Merge(s *model.Snapshot) []model.CoinRow {
	if s == nil {
		return nil
	}

	rows := make(map[string]*model.CoinRow)
	row := func(coin string) *model.CoinRow {
		r, ok := rows[coin]
		if !ok {
			r = &model.CoinRow{Coin: coin}
			rows[coin] = r
		}
		return r
	}

	apply := func(entries []model.RateEntry, set func(*model.CoinRow, *float64)) {
		for _, e := range entries {
			if e.Coin == "" {
				continue
			}
			set(row(e.Coin), copyRate(e.Rate))
		}
	}

	setLatest := func(r *model.CoinRow, v *float64) { r.LatestRate = v }
	apply(s.PositiveCurrent, setLatest)
	apply(s.NegativeCurrent, setLatest)

	for _, p := range model.Periods {
		set := periodSetter(p)
		apply(s.PositiveAvg[p], set)
		apply(s.NegativeAvg[p], set)
	}

	out := make([]model.CoinRow, 0, len(rows))
	for _, r := range rows {
		r.IsNew = r.Avg5d == nil
		out = append(out, *r)
	}
	SortByLatest(out)
	return out
}

func periodSetter(p model.Period) func(*model.CoinRow, *float64) {
	switch p {
	case model.Period1d:
		return func(r *model.CoinRow, v *float64) { r.Avg1d = v }
	case model.Period3d:
		return func(r *model.CoinRow, v *float64) { r.Avg3d = v }
	default:
		return func(r *model.CoinRow, v *float64) { r.Avg5d = v }
	}
}

func copyRate(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// SortByLatest orders rows by latest rate descending, rows without a latest
// rate last, ties by coin name.
func SortByLatest(rows []model.CoinRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].LatestRate, rows[j].LatestRate
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return rows[i].Coin < rows[j].Coin
	})
}

// Find returns the row for coin.
func Find(rows []model.CoinRow, coin string) (model.CoinRow, bool) {
	for _, r := range rows {
		if r.Coin == coin {
			return r, true
		}
	}
	return model.CoinRow{}, false
}

// Summary returns the coarse fallback series for a row: the 5, 3 and 1 day
// averages followed by the current rate, skipping absent values.
func Summary(r model.CoinRow) []model.SummaryPoint {
	out := make([]model.SummaryPoint, 0, 4)
	add := func(label string, v *float64) {
		if v != nil {
			out = append(out, model.SummaryPoint{Label: label, Value: *v})
		}
	}
	add("5-Day Avg", r.Avg5d)
	add("3-Day Avg", r.Avg3d)
	add("1-Day Avg", r.Avg1d)
	add("Current", r.LatestRate)
	return out
}

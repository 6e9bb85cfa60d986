package model

// Period identifies one of the averaging windows published in the snapshot.
type Period string

const (
	Period1d Period = "1d"
	Period3d Period = "3d"
	Period5d Period = "5d"
)

// Periods lists the averaging windows in ascending length.
var Periods = []Period{Period1d, Period3d, Period5d}

// RateEntry is one coin entry of a snapshot list. Rate is nil when the
// producer wrote an explicit null.
type RateEntry struct {
	Coin string
	Rate *float64
}

// Snapshot is the decoded snapshot document: the latest annualized rates and
// the per-period average rates, each split into positive and negative lists.
type Snapshot struct {
	Timestamp   string
	GeneratedAt string

	PositiveCurrent []RateEntry
	NegativeCurrent []RateEntry

	PositiveAvg map[Period][]RateEntry
	NegativeAvg map[Period][]RateEntry
}

// NewSnapshot returns an empty snapshot with initialised period maps.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		PositiveAvg: make(map[Period][]RateEntry, len(Periods)),
		NegativeAvg: make(map[Period][]RateEntry, len(Periods)),
	}
}

// CoinRow is the merged per-coin table row. Nil rates mean "not enough data".
type CoinRow struct {
	Coin       string   `json:"coin"`
	IsNew      bool     `json:"is_new"`
	LatestRate *float64 `json:"latest_rate"`
	Avg1d      *float64 `json:"avg_1d"`
	Avg3d      *float64 `json:"avg_3d"`
	Avg5d      *float64 `json:"avg_5d"`
}

// SummaryPoint is one bar of the coarse fallback chart.
type SummaryPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

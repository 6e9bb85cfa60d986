package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingboard/internal/model"
)

var base = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func obs(coin string, t time.Time, rate float64) model.Observation {
	return model.Observation{Coin: coin, TimestampMs: t.UnixMilli(), FundingRate: rate}
}

func TestBuildLengthMatchesHourCount(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		now   time.Time
		want  int
	}{
		{"same hour", base.Add(10 * time.Minute), base.Add(50 * time.Minute), 1},
		{"one day aligned", base.Add(-24 * time.Hour), base, 25},
		{"one day unaligned", base.Add(-24*time.Hour + 17*time.Minute), base.Add(17 * time.Minute), 25},
		{"crosses an hour", base.Add(50 * time.Minute), base.Add(70 * time.Minute), 2},
		{"three months", base.Add(-90 * 24 * time.Hour), base, 90*24 + 1},
		{"now before start", base, base.Add(-3 * time.Hour), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points := Build(nil, "BTC", tc.start, tc.now)
			require.Len(t, points, tc.want)
			assert.Equal(t, tc.want, ExpectedLen(tc.start, tc.now))
			for i := 1; i < len(points); i++ {
				assert.Equal(t, time.Hour, points[i].HourStart.Sub(points[i-1].HourStart))
			}
		})
	}
}

func TestBuildEmptyIsAllOutOfRange(t *testing.T) {
	points := Build(nil, "BTC", base.Add(-6*time.Hour), base)
	require.Len(t, points, 7)
	for _, p := range points {
		assert.Equal(t, model.StatusOutOfRange, p.Status)
	}

	// other coins do not count as data
	points = Build([]model.Observation{obs("ETH", base, 0.0001)}, "BTC", base.Add(-2*time.Hour), base)
	assert.Equal(t, Counts{OutOfRange: 3}, Count(points))
}

func TestBuildSingleObservation(t *testing.T) {
	points := Build([]model.Observation{obs("BTC", base, 0.0001)}, "BTC", base.Add(-time.Hour), base)
	require.Len(t, points, 2)

	assert.Equal(t, model.StatusOutOfRange, points[0].Status)
	assert.Equal(t, model.StatusObserved, points[1].Status)
	assert.InDelta(t, 87.6, points[1].Value, 1e-9)
}

func TestBuildClassifiesGaps(t *testing.T) {
	start := base.Add(-10 * time.Hour)
	input := []model.Observation{
		obs("BTC", base.Add(-7*time.Hour), 0.0001),
		obs("BTC", base.Add(-4*time.Hour), -0.0002),
		obs("BTC", base.Add(-3*time.Hour), 0.0003),
	}
	points := Build(input, "BTC", start, base)
	require.Len(t, points, 11)

	want := []model.PointStatus{
		model.StatusOutOfRange, // -10
		model.StatusOutOfRange, // -9
		model.StatusOutOfRange, // -8
		model.StatusObserved,   // -7
		model.StatusMissing,    // -6 inside covered span
		model.StatusMissing,    // -5
		model.StatusObserved,   // -4
		model.StatusObserved,   // -3
		model.StatusMissing,    // -2 after latest observation
		model.StatusMissing,    // -1
		model.StatusMissing,    // now
	}
	for i, p := range points {
		assert.Equalf(t, want[i], p.Status, "point %d (%s)", i, p.HourStart)
	}
	assert.InDelta(t, -0.0002*model.AnnualizationFactor, points[6].Value, 1e-9)
	assert.Equal(t, Counts{Observed: 3, Missing: 5, OutOfRange: 3}, Count(points))
}

func TestBuildMatchesUnalignedTimestampsToTheirHour(t *testing.T) {
	input := []model.Observation{obs("BTC", base.Add(-2*time.Hour+37*time.Second), 0.0001)}
	points := Build(input, "BTC", base.Add(-3*time.Hour), base)
	require.Len(t, points, 4)
	assert.Equal(t, model.StatusObserved, points[1].Status)
}

func TestBuildFiltersBeforeWindowStart(t *testing.T) {
	// an observation at 10:00 is excluded by a 10:20 window start, so its hour
	// is reported without data
	start := base.Add(20 * time.Minute)
	input := []model.Observation{
		obs("BTC", base, 0.0001),
		obs("BTC", base.Add(time.Hour), 0.0001),
	}
	points := Build(input, "BTC", start, base.Add(2*time.Hour))
	require.Len(t, points, 3)
	assert.Equal(t, model.StatusOutOfRange, points[0].Status)
	assert.Equal(t, model.StatusObserved, points[1].Status)
	assert.Equal(t, model.StatusMissing, points[2].Status)
}

func TestBuildDropsMalformedObservations(t *testing.T) {
	input := []model.Observation{
		obs("BTC", base, math.NaN()),
		obs("BTC", base.Add(-time.Hour), math.Inf(1)),
		{Coin: "BTC", TimestampMs: 0, FundingRate: 0.1},
	}
	points := Build(input, "BTC", time.UnixMilli(0), time.UnixMilli(0).Add(time.Hour))
	assert.Equal(t, 0, Count(points).Observed)

	points = Build(input, "BTC", base.Add(-time.Hour), base)
	assert.Equal(t, Counts{OutOfRange: 2}, Count(points))
}

func TestBuildDuplicateHourLastWins(t *testing.T) {
	input := []model.Observation{
		obs("BTC", base.Add(5*time.Minute), 0.0003),
		obs("BTC", base, 0.0001),
		obs("BTC", base.Add(5*time.Minute), 0.0002),
	}
	points := Build(input, "BTC", base, base)
	require.Len(t, points, 1)
	// latest timestamp in the hour wins; the exact tie resolves to the later input
	assert.InDelta(t, 0.0002*model.AnnualizationFactor, points[0].Value, 1e-9)
}

func TestBuildIsIdempotentAndDoesNotMutateInput(t *testing.T) {
	input := []model.Observation{
		obs("BTC", base, 0.0001),
		obs("BTC", base.Add(-3*time.Hour), 0.0002),
	}
	snapshot := append([]model.Observation(nil), input...)

	first := Build(input, "BTC", base.Add(-5*time.Hour), base)
	second := Build(input, "BTC", base.Add(-5*time.Hour), base)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, input)
}

func TestLabelIsStartOfCollectionPeriod(t *testing.T) {
	points := Build(nil, "BTC", base, base)
	require.Len(t, points, 1)
	assert.Equal(t, "03/15, 11 AM", points[0].Label)

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	points = Build(nil, "BTC", base, base, WithLocation(ny))
	assert.Equal(t, "03/15, 07 AM", points[0].Label)
}

func TestWindowStartAndBounds(t *testing.T) {
	assert.Equal(t, base.Add(-7*24*time.Hour), WindowStart(model.Range1w, base))
	assert.Equal(t, base.Add(-90*24*time.Hour), WindowStart(model.Range3m, base))

	input := []model.Observation{
		obs("BTC", base, 0.0001),
		obs("BTC", base.Add(-time.Hour), -0.0002),
	}
	lo, hi, ok := Bounds(Build(input, "BTC", base.Add(-2*time.Hour), base))
	require.True(t, ok)
	assert.InDelta(t, -0.0002*model.AnnualizationFactor, lo, 1e-9)
	assert.InDelta(t, 0.0001*model.AnnualizationFactor, hi, 1e-9)

	_, _, ok = Bounds(Build(nil, "BTC", base, base))
	assert.False(t, ok)
}

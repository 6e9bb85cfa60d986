package chart

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingboard/internal/model"
)

func hourlyPoints(statuses []model.PointStatus, values []float64) []model.SeriesPoint {
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	pts := make([]model.SeriesPoint, len(statuses))
	for i, st := range statuses {
		pts[i] = model.SeriesPoint{
			HourStart: start.Add(time.Duration(i) * time.Hour),
			Label:     start.Add(time.Duration(i-1) * time.Hour).Format("01/02, 03 PM"),
			Status:    st,
			Value:     values[i],
		}
	}
	return pts
}

func decodePNG(t *testing.T, data []byte, width, height int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, width, img.Bounds().Dx())
	assert.Equal(t, height, img.Bounds().Dy())
}

func TestRenderSeriesLineAndBar(t *testing.T) {
	obs, miss, out := model.StatusObserved, model.StatusMissing, model.StatusOutOfRange
	pts := hourlyPoints(
		[]model.PointStatus{out, out, obs, obs, miss, obs, obs, miss},
		[]float64{0, 0, 10.5, -3.2, 0, 8, 12, 0},
	)

	for _, kind := range []model.ChartType{model.ChartLine, model.ChartBar} {
		t.Run(string(kind), func(t *testing.T) {
			data, err := RenderSeries(pts, kind, Options{Title: "BTC", Mode: model.DisplayAnnualized, Width: 640, Height: 240, LabelEvery: 2})
			require.NoError(t, err)
			decodePNG(t, data, 640, 240)
		})
	}
}

func TestRenderSeriesSinglePoint(t *testing.T) {
	pts := hourlyPoints([]model.PointStatus{model.StatusObserved}, []float64{87.6})
	data, err := RenderSeries(pts, model.ChartLine, Options{Mode: model.DisplayHourly})
	require.NoError(t, err)
	decodePNG(t, data, 960, 360)
}

func TestRenderSeriesSinglePointBar(t *testing.T) {
	pts := hourlyPoints([]model.PointStatus{model.StatusObserved}, []float64{-4.2})
	data, err := RenderSeries(pts, model.ChartBar, Options{Width: 320, Height: 200, LabelEvery: 6})
	require.NoError(t, err)
	decodePNG(t, data, 320, 200)
}

func TestXTicksSpanWholeAxis(t *testing.T) {
	obs := model.StatusObserved
	pts := hourlyPoints([]model.PointStatus{obs, obs, obs, obs, obs}, []float64{1, 2, 3, 4, 5})

	ticks := xTicks(pts, 3, 4)
	require.Len(t, ticks, 4)
	assert.Equal(t, -0.5, ticks[0].Value)
	assert.Empty(t, ticks[0].Label)
	assert.Equal(t, 0.0, ticks[1].Value)
	assert.Equal(t, pts[0].Label, ticks[1].Label)
	assert.Equal(t, 3.0, ticks[2].Value)
	assert.Equal(t, 4.5, ticks[3].Value)

	single := xTicks(pts[:1], 1, 1)
	assert.Greater(t, single[len(single)-1].Value-single[0].Value, 0.0)
}

func TestRenderSeriesOnlyMissing(t *testing.T) {
	pts := hourlyPoints([]model.PointStatus{model.StatusMissing, model.StatusMissing}, []float64{0, 0})
	_, err := RenderSeries(pts, model.ChartBar, Options{})
	require.NoError(t, err)
}

func TestRenderSeriesNoData(t *testing.T) {
	_, err := RenderSeries(nil, model.ChartLine, Options{})
	require.ErrorIs(t, err, ErrNoData)

	pts := hourlyPoints([]model.PointStatus{model.StatusOutOfRange, model.StatusOutOfRange}, []float64{0, 0})
	_, err = RenderSeries(pts, model.ChartLine, Options{})
	require.ErrorIs(t, err, ErrNoData)
}

func TestLineSeriesBreaksAtGaps(t *testing.T) {
	obs, miss := model.StatusObserved, model.StatusMissing
	pts := hourlyPoints([]model.PointStatus{obs, obs, miss, obs, model.StatusOutOfRange, obs, obs}, []float64{1, 2, 0, 3, 0, 4, 5})

	runs := lineSeries(pts)
	require.Len(t, runs, 3)
}

func TestBarSeriesOnePerObservedHour(t *testing.T) {
	obs, miss := model.StatusObserved, model.StatusMissing
	pts := hourlyPoints([]model.PointStatus{obs, miss, obs, obs}, []float64{1, 0, -2, 3})
	assert.Len(t, barSeries(pts, 400), 3)
}

func TestValueRangeIncludesZero(t *testing.T) {
	pts := hourlyPoints([]model.PointStatus{model.StatusObserved, model.StatusObserved}, []float64{5, 15})
	r := valueRange(pts)
	assert.Less(t, r.Min, 0.0)
	assert.Greater(t, r.Max, 15.0)
}

func TestYTicksUseDisplayMode(t *testing.T) {
	ticks := yTicks(-10, 10, 5, model.DisplayAnnualized)
	require.NotEmpty(t, ticks)
	labels := make([]string, len(ticks))
	for i, tk := range ticks {
		labels[i] = tk.Label
	}
	assert.Contains(t, labels, "0.00%")
	assert.Contains(t, labels, "10.00%")
}

func TestRenderSummary(t *testing.T) {
	summary := []model.SummaryPoint{
		{Label: "5-Day Avg", Value: 4},
		{Label: "1-Day Avg", Value: -2},
		{Label: "Current", Value: 6},
	}
	data, err := RenderSummary(summary, Options{Title: "ETH", Width: 480, Height: 240})
	require.NoError(t, err)
	decodePNG(t, data, 480, 240)

	_, err = RenderSummary(nil, Options{})
	require.ErrorIs(t, err, ErrNoData)
}

// Package chart renders hourly funding series and summary fallbacks as PNG.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fundingboard/internal/format"
	"fundingboard/internal/model"
	"fundingboard/internal/series"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no chart data")

var (
	colorPositive = drawing.ColorFromHex("16a34a")
	colorNegative = drawing.ColorFromHex("dc2626")
	colorMissing  = drawing.ColorFromHex("eab308")
	colorZero     = drawing.ColorFromHex("9ca3af")
	colorLine     = drawing.ColorFromHex("2563eb")
)

// Options controls size, title and value formatting.
type Options struct {
	Title  string
	Mode   model.DisplayMode
	Width  int
	Height int
	// LabelEvery places an x tick every n hours; zero labels every hour.
	LabelEvery int
}

func (o Options) size() (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 960
	}
	if h <= 0 {
		h = 360
	}
	return w, h
}

// pointStyle renders points only, no connecting line.
func pointStyle(col drawing.Color, width float64) gochart.Style {
	return gochart.Style{
		StrokeColor: drawing.ColorTransparent,
		StrokeWidth: 0,
		DotWidth:    width,
		DotColor:    col,
	}
}

func signColor(v float64) drawing.Color {
	if v < 0 {
		return colorNegative
	}
	return colorPositive
}

// RenderSeries draws points as a line or bar chart. Lines break at every
// hour without an observation, missing hours are marked on the zero line
// and out-of-range hours are left empty.
func RenderSeries(points []model.SeriesPoint, kind model.ChartType, opts Options) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}
	counts := series.Count(points)
	if counts.Observed == 0 && counts.Missing == 0 {
		return nil, ErrNoData
	}

	width, height := opts.size()
	xMax := float64(len(points) - 1)
	if xMax < 1 {
		xMax = 1
	}

	var out []gochart.Series
	out = append(out, gochart.ContinuousSeries{
		Name:    "zero",
		Style:   gochart.Style{StrokeColor: colorZero, StrokeWidth: 1},
		XValues: []float64{0, xMax},
		YValues: []float64{0, 0},
	})

	if kind == model.ChartBar {
		out = append(out, barSeries(points, width)...)
	} else {
		out = append(out, lineSeries(points)...)
	}
	if missing := missingSeries(points); missing != nil {
		out = append(out, *missing)
	}

	yRange := valueRange(points)
	ch := gochart.Chart{
		Title:      opts.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis: gochart.XAxis{
			Ticks: xTicks(points, opts.LabelEvery, xMax),
			Range: &gochart.ContinuousRange{Min: -0.5, Max: xMax + 0.5},
		},
		YAxis: gochart.YAxis{
			Range: yRange,
			Ticks: yTicks(yRange.Min, yRange.Max, 6, opts.Mode),
		},
		Series: out,
	}

	var buf bytes.Buffer
	if err := ch.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render series chart: %w", err)
	}
	return buf.Bytes(), nil
}

// lineSeries splits observed points into contiguous runs so no segment
// bridges a gap. Each run is colored by the sign of its last value.
func lineSeries(points []model.SeriesPoint) []gochart.Series {
	var out []gochart.Series
	var xs, ys []float64
	flush := func() {
		if len(xs) == 0 {
			return
		}
		col := signColor(ys[len(ys)-1])
		if len(xs) == 1 {
			out = append(out, gochart.ContinuousSeries{Style: pointStyle(col, 3), XValues: xs, YValues: ys})
		} else {
			out = append(out, gochart.ContinuousSeries{
				Style:   gochart.Style{StrokeColor: colorLine, StrokeWidth: 2, DotColor: col, DotWidth: 2},
				XValues: xs,
				YValues: ys,
			})
		}
		xs, ys = nil, nil
	}
	for i, p := range points {
		if !p.Observed() {
			flush()
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, p.Value)
	}
	flush()
	return out
}

// barSeries draws each observed hour as a vertical stroke from zero.
func barSeries(points []model.SeriesPoint, width int) []gochart.Series {
	barWidth := float64(width) / float64(len(points)) * 0.7
	if barWidth < 1 {
		barWidth = 1
	}
	if barWidth > 24 {
		barWidth = 24
	}
	var out []gochart.Series
	for i, p := range points {
		if !p.Observed() {
			continue
		}
		x := float64(i)
		out = append(out, gochart.ContinuousSeries{
			Style:   gochart.Style{StrokeColor: signColor(p.Value), StrokeWidth: barWidth},
			XValues: []float64{x, x},
			YValues: []float64{0, p.Value},
		})
	}
	return out
}

func missingSeries(points []model.SeriesPoint) *gochart.ContinuousSeries {
	var xs, ys []float64
	for i, p := range points {
		if p.Status == model.StatusMissing {
			xs = append(xs, float64(i))
			ys = append(ys, 0)
		}
	}
	if len(xs) == 0 {
		return nil
	}
	return &gochart.ContinuousSeries{Name: "missing", Style: pointStyle(colorMissing, 3), XValues: xs, YValues: ys}
}

// valueRange always includes zero and pads the observed span by a tenth.
func valueRange(points []model.SeriesPoint) *gochart.ContinuousRange {
	lo, hi, ok := series.Bounds(points)
	if !ok {
		lo, hi = 0, 0
	}
	lo = math.Min(lo, 0)
	hi = math.Max(hi, 0)
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return &gochart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// xTicks labels every nth hour. go-chart sizes the x axis from the tick
// span, so unlabelled ticks pin both edges half an hour past [0, xMax].
func xTicks(points []model.SeriesPoint, every int, xMax float64) []gochart.Tick {
	if every <= 0 {
		every = 1
	}
	ticks := []gochart.Tick{{Value: -0.5}}
	for i := 0; i < len(points); i += every {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: points[i].Label})
	}
	return append(ticks, gochart.Tick{Value: xMax + 0.5})
}

// yTicks picks a 1/2/2.5/5 step so roughly n ticks span [min, max].
func yTicks(min, max float64, n int, mode model.DisplayMode) []gochart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	best, bestScore := mag, math.MaxFloat64
	for _, c := range []float64{1, 2, 2.5, 5, 10} {
		step := c * mag
		count := math.Ceil(span / step)
		if score := math.Abs(count - float64(n)); score < bestScore {
			best, bestScore = step, score
		}
	}
	var ticks []gochart.Tick
	for v := math.Ceil(min/best) * best; v <= max+best/1e6; v += best {
		if math.Abs(v) < best/1e6 {
			v = 0
		}
		val := v
		ticks = append(ticks, gochart.Tick{Value: v, Label: format.FormatChartValue(&val, mode)})
		if len(ticks) > n+2 {
			break
		}
	}
	return ticks
}

// RenderSummary draws the snapshot fallback values as a bar chart.
func RenderSummary(summary []model.SummaryPoint, opts Options) ([]byte, error) {
	if len(summary) == 0 {
		return nil, ErrNoData
	}
	width, height := opts.size()

	lo, hi := 0.0, 0.0
	bars := make([]gochart.Value, 0, len(summary))
	for _, p := range summary {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
		col := signColor(p.Value)
		bars = append(bars, gochart.Value{
			Label: p.Label,
			Value: p.Value,
			Style: gochart.Style{FillColor: col, StrokeColor: col, StrokeWidth: 1},
		})
	}
	// a single bar cannot be laid out, pad with an empty slot
	if len(bars) == 1 {
		bars = append(bars, gochart.Value{Label: "", Value: 0, Style: gochart.Style{FillColor: drawing.ColorTransparent, StrokeColor: drawing.ColorTransparent}})
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	yr := &gochart.ContinuousRange{Min: lo - pad, Max: hi + pad}

	bc := gochart.BarChart{
		Title:        opts.Title,
		Width:        width,
		Height:       height,
		BarWidth:     width / (len(bars) * 2),
		Background:   gochart.Style{Padding: gochart.Box{Top: 32, Left: 16, Right: 16, Bottom: 16}},
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: gochart.YAxis{
			Range: yr,
			Ticks: yTicks(yr.Min, yr.Max, 6, opts.Mode),
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render summary chart: %w", err)
	}
	return buf.Bytes(), nil
}

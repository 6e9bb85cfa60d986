package model

import (
	"fmt"
	"strings"
	"time"
)

// DisplayMode selects how rates are rendered. It never changes stored values.
type DisplayMode string

const (
	DisplayAnnualized DisplayMode = "apr"
	DisplayHourly     DisplayMode = "hourly"
)

// ParseDisplayMode accepts the wire names plus a few aliases.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "apr", "annualized", "annual":
		return DisplayAnnualized, nil
	case "hourly", "hour", "1h":
		return DisplayHourly, nil
	}
	return "", fmt.Errorf("unknown display mode %q", s)
}

// ChartType selects the visual used for the history chart.
type ChartType string

const (
	ChartLine ChartType = "line"
	ChartBar  ChartType = "bar"
)

// ParseChartType parses a chart type name.
func ParseChartType(s string) (ChartType, error) {
	switch ChartType(strings.ToLower(strings.TrimSpace(s))) {
	case ChartLine:
		return ChartLine, nil
	case ChartBar:
		return ChartBar, nil
	}
	return "", fmt.Errorf("unknown chart type %q", s)
}

// Range is a selectable history window.
type Range string

const (
	Range1d Range = "1d"
	Range1w Range = "1w"
	Range2w Range = "2w"
	Range1m Range = "1m"
	Range2m Range = "2m"
	Range3m Range = "3m"
)

// Ranges lists all selectable ranges in ascending length.
var Ranges = []Range{Range1d, Range1w, Range2w, Range1m, Range2m, Range3m}

var rangeDays = map[Range]int{
	Range1d: 1,
	Range1w: 7,
	Range2w: 14,
	Range1m: 30,
	Range2m: 60,
	Range3m: 90,
}

// rangeLabelEvery is the x-axis label spacing in hours.
var rangeLabelEvery = map[Range]int{
	Range1d: 1,
	Range1w: 6,
	Range2w: 12,
	Range1m: 24,
	Range2m: 48,
	Range3m: 72,
}

// ParseRange parses a range name.
func ParseRange(s string) (Range, error) {
	r := Range(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rangeDays[r]; !ok {
		return "", fmt.Errorf("unknown range %q", s)
	}
	return r, nil
}

// Duration reports the window length; unknown ranges fall back to one day.
func (r Range) Duration() time.Duration {
	days, ok := rangeDays[r]
	if !ok {
		days = 1
	}
	return time.Duration(days) * 24 * time.Hour
}

// LabelEvery reports how many hourly points separate two x-axis labels.
func (r Range) LabelEvery() int {
	if n, ok := rangeLabelEvery[r]; ok {
		return n
	}
	return 72
}

// Package format renders stored annualized rates for display.
package format

import (
	"github.com/shopspring/decimal"

	"fundingboard/internal/model"
)

// NotEnoughData is shown for rates the snapshot could not compute.
const NotEnoughData = "Not enough data"

// NoData is shown on chart axes and tooltips for empty values.
const NoData = "No data"

// Sign classifies a rate for styling.
type Sign string

const (
	SignPositive Sign = "pos"
	SignNegative Sign = "neg"
	SignZero     Sign = "zero"
	SignNone     Sign = "none"
)

// CSSClass returns the stylesheet class used by the dashboard for the sign.
func (s Sign) CSSClass() string {
	switch s {
	case SignPositive:
		return "positive-rate"
	case SignNegative:
		return "negative-rate"
	case SignNone:
		return "no-data"
	default:
		return ""
	}
}

// Formatted is a display string plus its styling class.
type Formatted struct {
	Text string `json:"text"`
	Sign Sign   `json:"sign"`
}

var hoursPerYear = decimal.NewFromInt(model.HoursPerYear)

// FormatRate renders an annualized percentage under mode. A nil rate means
// the snapshot had not enough data for it.
func FormatRate(rate *float64, mode model.DisplayMode) Formatted {
	if rate == nil {
		return Formatted{Text: NotEnoughData, Sign: SignNone}
	}
	return Formatted{Text: number(*rate, mode), Sign: SignOf(*rate)}
}

// FormatChartValue renders a chart axis or tooltip value.
func FormatChartValue(value *float64, mode model.DisplayMode) string {
	if value == nil {
		return NoData
	}
	return number(*value, mode)
}

// SignOf classifies v.
func SignOf(v float64) Sign {
	switch {
	case v > 0:
		return SignPositive
	case v < 0:
		return SignNegative
	default:
		return SignZero
	}
}

func number(rate float64, mode model.DisplayMode) string {
	d := decimal.NewFromFloat(rate)
	if mode == model.DisplayHourly {
		// back to the hourly scale, still as a percentage
		return d.DivRound(hoursPerYear, 16).StringFixed(6) + "%"
	}
	return d.StringFixed(2) + "%"
}

package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fundingboard/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestFormatRate(t *testing.T) {
	cases := []struct {
		name string
		rate *float64
		mode model.DisplayMode
		want Formatted
	}{
		{"nil annualized", nil, model.DisplayAnnualized, Formatted{NotEnoughData, SignNone}},
		{"nil hourly", nil, model.DisplayHourly, Formatted{NotEnoughData, SignNone}},
		{"positive annualized", ptr(12), model.DisplayAnnualized, Formatted{"12.00%", SignPositive}},
		{"positive hourly", ptr(12), model.DisplayHourly, Formatted{"0.001370%", SignPositive}},
		{"negative annualized", ptr(-87.6), model.DisplayAnnualized, Formatted{"-87.60%", SignNegative}},
		{"negative hourly", ptr(-87.6), model.DisplayHourly, Formatted{"-0.010000%", SignNegative}},
		{"zero", ptr(0), model.DisplayAnnualized, Formatted{"0.00%", SignZero}},
		{"zero hourly", ptr(0), model.DisplayHourly, Formatted{"0.000000%", SignZero}},
		{"rounds", ptr(10.456), model.DisplayAnnualized, Formatted{"10.46%", SignPositive}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatRate(tc.rate, tc.mode))
		})
	}
}

func TestFormatChartValue(t *testing.T) {
	assert.Equal(t, NoData, FormatChartValue(nil, model.DisplayAnnualized))
	assert.Equal(t, "87.60%", FormatChartValue(ptr(87.6), model.DisplayAnnualized))
	assert.Equal(t, "0.010000%", FormatChartValue(ptr(87.6), model.DisplayHourly))
}

func TestSignCSSClass(t *testing.T) {
	assert.Equal(t, "positive-rate", SignPositive.CSSClass())
	assert.Equal(t, "negative-rate", SignNegative.CSSClass())
	assert.Equal(t, "", SignZero.CSSClass())
	assert.Equal(t, "no-data", SignNone.CSSClass())
}

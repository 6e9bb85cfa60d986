package model

import "time"

const (
	// HoursPerYear is the annualization factor applied to hourly funding rates.
	HoursPerYear = 24 * 365
	// AnnualizationFactor converts an hourly fraction into an annualized percentage.
	AnnualizationFactor = HoursPerYear * 100
)

// Observation is one raw hourly funding sample as stored in the history log.
// FundingRate is the hourly fraction reported by the exchange.
type Observation struct {
	Coin        string  `json:"coin" parquet:"name=coin, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingRate float64 `json:"fundingRate" parquet:"name=fundingRate, type=DOUBLE"`
	TimestampMs int64   `json:"time" parquet:"name=time, type=INT64"`
}

// Time returns the observation timestamp as a UTC time.
func (o Observation) Time() time.Time {
	return time.UnixMilli(o.TimestampMs).UTC()
}

// AnnualizedPct returns the observation rate as an annualized percentage.
func (o Observation) AnnualizedPct() float64 {
	return Annualize(o.FundingRate)
}

// Annualize converts an hourly fractional rate into an annualized percentage.
func Annualize(hourlyFraction float64) float64 {
	return hourlyFraction * AnnualizationFactor
}

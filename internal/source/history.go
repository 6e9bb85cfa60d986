package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"fundingboard/internal/model"
)

// Column names the history log must carry.
const (
	ColumnCoin        = "coin"
	ColumnFundingRate = "fundingRate"
	ColumnTime        = "time"
)

// Format is the encoding of the history log.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// FormatFor picks the history format from an explicit setting or, when empty
// or "auto", from the URI extension.
func FormatFor(setting, uri string) Format {
	switch strings.ToLower(setting) {
	case string(FormatCSV):
		return FormatCSV
	case string(FormatParquet):
		return FormatParquet
	}
	if strings.EqualFold(path.Ext(uri), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// ParseResult is a parsed history log plus the number of skipped rows.
type ParseResult struct {
	Observations []model.Observation
	Dropped      int
}

// ParseHistory decodes data in the given format.
func ParseHistory(data []byte, format Format) (ParseResult, error) {
	if format == FormatParquet {
		return ParseHistoryParquet(data)
	}
	return ParseHistoryCSV(strings.NewReader(string(data)))
}

// ParseHistoryCSV reads a comma separated log whose header names at least the
// coin, fundingRate and time columns in any order. Blank lines are ignored;
// rows that are too short or carry a non-numeric or non-finite rate or a
// non-numeric time are skipped and counted.
func ParseHistoryCSV(r io.Reader) (ParseResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ParseResult{}, fmt.Errorf("%w: empty history log", ErrMissingColumns)
		}
		return ParseResult{}, fmt.Errorf("read history header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return ParseResult{}, err
	}

	var res ParseResult
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Dropped++
				continue
			}
			return res, fmt.Errorf("read history row: %w", err)
		}
		o, err := idx.parse(rec)
		if err != nil {
			res.Dropped++
			continue
		}
		res.Observations = append(res.Observations, o)
	}
	return res, nil
}

type columns struct {
	coin, rate, time int
}

func columnIndex(header []string) (columns, error) {
	c := columns{coin: -1, rate: -1, time: -1}
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")) {
		case ColumnCoin:
			c.coin = i
		case ColumnFundingRate:
			c.rate = i
		case ColumnTime:
			c.time = i
		}
	}
	if c.coin < 0 || c.rate < 0 || c.time < 0 {
		return c, fmt.Errorf("%w: got %v", ErrMissingColumns, header)
	}
	return c, nil
}

func (c columns) parse(rec []string) (model.Observation, error) {
	if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
		return model.Observation{}, fmt.Errorf("%w: blank line", ErrMalformedRow)
	}
	need := c.coin
	if c.rate > need {
		need = c.rate
	}
	if c.time > need {
		need = c.time
	}
	if len(rec) <= need {
		return model.Observation{}, fmt.Errorf("%w: %d columns", ErrMalformedRow, len(rec))
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(rec[c.rate]), 64)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: rate: %v", ErrMalformedRow, err)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return model.Observation{}, fmt.Errorf("%w: rate: non-finite %q", ErrMalformedRow, rec[c.rate])
	}
	ts, err := parseMillis(rec[c.time])
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: time: %v", ErrMalformedRow, err)
	}
	return model.Observation{
		Coin:        strings.TrimSpace(rec[c.coin]),
		FundingRate: rate,
		TimestampMs: ts,
	}, nil
}

// parseMillis accepts integer milliseconds, tolerating a float rendering
// such as "1710504000000.0".
func parseMillis(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// WriteHistoryCSV writes observations with the canonical header.
func WriteHistoryCSV(w io.Writer, observations []model.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnCoin, ColumnFundingRate, ColumnTime}); err != nil {
		return fmt.Errorf("write history header: %w", err)
	}
	for _, o := range observations {
		rec := []string{
			o.Coin,
			strconv.FormatFloat(o.FundingRate, 'g', -1, 64),
			strconv.FormatInt(o.TimestampMs, 10),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write history row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

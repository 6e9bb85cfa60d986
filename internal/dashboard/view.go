package dashboard

import (
	"fundingboard/internal/format"
	"fundingboard/internal/model"
)

// cellView is one formatted rate cell. Value keeps the stored annualized
// percentage so the browser can sort on it.
type cellView struct {
	Value *float64    `json:"value"`
	Text  string      `json:"text"`
	Sign  format.Sign `json:"sign"`
	Class string      `json:"class,omitempty"`
}

type rowView struct {
	Coin    string   `json:"coin"`
	IsNew   bool     `json:"is_new"`
	Latest  cellView `json:"latest"`
	Carry1d cellView `json:"carry_1d"`
	Carry3d cellView `json:"carry_3d"`
	Carry5d cellView `json:"carry_5d"`
}

type columnView struct {
	Key   string
	Title string
}

var tableColumns = []columnView{
	{Key: "coin", Title: "Coin"},
	{Key: "latest", Title: "Latest Funding"},
	{Key: "carry_1d", Title: "1-Day Carry"},
	{Key: "carry_3d", Title: "3-Day Carry"},
	{Key: "carry_5d", Title: "5-Day Carry"},
}

func newCell(v *float64, mode model.DisplayMode) cellView {
	f := format.FormatRate(v, mode)
	return cellView{Value: v, Text: f.Text, Sign: f.Sign, Class: f.Sign.CSSClass()}
}

func newRowViews(rows []model.CoinRow, mode model.DisplayMode) []rowView {
	out := make([]rowView, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowView{
			Coin:    r.Coin,
			IsNew:   r.IsNew,
			Latest:  newCell(r.LatestRate, mode),
			Carry1d: newCell(r.Avg1d, mode),
			Carry3d: newCell(r.Avg3d, mode),
			Carry5d: newCell(r.Avg5d, mode),
		})
	}
	return out
}

type pointView struct {
	model.SeriesPoint
	Text string `json:"text"`
}

func newPointViews(points []model.SeriesPoint, mode model.DisplayMode) []pointView {
	out := make([]pointView, 0, len(points))
	for _, p := range points {
		var v *float64
		if p.Observed() {
			val := p.Value
			v = &val
		}
		out = append(out, pointView{SeriesPoint: p, Text: format.FormatChartValue(v, mode)})
	}
	return out
}

type summaryView struct {
	model.SummaryPoint
	Text string `json:"text"`
}

func newSummaryViews(summary []model.SummaryPoint, mode model.DisplayMode) []summaryView {
	out := make([]summaryView, 0, len(summary))
	for _, p := range summary {
		val := p.Value
		out = append(out, summaryView{SummaryPoint: p, Text: format.FormatChartValue(&val, mode)})
	}
	return out
}

var rangeTitles = map[model.Range]string{
	model.Range1d: "1 Day",
	model.Range1w: "1 Week",
	model.Range2w: "2 Weeks",
	model.Range1m: "1 Month",
	model.Range2m: "2 Months",
	model.Range3m: "3 Months",
}

type optionView struct {
	Value    string
	Title    string
	Selected bool
}

func rangeOptions(selected model.Range) []optionView {
	out := make([]optionView, 0, len(model.Ranges))
	for _, r := range model.Ranges {
		out = append(out, optionView{Value: string(r), Title: rangeTitles[r], Selected: r == selected})
	}
	return out
}

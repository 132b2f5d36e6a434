package alphavantage

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

// DailyRow is one line of the TIME_SERIES_DAILY CSV. Values stay text so
// blanks survive decoding as missing.
type DailyRow struct {
	Timestamp string `csv:"timestamp"`
	Open      string `csv:"open"`
	High      string `csv:"high"`
	Low       string `csv:"low"`
	Close     string `csv:"close"`
	Volume    string `csv:"volume"`
}

// ParseDaily decodes a TIME_SERIES_DAILY CSV and returns the bars in
// ascending timestamp order. Unparseable or blank prices become NaN.
func ParseDaily(r io.Reader) ([]model.PriceBar, error) {
	var rows []*DailyRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding daily csv: %w", err)
	}

	bars := make([]model.PriceBar, 0, len(rows))
	for i, row := range rows {
		ts, err := time.Parse(model.DateLayout, row.Timestamp)
		if err != nil {
			return nil, &frame.SchemaError{Stage: "alphavantage", Column: "timestamp", Reason: fmt.Sprintf("row %d: unparseable date %q", i+1, row.Timestamp)}
		}
		bars = append(bars, model.PriceBar{
			Time:   ts,
			Open:   number(row.Open),
			High:   number(row.High),
			Low:    number(row.Low),
			Close:  number(row.Close),
			Volume: number(row.Volume),
		})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
	return bars, nil
}

// WriteDaily encodes bars in the TIME_SERIES_DAILY CSV layout
func WriteDaily(w io.Writer, bars []model.PriceBar) error {
	rows := make([]*DailyRow, len(bars))
	for i, b := range bars {
		rows[i] = &DailyRow{
			Timestamp: b.Time.Format(model.DateLayout),
			Open:      text(b.Open),
			High:      text(b.High),
			Low:       text(b.Low),
			Close:     text(b.Close),
			Volume:    text(b.Volume),
		}
	}
	return gocsv.Marshal(rows, w)
}

func number(raw string) float64 {
	v, ok := frame.ParseValue(raw)
	if !ok {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func text(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

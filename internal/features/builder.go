// Package features derives technical indicators and financial ratios from
// merged rows and selects the model feature set.
package features

import (
	"fmt"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

const stage = "features"

// Stats counts soft conditions met while deriving features
type Stats struct {
	Rows           int
	WarmupRows     int // rows without a full 50-row window
	DivisionByZero int
}

// Builder derives feature tables. Ratios enables the balance-sheet ratios.
type Builder struct {
	Ratios bool
}

// NewBuilder returns a builder configured for a statement category
func NewBuilder(c model.Category) Builder {
	return Builder{Ratios: c.IncludeRatios()}
}

// Schema returns the column set produced for a variant
func (b Builder) Schema(v Variant) Schema {
	return NewSchema(v, b.Ratios)
}

// Derive adds the moving averages and, when enabled, the ratios to a copy
// of t. Rows must be in ascending timestamp order.
func (b Builder) Derive(t *frame.Table) (*frame.Table, Stats, error) {
	stats := Stats{Rows: t.Rows()}
	out := t.Clone()

	closes, err := out.Numeric(stage, Close)
	if err != nil {
		return nil, stats, err
	}
	ma50 := MovingAverage(closes, 50)
	if err := out.SetNumeric(MA10, MovingAverage(closes, 10)); err != nil {
		return nil, stats, err
	}
	if err := out.SetNumeric(MA50, ma50); err != nil {
		return nil, stats, err
	}
	stats.WarmupRows = min(49, t.Rows())

	if !b.Ratios {
		return out, stats, nil
	}

	pairs := []struct {
		name     string
		num, den string
	}{
		{Current, TotalCurrentAssets, TotalCurrentLiabilities},
		{DebtEq, TotalLiabilities, TotalShareholderEquity},
	}
	for _, p := range pairs {
		num, err := out.Numeric(stage, p.num)
		if err != nil {
			return nil, stats, err
		}
		den, err := out.Numeric(stage, p.den)
		if err != nil {
			return nil, stats, err
		}
		ratio, zeroDiv := Ratio(num, den)
		stats.DivisionByZero += zeroDiv
		if err := out.SetNumeric(p.name, ratio); err != nil {
			return nil, stats, err
		}
	}
	return out, stats, nil
}

// Build derives features and selects the variant's columns
func (b Builder) Build(t *frame.Table, v Variant) (*frame.Table, Stats, error) {
	derived, stats, err := b.Derive(t)
	if err != nil {
		return nil, stats, err
	}
	selected, err := derived.Select(stage, b.Schema(v).Columns)
	if err != nil {
		return nil, stats, fmt.Errorf("selecting %s features: %w", v, err)
	}
	return selected, stats, nil
}

// TableFromBars builds a table with the bar columns from raw daily bars
func TableFromBars(bars []model.PriceBar) *frame.Table {
	t := frame.New(len(bars))
	t.CategoricalFunc("timestamp", func(i int) string { return bars[i].Time.Format(model.DateLayout) })
	t.NumericFunc(Open, func(i int) float64 { return bars[i].Open })
	t.NumericFunc(High, func(i int) float64 { return bars[i].High })
	t.NumericFunc(Low, func(i int) float64 { return bars[i].Low })
	t.NumericFunc(Close, func(i int) float64 { return bars[i].Close })
	t.NumericFunc(Volume, func(i int) float64 { return bars[i].Volume })
	return t
}

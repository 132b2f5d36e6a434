package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used by Alpha Vantage for both
// daily timestamps and fiscal period endings.
const DateLayout = "2006-01-02"

// PriceBar represents one trading day of OHLCV data
type PriceBar struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// StatementRecord is a single fiscal period of a fundamentals statement.
// Values are kept as delivered by the provider; Keys preserves field order.
type StatementRecord struct {
	FiscalDateEnding time.Time
	Keys             []string
	Fields           map[string]string
}

// Value returns the raw value of a statement field
func (r StatementRecord) Value(key string) (string, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Category identifies a fundamentals statement type
type Category string

const (
	BalanceSheet Category = "BalanceSheet"
	CashFlow     Category = "CashFlow"
	Earnings     Category = "Earnings"
	Income       Category = "Income"
)

// Categories lists every statement category in pipeline order
var Categories = []Category{BalanceSheet, CashFlow, Earnings, Income}

// CategoryInfo describes how a category is fetched and merged
type CategoryInfo struct {
	Function     string // Alpha Vantage function name
	QuarterlyKey string
	Ratios       bool // balance-sheet-like: derive financial ratios
}

var categoryInfo = map[Category]CategoryInfo{
	BalanceSheet: {Function: "BALANCE_SHEET", QuarterlyKey: "quarterlyReports", Ratios: true},
	CashFlow:     {Function: "CASH_FLOW", QuarterlyKey: "quarterlyReports"},
	Earnings:     {Function: "EARNINGS", QuarterlyKey: "quarterlyEarnings"},
	Income:       {Function: "INCOME_STATEMENT", QuarterlyKey: "quarterlyReports"},
}

// Info returns the fetch/merge description of the category
func (c Category) Info() (CategoryInfo, error) {
	info, ok := categoryInfo[c]
	if !ok {
		return CategoryInfo{}, fmt.Errorf("unknown category %q", string(c))
	}
	return info, nil
}

// IncludeRatios reports whether financial ratios are derived for the category
func (c Category) IncludeRatios() bool {
	return categoryInfo[c].Ratios
}

// Decision is the trading action derived from the ensemble score
type Decision string

const (
	Buy  Decision = "Buy"
	Sell Decision = "Sell"
	Hold Decision = "Hold"
)

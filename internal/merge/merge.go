// Package merge aligns irregularly dated fundamentals statements with a
// daily price series.
//
// Each bar is paired with the statement carrying the largest fiscal date
// among those dated on or after the bar. This deliberately looks ahead:
// models are trained on exactly this join, so it must not be replaced with a
// conventional "latest preceding filing" as-of join without retraining.
package merge

import (
	"time"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

const stage = "merge"

// Bar columns, in output order
const (
	ColTimestamp = "timestamp"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
	ColVolume    = "volume"

	ColFiscalDateEnding = "fiscalDateEnding"
)

// BarColumns lists the price columns carried into every merged table
var BarColumns = []string{ColTimestamp, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Stats counts rows handled by a merge
type Stats struct {
	Bars    int
	Merged  int
	Dropped int // bars with no statement dated on or after them
}

// Result is the merged table for one category
type Result struct {
	Table *frame.Table
	Times []time.Time
	Stats Stats
}

// Select returns the index of the statement chosen for a bar dated ts, or -1
// when no statement has fiscalDateEnding >= ts. Among qualifying statements
// the largest fiscal date wins; equal dates resolve to the later one in
// input order.
func Select(statements []model.StatementRecord, ts time.Time) int {
	best := -1
	for i, s := range statements {
		if s.FiscalDateEnding.Before(ts) {
			continue
		}
		if best < 0 || !s.FiscalDateEnding.Before(statements[best].FiscalDateEnding) {
			best = i
		}
	}
	return best
}

// Merge pairs every bar with its selected statement. bars must be in
// ascending timestamp order; the output keeps that order. Bars without a
// qualifying statement are dropped.
func Merge(bars []model.PriceBar, statements []model.StatementRecord) *Result {
	stats := Stats{Bars: len(bars)}

	var kept []model.PriceBar
	var picks []int
	for _, bar := range bars {
		idx := Select(statements, bar.Time)
		if idx < 0 {
			stats.Dropped++
			continue
		}
		kept = append(kept, bar)
		picks = append(picks, idx)
	}
	stats.Merged = len(kept)

	t := frame.New(len(kept))
	times := make([]time.Time, len(kept))
	for i, bar := range kept {
		times[i] = bar.Time
	}
	t.CategoricalFunc(ColTimestamp, func(i int) string { return kept[i].Time.Format(model.DateLayout) })
	t.NumericFunc(ColOpen, func(i int) float64 { return kept[i].Open })
	t.NumericFunc(ColHigh, func(i int) float64 { return kept[i].High })
	t.NumericFunc(ColLow, func(i int) float64 { return kept[i].Low })
	t.NumericFunc(ColClose, func(i int) float64 { return kept[i].Close })
	t.NumericFunc(ColVolume, func(i int) float64 { return kept[i].Volume })

	for _, key := range statementKeys(statements, picks) {
		if t.Has(key) {
			continue
		}
		if key == ColFiscalDateEnding {
			t.CategoricalFunc(key, func(i int) string {
				return statements[picks[i]].FiscalDateEnding.Format(model.DateLayout)
			})
			continue
		}
		t.ParsedFunc(key, func(i int) string { return statements[picks[i]].Fields[key] })
	}

	return &Result{Table: t, Times: times, Stats: stats}
}

// statementKeys returns the union of field names of the selected statements
// in first-seen order, with fiscalDateEnding first.
func statementKeys(statements []model.StatementRecord, picks []int) []string {
	if len(picks) == 0 {
		return nil
	}
	seen := map[string]bool{ColFiscalDateEnding: true}
	keys := []string{ColFiscalDateEnding}
	visited := make(map[int]bool)
	for _, idx := range picks {
		if visited[idx] {
			continue
		}
		visited[idx] = true
		for _, k := range statements[idx].Keys {
			if seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Timestamps parses the timestamp column of a merged table
func Timestamps(t *frame.Table) ([]time.Time, error) {
	c, ok := t.Column(ColTimestamp)
	if !ok {
		return nil, &frame.SchemaError{Stage: stage, Column: ColTimestamp}
	}
	if c.Kind != frame.Categorical {
		return nil, &frame.SchemaError{Stage: stage, Column: ColTimestamp, Reason: "not a date column"}
	}
	out := make([]time.Time, c.Len())
	for i := 0; i < c.Len(); i++ {
		raw := c.Str[i]
		ts, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return nil, &frame.SchemaError{Stage: stage, Column: ColTimestamp, Reason: "unparseable timestamp " + raw}
		}
		out[i] = ts
	}
	return out, nil
}

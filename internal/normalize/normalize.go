// Package normalize fills missing values and standardizes feature tables
// into dense matrices. All statistics come from the table being processed.
package normalize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"stockcast/internal/frame"
)

const stage = "normalize"

// AllMissingColumnError reports a column with no values to fill from
type AllMissingColumnError struct {
	Column string
}

func (e *AllMissingColumnError) Error() string {
	return fmt.Sprintf("%s: column %q is entirely missing", stage, e.Column)
}

// Report counts imputed cells
type Report struct {
	Filled     map[string]int // first pass, per column
	SecondPass int            // cells imputed after scaling
}

// Total returns the number of imputed cells over both passes
func (r Report) Total() int {
	n := r.SecondPass
	for _, c := range r.Filled {
		n += c
	}
	return n
}

// Fill replaces missing values in place: numeric columns with the column
// mean, categorical columns with the column mode. columns restricts the
// columns filled; nil fills every column.
func Fill(t *frame.Table, columns []string) (map[string]int, error) {
	targets := t.Columns()
	if columns != nil {
		targets = make([]*frame.Column, 0, len(columns))
		for _, name := range columns {
			c, ok := t.Column(name)
			if !ok {
				return nil, &frame.SchemaError{Stage: stage, Column: name}
			}
			targets = append(targets, c)
		}
	}

	filled := make(map[string]int)
	for _, c := range targets {
		missing := c.MissingCount()
		if missing == 0 {
			continue
		}
		if missing == c.Len() {
			return nil, &AllMissingColumnError{Column: c.Name}
		}
		if c.Kind == frame.Categorical {
			m := Mode(c.Str)
			for i, v := range c.Str {
				if v == "" {
					c.Str[i] = m
				}
			}
		} else {
			m := Mean(c.Num)
			for i, v := range c.Num {
				if math.IsNaN(v) {
					c.Num[i] = m
				}
			}
		}
		filled[c.Name] = missing
	}
	return filled, nil
}

// Normalize fills a copy of t, standardizes every column to zero mean and
// unit population variance, and imputes anything left missing after
// scaling with the column mean. Every column must be numeric.
func Normalize(t *frame.Table) (*frame.Matrix, Report, error) {
	work := t.Clone()
	filled, err := Fill(work, nil)
	if err != nil {
		return nil, Report{}, err
	}
	report := Report{Filled: filled}

	cols := work.Columns()
	for _, c := range cols {
		if c.Kind != frame.Numeric {
			return nil, report, &frame.SchemaError{Stage: stage, Column: c.Name, Reason: "cannot scale a categorical column"}
		}
		Standardize(c.Num)
	}

	for _, c := range cols {
		missing := 0
		for _, v := range c.Num {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				missing++
			}
		}
		if missing == 0 {
			continue
		}
		if missing == len(c.Num) {
			return nil, report, &AllMissingColumnError{Column: c.Name}
		}
		m := Mean(c.Num)
		for i, v := range c.Num {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				c.Num[i] = m
			}
		}
		report.SecondPass += missing
	}

	m := &frame.Matrix{Columns: work.Names(), Data: make([][]float64, work.Rows())}
	for i := range m.Data {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c.Num[i]
		}
		m.Data[i] = row
	}
	return m, report, nil
}

// Standardize scales values in place to zero mean and unit population
// variance. A constant column scales by 1 and becomes all zeros. Missing
// entries are skipped when fitting and stay missing.
func Standardize(values []float64) {
	present := finite(values)
	if len(present) == 0 {
		return
	}
	mean, variance := stat.PopMeanVariance(present, nil)
	scale := math.Sqrt(variance)
	if scale == 0 || math.IsNaN(scale) {
		scale = 1
	}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		values[i] = (v - mean) / scale
	}
}

// Mean returns the mean of the finite entries, NaN when there are none
func Mean(values []float64) float64 {
	present := finite(values)
	if len(present) == 0 {
		return math.NaN()
	}
	return stat.Mean(present, nil)
}

// Mode returns the most frequent non-empty value. Ties resolve to the
// lexicographically smallest value.
func Mode(values []string) string {
	counts := make(map[string]int)
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := "", 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

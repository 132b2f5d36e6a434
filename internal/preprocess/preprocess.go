// Package preprocess trims raw downloads to the data the pipeline uses: a
// date window of daily bars and the quarterly statement records.
package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

const stage = "preprocess"

// Default date window
var (
	DefaultStart = time.Date(2018, 9, 28, 0, 0, 0, 0, time.UTC)
	DefaultEnd   = time.Date(2023, 9, 29, 0, 0, 0, 0, time.UTC)
)

// FilterBars keeps bars with start <= ts <= end. A zero bound is open.
func FilterBars(bars []model.PriceBar, start, end time.Time) []model.PriceBar {
	out := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// QuarterlyOnly decodes a statement payload, discarding the annual
// collection, and returns the quarterly records sorted by fiscal date
// (stable, so duplicates keep payload order).
func QuarterlyOnly(payload []byte, c model.Category) ([]model.StatementRecord, error) {
	info, err := c.Info()
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("%s: decoding %s payload: %w", stage, c, err)
	}
	raw, ok := top[info.QuarterlyKey]
	if !ok {
		return nil, &frame.SchemaError{Stage: stage, Column: info.QuarterlyKey, Reason: fmt.Sprintf("%s payload has no quarterly collection", c)}
	}

	var records []model.StatementRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		if errors.Is(err, model.ErrNoFiscalDate) {
			return nil, &frame.SchemaError{Stage: stage, Column: model.FiscalDateKey, Reason: err.Error()}
		}
		return nil, fmt.Errorf("%s: decoding %s records: %w", stage, c, err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].FiscalDateEnding.Before(records[j].FiscalDateEnding)
	})
	return records, nil
}

// Payload re-encodes quarterly records under the category's quarterly key
func Payload(symbol string, c model.Category, records []model.StatementRecord) ([]byte, error) {
	info, err := c.Info()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.StatementRecord{}
	}
	return json.MarshalIndent(map[string]interface{}{
		"symbol":          symbol,
		info.QuarterlyKey: records,
	}, "", "  ")
}

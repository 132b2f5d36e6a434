package training

import (
	"fmt"

	"stockcast/internal/features"
	"stockcast/internal/frame"
	"stockcast/internal/normalize"
)

// Prepared is a feature matrix ready for fitting or prediction
type Prepared struct {
	Matrix   *frame.Matrix
	Schema   features.Schema
	Features features.Stats
	Prefill  map[string]int
	Imputed  normalize.Report
	// RawTarget holds the close column as it was before any filling, so
	// rows with no observed target can be dropped. Training variant only.
	RawTarget []float64
}

// Prepare runs the shared feature path for training and inference: fill the
// builder's source columns, derive and select the variant's features, then
// normalize. t is not modified.
func Prepare(t *frame.Table, b features.Builder, v features.Variant) (*Prepared, error) {
	p := &Prepared{Schema: b.Schema(v)}

	if v == features.Training {
		raw, err := t.Numeric("training", features.Close)
		if err != nil {
			return nil, err
		}
		p.RawTarget = append([]float64(nil), raw...)
	}

	work := t.Clone()
	filled, err := normalize.Fill(work, features.SourceColumns(b.Ratios))
	if err != nil {
		return nil, fmt.Errorf("filling source columns: %w", err)
	}
	p.Prefill = filled

	selected, stats, err := b.Build(work, v)
	if err != nil {
		return nil, err
	}
	p.Features = stats

	m, report, err := normalize.Normalize(selected)
	if err != nil {
		return nil, err
	}
	p.Matrix = m
	p.Imputed = report
	return p, nil
}

func (p *Prepared) quality(dropped int) Quality {
	q := Quality{
		SecondPass:      p.Imputed.SecondPass,
		DivisionByZero:  p.Features.DivisionByZero,
		DroppedNoTarget: dropped,
	}
	for _, n := range p.Prefill {
		q.Prefilled += n
	}
	q.Imputed = p.Imputed.Total() - p.Imputed.SecondPass
	return q
}

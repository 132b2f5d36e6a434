// Package ensemble averages the category models' predictions and maps the
// averaged score to a trading decision.
package ensemble

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockcast/internal/features"
	"stockcast/internal/frame"
	"stockcast/internal/training"
	"stockcast/pkg/model"
)

// Default decision thresholds
const (
	DefaultBuyThreshold  = 0.4
	DefaultSellThreshold = -0.4
)

// Thresholds map an averaged score to a decision. Comparisons are strict.
type Thresholds struct {
	Buy  float64 `yaml:"buy" default:"0.4"`
	Sell float64 `yaml:"sell" default:"-0.4" validate:"ltfield=Buy"`
}

// DefaultThresholds returns the fixed 0.4 / -0.4 thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Buy: DefaultBuyThreshold, Sell: DefaultSellThreshold}
}

// Decide maps a score to Buy above the buy threshold, Sell below the sell
// threshold and Hold otherwise.
func (th Thresholds) Decide(v float64) model.Decision {
	switch {
	case v > th.Buy:
		return model.Buy
	case v < th.Sell:
		return model.Sell
	default:
		return model.Hold
	}
}

// Bundle holds each category's per-row predictions
type Bundle map[model.Category][]float64

// AlignmentError reports prediction sequences of unequal length
type AlignmentError struct {
	Lengths map[model.Category]int
}

func (e *AlignmentError) Error() string {
	parts := make([]string, 0, len(e.Lengths))
	for c, n := range e.Lengths {
		parts = append(parts, fmt.Sprintf("%s=%d", c, n))
	}
	sort.Strings(parts)
	return "ensemble: prediction lengths differ: " + strings.Join(parts, ", ")
}

// Average returns the row-wise arithmetic mean over all categories in the
// bundle, summed in category name order. Every sequence must have the same
// length.
func Average(b Bundle) ([]float64, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("ensemble: empty prediction bundle")
	}
	n := -1
	aligned := true
	lengths := make(map[model.Category]int, len(b))
	for c, preds := range b {
		lengths[c] = len(preds)
		if n >= 0 && len(preds) != n {
			aligned = false
		}
		n = len(preds)
	}
	if !aligned {
		return nil, &AlignmentError{Lengths: lengths}
	}

	// Fixed summation order keeps scores bit-identical across runs.
	keys := make([]model.Category, 0, len(b))
	for c := range b {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]float64, n)
	for _, c := range keys {
		for i, v := range b[c] {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(b))
	}
	return out, nil
}

// Input is the data a category model predicts over
type Input struct {
	Table *frame.Table
	Times []time.Time // optional, one per row
}

// Row is one decision of the inference batch
type Row struct {
	Time     time.Time      `json:"timestamp,omitempty"`
	Score    float64        `json:"score"`
	Decision model.Decision `json:"decision"`
}

// Result is the output of an inference run
type Result struct {
	Bundle Bundle `json:"-"`
	Rows   []Row  `json:"rows"`
}

// Decisions returns the decision labels in row order
func (r *Result) Decisions() []model.Decision {
	out := make([]model.Decision, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Decision
	}
	return out
}

// Counts tallies decisions
func (r *Result) Counts() map[model.Decision]int {
	out := make(map[model.Decision]int, 3)
	for _, row := range r.Rows {
		out[row.Decision]++
	}
	return out
}

// Predictor runs trained category models over fresh data
type Predictor struct {
	artifacts  map[model.Category]*training.Artifact
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewPredictor creates a predictor over one artifact per category
func NewPredictor(artifacts map[model.Category]*training.Artifact, th Thresholds, logger zerolog.Logger) *Predictor {
	return &Predictor{
		artifacts:  artifacts,
		thresholds: th,
		logger:     logger.With().Str("component", "ensemble").Logger(),
	}
}

// PredictCategory builds the inference matrix for one category and runs its
// model. The artifact's recorded schema must match the matrix columns.
func (p *Predictor) PredictCategory(c model.Category, t *frame.Table) ([]float64, error) {
	art, ok := p.artifacts[c]
	if !ok {
		return nil, fmt.Errorf("ensemble: no model for category %s", c)
	}
	prep, err := training.Prepare(t, features.NewBuilder(c), features.Inference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	if !art.Schema.Equal(features.Schema{Columns: prep.Matrix.Columns}) {
		return nil, &frame.SchemaError{
			Stage:  "ensemble",
			Column: strings.Join(prep.Matrix.Columns, ","),
			Reason: fmt.Sprintf("%s model was trained on %v", c, art.Schema.Columns),
		}
	}
	reg, err := art.Model()
	if err != nil {
		return nil, err
	}
	preds, err := reg.Predict(prep.Matrix.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	p.logger.Debug().
		Str("category", string(c)).
		Int("rows", len(preds)).
		Int("imputed", prep.Imputed.Total()).
		Int("division_by_zero", prep.Features.DivisionByZero).
		Msg("category predicted")
	return preds, nil
}

// Run predicts every category in categories, averages and decides
func (p *Predictor) Run(categories []model.Category, inputs map[model.Category]Input) (*Result, error) {
	bundle := make(Bundle, len(categories))
	var times []time.Time
	for _, c := range categories {
		in, ok := inputs[c]
		if !ok {
			return nil, fmt.Errorf("ensemble: no input for category %s", c)
		}
		preds, err := p.PredictCategory(c, in.Table)
		if err != nil {
			return nil, err
		}
		bundle[c] = preds
		if times == nil && len(in.Times) == len(preds) {
			times = in.Times
		}
	}

	avg, err := Average(bundle)
	if err != nil {
		return nil, err
	}
	res := &Result{Bundle: bundle, Rows: make([]Row, len(avg))}
	for i, v := range avg {
		res.Rows[i] = Row{Score: v, Decision: p.thresholds.Decide(v)}
		if times != nil {
			res.Rows[i].Time = times[i]
		}
	}
	return res, nil
}

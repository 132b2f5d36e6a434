// Package training fits one regression model per statement category and
// packages it as a persistable artifact.
//
// By default the target is the close standardized with the same batch
// statistics as the features, not the pre-scaling close. The ensemble's
// ±0.4 thresholds are in those standard-deviation units. Config.Target
// "raw" trains on the close as observed.
package training

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockcast/internal/features"
	"stockcast/internal/frame"
	"stockcast/internal/regression"
	"stockcast/pkg/model"
)

// Target modes
const (
	TargetStandardized = "standardized"
	TargetRaw          = "raw"
)

// Config controls the split and the model
type Config struct {
	TestFraction float64           `yaml:"test_fraction" default:"0.2" validate:"gt=0,lt=1"`
	Seed         int64             `yaml:"seed" default:"42"`
	Target       string            `yaml:"target" default:"standardized" validate:"oneof=standardized raw"`
	Model        regression.Config `yaml:"model"`
}

// Quality counts the soft conditions met while preparing training data
type Quality struct {
	Prefilled       int `json:"prefilled"`
	Imputed         int `json:"imputed"`
	SecondPass      int `json:"second_pass"`
	DivisionByZero  int `json:"division_by_zero"`
	DroppedNoTarget int `json:"dropped_no_target"`
}

// Artifact is a fitted model together with the schema it was trained on
type Artifact struct {
	Category  model.Category     `json:"category"`
	Kind      string             `json:"kind"`
	Schema    features.Schema    `json:"schema"`
	Target    string             `json:"target"`
	Metrics   regression.Metrics `json:"metrics"`
	Quality   Quality            `json:"quality"`
	RunID     string             `json:"run_id"`
	TrainedAt time.Time          `json:"trained_at"`
	Params    json.RawMessage    `json:"params"`

	model regression.Regressor
}

// Model returns the fitted regressor, decoding it on first use
func (a *Artifact) Model() (regression.Regressor, error) {
	if a.model != nil {
		return a.model, nil
	}
	m, err := regression.Decode(a.Kind, a.Params)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", a.Category, err)
	}
	a.model = m
	return m, nil
}

// Trainer fits category models
type Trainer struct {
	cfg    Config
	runID  string
	logger zerolog.Logger
}

// NewTrainer creates a trainer; all artifacts it produces share one run id
func NewTrainer(cfg Config, logger zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:    cfg,
		runID:  uuid.NewString(),
		logger: logger.With().Str("component", "training").Logger(),
	}
}

// RunID identifies the training run
func (t *Trainer) RunID() string { return t.runID }

// Train fits the category model on a merged table (rows in ascending
// timestamp order) and evaluates it on a held-out split.
func (t *Trainer) Train(category model.Category, merged *frame.Table) (*Artifact, error) {
	b := features.NewBuilder(category)
	prep, err := Prepare(merged, b, features.Training)
	if err != nil {
		return nil, err
	}

	X, scaledTarget, err := prep.Matrix.Split("training", prep.Schema.Target)
	if err != nil {
		return nil, err
	}
	inference := b.Schema(features.Inference)
	if !inference.Equal(features.Schema{Columns: X.Columns}) {
		return nil, &frame.SchemaError{
			Stage:  "training",
			Column: fmt.Sprint(X.Columns),
			Reason: fmt.Sprintf("training features do not match inference schema %v", inference.Columns),
		}
	}

	y := scaledTarget
	if t.cfg.Target == TargetRaw {
		y = prep.RawTarget
	}

	rows := make([][]float64, 0, X.Rows())
	targets := make([]float64, 0, X.Rows())
	dropped := 0
	for i, row := range X.Data {
		if math.IsNaN(prep.RawTarget[i]) {
			dropped++
			continue
		}
		rows = append(rows, row)
		targets = append(targets, y[i])
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no rows with an observed close to train on", category)
	}

	split, err := regression.TrainTestSplit(len(rows), t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", category, err)
	}
	xTrain, yTrain := regression.Take(rows, targets, split.Train)
	xTest, yTest := regression.Take(rows, targets, split.Test)

	reg, err := regression.New(t.cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := reg.Fit(xTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fitting %s model: %w", category, err)
	}
	pred, err := reg.Predict(xTest)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s model: %w", category, err)
	}
	metrics := regression.Metrics{
		MSE:       regression.MeanSquaredError(yTest, pred),
		R2:        regression.RSquared(yTest, pred),
		TrainRows: len(xTrain),
		TestRows:  len(xTest),
	}

	params, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s model: %w", category, err)
	}

	t.logger.Info().
		Str("category", string(category)).
		Str("model", reg.Kind()).
		Float64("mse", metrics.MSE).
		Float64("r2", metrics.R2).
		Int("train_rows", metrics.TrainRows).
		Int("test_rows", metrics.TestRows).
		Int("dropped_no_target", dropped).
		Int("imputed", prep.Imputed.Total()).
		Msg("model trained")

	target := t.cfg.Target
	if target == "" {
		target = TargetStandardized
	}
	return &Artifact{
		Category:  category,
		Kind:      reg.Kind(),
		Schema:    inference,
		Target:    target,
		Metrics:   metrics,
		Quality:   prep.quality(dropped),
		RunID:     t.runID,
		TrainedAt: time.Now().UTC(),
		Params:    params,
		model:     reg,
	}, nil
}

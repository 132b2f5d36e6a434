// Package regression provides the supervised models fitted per statement
// category. Models are interchangeable behind Regressor and serialize to JSON.
package regression

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Model kinds
const (
	KindForest = "forest"
	KindRidge  = "ridge"
)

// ErrNotFitted is returned by Predict before Fit succeeded
var ErrNotFitted = errors.New("model is not fitted")

// Regressor is a fit/predict model over dense rows
type Regressor interface {
	Kind() string
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// Config selects and parameterizes a regressor
type Config struct {
	Kind   string       `yaml:"kind" default:"forest" validate:"oneof=forest ridge"`
	Forest ForestConfig `yaml:"forest"`
	Ridge  RidgeConfig  `yaml:"ridge"`
}

// New builds an unfitted regressor
func New(cfg Config) (Regressor, error) {
	switch cfg.Kind {
	case KindForest, "":
		return NewForest(cfg.Forest), nil
	case KindRidge:
		return NewRidge(cfg.Ridge), nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", cfg.Kind)
	}
}

// Decode restores a fitted regressor from its serialized parameters
func Decode(kind string, params json.RawMessage) (Regressor, error) {
	var r Regressor
	switch kind {
	case KindForest:
		r = &Forest{}
	case KindRidge:
		r = &Ridge{}
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
	if err := json.Unmarshal(params, r); err != nil {
		return nil, fmt.Errorf("decoding %s model: %w", kind, err)
	}
	return r, nil
}

// Split holds a train/test partition of row indices
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices with a fixed seed and holds out
// ceil(testFrac*n) of them for testing.
func TrainTestSplit(n int, testFrac float64, seed int64) (Split, error) {
	if testFrac <= 0 || testFrac >= 1 {
		return Split{}, fmt.Errorf("test fraction %v out of range (0,1)", testFrac)
	}
	nTest := int(math.Ceil(testFrac * float64(n)))
	if n-nTest < 1 || nTest < 1 {
		return Split{}, fmt.Errorf("cannot split %d rows with test fraction %v", n, testFrac)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return Split{Train: perm[nTest:], Test: perm[:nTest]}, nil
}

// Take returns the rows and targets at the given indices
func Take(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

// Metrics reports model accuracy on held-out rows
type Metrics struct {
	MSE       float64 `json:"mse"`
	R2        float64 `json:"r2"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// MeanSquaredError of predictions against actual values
func MeanSquaredError(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	diff := make([]float64, len(actual))
	floats.SubTo(diff, actual, predicted)
	return floats.Dot(diff, diff) / float64(len(diff))
}

// RSquared is the coefficient of determination. A constant target scores 1
// when predicted exactly and 0 otherwise.
func RSquared(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if stat.PopVariance(actual, nil) == 0 {
		if MeanSquaredError(actual, predicted) == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

func checkShape(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("no training rows")
	}
	if y != nil && len(X) != len(y) {
		return 0, fmt.Errorf("%d rows but %d targets", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return width, nil
}

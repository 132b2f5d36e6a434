package regression

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// RidgeConfig parameterizes ridge regression
type RidgeConfig struct {
	Lambda float64 `yaml:"lambda" json:"lambda" default:"1" validate:"gte=0"`
}

// Ridge is an L2-regularized least-squares model with an unpenalized intercept
type Ridge struct {
	Config    RidgeConfig `json:"config"`
	Coef      []float64   `json:"coef"`
	Intercept float64     `json:"intercept"`
}

// NewRidge returns an unfitted ridge model
func NewRidge(cfg RidgeConfig) *Ridge {
	return &Ridge{Config: cfg}
}

func (r *Ridge) Kind() string { return KindRidge }

// Fit solves (XcᵀXc + λI)β = Xcᵀyc on centered data
func (r *Ridge) Fit(X [][]float64, y []float64) error {
	p, err := checkShape(X, y)
	if err != nil {
		return err
	}
	n := len(X)

	xMean := make([]float64, p)
	var yMean float64
	for i, row := range X {
		for j, v := range row {
			xMean[j] += v
		}
		yMean += y[i]
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean /= float64(n)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.Dense
	gram.Mul(xc.T(), xc)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+r.Config.Lambda)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return fmt.Errorf("solving ridge system: %w", err)
	}

	r.Coef = make([]float64, p)
	r.Intercept = yMean
	for j := 0; j < p; j++ {
		r.Coef[j] = beta.AtVec(j)
		r.Intercept -= r.Coef[j] * xMean[j]
	}
	return nil
}

// Predict returns Xβ + intercept
func (r *Ridge) Predict(X [][]float64) ([]float64, error) {
	if r.Coef == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(r.Coef) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(r.Coef))
		}
		v := r.Intercept
		for j, x := range row {
			v += r.Coef[j] * x
		}
		out[i] = v
	}
	return out, nil
}

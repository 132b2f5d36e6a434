package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

func rampBars(n int) []model.PriceBar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]model.PriceBar, n)
	for i := range out {
		c := 100 + float64(i)*1.5
		out[i] = model.PriceBar{Time: start.AddDate(0, 0, i), Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1e6}
	}
	return out
}

func TestMovingAverageWindow(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i*i) + 0.25
	}
	ma := MovingAverage(values, 10)

	for i := range values {
		if i < 9 {
			assert.True(t, math.IsNaN(ma[i]), "row %d should be missing", i)
			continue
		}
		var sum float64
		for j := i - 9; j <= i; j++ {
			sum += values[j]
		}
		assert.InDelta(t, sum/10, ma[i], 1e-9, "row %d", i)
	}
}

func TestMovingAverageMissingInWindow(t *testing.T) {
	values := []float64{1, 2, math.NaN(), 4, 5, 6}
	ma := MovingAverage(values, 2)

	assert.True(t, math.IsNaN(ma[0]))
	assert.Equal(t, 1.5, ma[1])
	assert.True(t, math.IsNaN(ma[2]))
	assert.True(t, math.IsNaN(ma[3]))
	assert.Equal(t, 4.5, ma[4])
	assert.Equal(t, 5.5, ma[5])
}

func TestRatio(t *testing.T) {
	out, zeroDiv := Ratio([]float64{10, 5, math.NaN(), 3}, []float64{4, 0, 2, math.NaN()})
	assert.Equal(t, 2.5, out[0])
	assert.True(t, math.IsNaN(out[1]))
	assert.True(t, math.IsNaN(out[2]))
	assert.True(t, math.IsNaN(out[3]))
	assert.Equal(t, 1, zeroDiv)
}

func TestSchemaVariantsShareColumns(t *testing.T) {
	for _, ratios := range []bool{false, true} {
		train := NewSchema(Training, ratios)
		infer := NewSchema(Inference, ratios)

		assert.Equal(t, Close, train.Target)
		assert.Contains(t, train.Columns, Close)
		assert.NotContains(t, infer.Columns, Close)
		assert.True(t, train.WithoutTarget().Equal(infer))
	}

	assert.Equal(t,
		[]string{Open, High, Low, Volume, MA10, MA50, Current, DebtEq},
		NewSchema(Inference, true).Columns)
	assert.Equal(t,
		[]string{Open, High, Low, Volume, MA10, MA50},
		NewSchema(Inference, false).Columns)
}

func TestBuildInferenceFromBars(t *testing.T) {
	tbl := TableFromBars(rampBars(60))
	out, stats, err := Builder{}.Build(tbl, Inference)
	require.NoError(t, err)

	assert.Equal(t, NewSchema(Inference, false).Columns, out.Names())
	assert.Equal(t, 60, stats.Rows)
	assert.Equal(t, 49, stats.WarmupRows)

	ma10, _ := out.Column(MA10)
	assert.True(t, math.IsNaN(ma10.Num[8]))
	assert.InDelta(t, 100+1.5*4.5, ma10.Num[9], 1e-9)
}

func TestBuildWithRatios(t *testing.T) {
	tbl := TableFromBars(rampBars(3))
	require.NoError(t, tbl.SetNumeric(TotalCurrentAssets, []float64{200, 100, math.NaN()}))
	require.NoError(t, tbl.SetNumeric(TotalCurrentLiabilities, []float64{100, 0, 50}))
	require.NoError(t, tbl.SetNumeric(TotalLiabilities, []float64{300, 300, 300}))
	require.NoError(t, tbl.SetNumeric(TotalShareholderEquity, []float64{150, 600, 0}))

	out, stats, err := Builder{Ratios: true}.Build(tbl, Training)
	require.NoError(t, err)
	assert.Equal(t, NewSchema(Training, true).Columns, out.Names())
	assert.Equal(t, 2, stats.DivisionByZero)

	cr, _ := out.Column(Current)
	assert.Equal(t, 2.0, cr.Num[0])
	assert.True(t, math.IsNaN(cr.Num[1]))
	assert.True(t, math.IsNaN(cr.Num[2]))

	de, _ := out.Column(DebtEq)
	assert.Equal(t, 2.0, de.Num[0])
	assert.Equal(t, 0.5, de.Num[1])
	assert.True(t, math.IsNaN(de.Num[2]))
}

func TestBuildMissingRatioSource(t *testing.T) {
	tbl := TableFromBars(rampBars(3))
	_, _, err := Builder{Ratios: true}.Build(tbl, Training)

	var se *frame.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, TotalCurrentAssets, se.Column)
}

func TestBuildMissingClose(t *testing.T) {
	tbl := frame.New(1)
	require.NoError(t, tbl.SetNumeric(Open, []float64{1}))

	_, _, err := Builder{}.Build(tbl, Inference)
	var se *frame.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Close, se.Column)
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	tbl := TableFromBars(rampBars(12))
	_, _, err := Builder{}.Build(tbl, Training)
	require.NoError(t, err)
	assert.False(t, tbl.Has(MA10))
}

func TestNewBuilderForCategory(t *testing.T) {
	assert.True(t, NewBuilder(model.BalanceSheet).Ratios)
	assert.False(t, NewBuilder(model.Earnings).Ratios)
}

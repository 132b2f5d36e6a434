package normalize

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/frame"
)

var nan = math.NaN()

func TestFillNumericAndCategorical(t *testing.T) {
	tbl := frame.New(4)
	require.NoError(t, tbl.SetNumeric("a", []float64{1, nan, 3, nan}))
	require.NoError(t, tbl.SetCategorical("cur", []string{"USD", "", "EUR", "USD"}))

	filled, err := Fill(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "cur": 1}, filled)

	a, _ := tbl.Column("a")
	assert.Equal(t, []float64{1, 2, 3, 2}, a.Num)
	cur, _ := tbl.Column("cur")
	assert.Equal(t, []string{"USD", "USD", "EUR", "USD"}, cur.Str)
}

func TestFillRestrictedColumns(t *testing.T) {
	tbl := frame.New(2)
	require.NoError(t, tbl.SetNumeric("used", []float64{nan, 4}))
	require.NoError(t, tbl.SetNumeric("unused", []float64{nan, nan}))

	_, err := Fill(tbl, []string{"used"})
	require.NoError(t, err)

	_, err = Fill(tbl, []string{"absent"})
	var se *frame.SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestFillAllMissingIsFatal(t *testing.T) {
	tbl := frame.New(2)
	require.NoError(t, tbl.SetNumeric("a", []float64{nan, nan}))

	_, err := Fill(tbl, nil)
	var am *AllMissingColumnError
	require.True(t, errors.As(err, &am))
	assert.Equal(t, "a", am.Column)

	cat := frame.New(1)
	require.NoError(t, cat.SetCategorical("c", []string{""}))
	_, err = Fill(cat, nil)
	assert.True(t, errors.As(err, &am))
}

func TestModeTieBreak(t *testing.T) {
	assert.Equal(t, "EUR", Mode([]string{"USD", "EUR", "", "USD", "EUR"}))
	assert.Equal(t, "", Mode([]string{"", ""}))
}

func TestNormalizeStandardizes(t *testing.T) {
	tbl := frame.New(4)
	require.NoError(t, tbl.SetNumeric("x", []float64{1, 2, 3, 4}))
	require.NoError(t, tbl.SetNumeric("flat", []float64{5, 5, 5, 5}))
	require.NoError(t, tbl.SetNumeric("gappy", []float64{2, nan, 4, nan}))

	m, report, err := Normalize(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "flat", "gappy"}, m.Columns)
	assert.Equal(t, 2, report.Total())

	var sum, sq float64
	for _, row := range m.Data {
		sum += row[0]
		sq += row[0] * row[0]
		assert.Equal(t, 0.0, row[1])
	}
	assert.InDelta(t, 0, sum, 1e-12)
	assert.InDelta(t, 4, sq, 1e-12)

	// gappy: filled with 3, so values 2,3,4,3 around mean 3
	assert.InDelta(t, 0, m.Data[1][2], 1e-12)
	assert.Less(t, m.Data[0][2], 0.0)

	// input untouched
	g, _ := tbl.Column("gappy")
	assert.True(t, math.IsNaN(g.Num[1]))
}

func TestNormalizeSecondPassKeepsDense(t *testing.T) {
	tbl := frame.New(5)
	require.NoError(t, tbl.SetNumeric("a", []float64{1, nan, 7, 2, nan}))
	require.NoError(t, tbl.SetNumeric("b", []float64{10, 10, 10, 10, 10}))

	first, _, err := Normalize(tbl)
	require.NoError(t, err)

	again := frame.New(first.Rows())
	for j, name := range first.Columns {
		col := make([]float64, first.Rows())
		for i, row := range first.Data {
			col[i] = row[j]
		}
		require.NoError(t, again.SetNumeric(name, col))
	}

	second, report, err := Normalize(again)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	for i, row := range second.Data {
		for j, v := range row {
			assert.False(t, math.IsNaN(v), "row %d col %d", i, j)
			assert.InDelta(t, first.Data[i][j], v, 1e-9)
		}
	}
}

func TestNormalizeRejectsCategorical(t *testing.T) {
	tbl := frame.New(1)
	require.NoError(t, tbl.SetCategorical("c", []string{"x"}))

	_, _, err := Normalize(tbl)
	var se *frame.SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestNormalizeInfiniteImputed(t *testing.T) {
	tbl := frame.New(3)
	require.NoError(t, tbl.SetNumeric("a", []float64{1, math.Inf(1), 3}))

	m, report, err := Normalize(tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SecondPass)
	assert.Equal(t, [][]float64{{-1}, {0}, {1}}, m.Data)
}

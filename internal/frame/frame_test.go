package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnFromStrings(t *testing.T) {
	num := ColumnFromStrings("totalAssets", []string{"100", "None", " 250.5 ", ""})
	require.Equal(t, Numeric, num.Kind)
	assert.Equal(t, 100.0, num.Num[0])
	assert.True(t, math.IsNaN(num.Num[1]))
	assert.Equal(t, 250.5, num.Num[2])
	assert.Equal(t, 2, num.MissingCount())

	cat := ColumnFromStrings("reportedCurrency", []string{"USD", "None", "USD"})
	require.Equal(t, Categorical, cat.Kind)
	assert.Equal(t, []string{"USD", "", "USD"}, cat.Str)
	assert.True(t, cat.IsMissing(1))
}

func TestTableSelectMissingColumn(t *testing.T) {
	tbl := New(2)
	require.NoError(t, tbl.SetNumeric("open", []float64{1, 2}))

	_, err := tbl.Select("features", []string{"open", "close"})
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "close", se.Column)
	assert.Equal(t, "features", se.Stage)
}

func TestTableAddRowMismatch(t *testing.T) {
	tbl := New(3)
	assert.Error(t, tbl.SetNumeric("open", []float64{1, 2}))
}

func TestTableAddReplacesInPlace(t *testing.T) {
	tbl := New(1)
	require.NoError(t, tbl.SetNumeric("a", []float64{1}))
	require.NoError(t, tbl.SetNumeric("b", []float64{2}))
	require.NoError(t, tbl.SetNumeric("a", []float64{3}))

	assert.Equal(t, []string{"a", "b"}, tbl.Names())
	c, _ := tbl.Column("a")
	assert.Equal(t, 3.0, c.Num[0])
}

func TestTableNumericRejectsCategorical(t *testing.T) {
	tbl := New(1)
	require.NoError(t, tbl.SetCategorical("currency", []string{"USD"}))

	_, err := tbl.Numeric("features", "currency")
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), "categorical")
}

func TestCloneIsDeep(t *testing.T) {
	tbl := New(1)
	require.NoError(t, tbl.SetNumeric("a", []float64{1}))
	cp := tbl.Clone()
	c, _ := cp.Column("a")
	c.Num[0] = 9

	orig, _ := tbl.Column("a")
	assert.Equal(t, 1.0, orig.Num[0])
}

func TestMatrixSplit(t *testing.T) {
	m := &Matrix{
		Columns: []string{"open", "close", "volume"},
		Data:    [][]float64{{1, 2, 3}, {4, 5, 6}},
	}

	x, y, err := m.Split("training", "close")
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "volume"}, x.Columns)
	assert.Equal(t, [][]float64{{1, 3}, {4, 6}}, x.Data)
	assert.Equal(t, []float64{2, 5}, y)

	_, _, err = m.Split("training", "missing")
	assert.Error(t, err)
}

func TestColumnFuncsMatchRowCount(t *testing.T) {
	tbl := New(3)
	tbl.NumericFunc("close", func(i int) float64 { return float64(10 * i) })
	tbl.CategoricalFunc("timestamp", func(i int) string { return []string{"a", "b", "c"}[i] })
	tbl.ParsedFunc("equity", func(i int) string { return []string{"5", "None", "7"}[i] })
	tbl.ParsedFunc("currency", func(i int) string { return "USD" })

	assert.Equal(t, []string{"close", "timestamp", "equity", "currency"}, tbl.Names())
	for _, c := range tbl.Columns() {
		assert.Equal(t, 3, c.Len(), c.Name)
	}
	eq, _ := tbl.Column("equity")
	require.Equal(t, Numeric, eq.Kind)
	assert.True(t, math.IsNaN(eq.Num[1]))
	cur, _ := tbl.Column("currency")
	assert.Equal(t, Categorical, cur.Kind)

	tbl.NumericFunc("close", func(i int) float64 { return 1 })
	c, _ := tbl.Column("close")
	assert.Equal(t, []float64{1, 1, 1}, c.Num)
	assert.Len(t, tbl.Names(), 4)
}

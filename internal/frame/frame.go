package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the storage type of a column
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column holds one named column. Numeric columns mark missing values with
// NaN, categorical columns with the empty string.
type Column struct {
	Name string
	Kind Kind
	Num  []float64
	Str  []string
}

// Len returns the number of rows in the column
func (c *Column) Len() int {
	if c.Kind == Categorical {
		return len(c.Str)
	}
	return len(c.Num)
}

// IsMissing reports whether row i has no value
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Categorical {
		return c.Str[i] == ""
	}
	return math.IsNaN(c.Num[i])
}

// MissingCount returns the number of missing entries
func (c *Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Format renders row i for serialization. Missing values render empty.
func (c *Column) Format(i int) string {
	if c.Kind == Categorical {
		return c.Str[i]
	}
	if math.IsNaN(c.Num[i]) {
		return ""
	}
	return strconv.FormatFloat(c.Num[i], 'f', -1, 64)
}

// Table is an ordered set of equally sized columns
type Table struct {
	rows  int
	cols  []*Column
	index map[string]int
}

// New creates an empty table with the given row count
func New(rows int) *Table {
	return &Table{rows: rows, index: make(map[string]int)}
}

// Rows returns the row count
func (t *Table) Rows() int { return t.rows }

// Columns returns the columns in order
func (t *Table) Columns() []*Column { return t.cols }

// Names returns the column names in order
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has a column with the given name
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Add appends a column, replacing any existing column of the same name in place.
func (t *Table) Add(c *Column) error {
	if c.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	t.put(c)
	return nil
}

func (t *Table) put(c *Column) {
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
}

// NumericFunc adds or replaces a numeric column whose i-th value is fn(i).
// The column always has the table's row count.
func (t *Table) NumericFunc(name string, fn func(i int) float64) {
	values := make([]float64, t.rows)
	for i := range values {
		values[i] = fn(i)
	}
	t.put(&Column{Name: name, Kind: Numeric, Num: values})
}

// CategoricalFunc adds or replaces a categorical column whose i-th value is fn(i)
func (t *Table) CategoricalFunc(name string, fn func(i int) string) {
	values := make([]string, t.rows)
	for i := range values {
		values[i] = fn(i)
	}
	t.put(&Column{Name: name, Kind: Categorical, Str: values})
}

// ParsedFunc adds or replaces a column of raw provider values, typed as in
// ColumnFromStrings
func (t *Table) ParsedFunc(name string, fn func(i int) string) {
	raw := make([]string, t.rows)
	for i := range raw {
		raw[i] = fn(i)
	}
	t.put(ColumnFromStrings(name, raw))
}

// SetNumeric adds or replaces a numeric column
func (t *Table) SetNumeric(name string, values []float64) error {
	return t.Add(&Column{Name: name, Kind: Numeric, Num: values})
}

// SetCategorical adds or replaces a categorical column
func (t *Table) SetCategorical(name string, values []string) error {
	return t.Add(&Column{Name: name, Kind: Categorical, Str: values})
}

// Numeric returns the values of a numeric column, or a SchemaError when the
// column is absent or not numeric.
func (t *Table) Numeric(stage, name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, &SchemaError{Stage: stage, Column: name}
	}
	if c.Kind != Numeric {
		return nil, &SchemaError{Stage: stage, Column: name, Reason: "column is categorical"}
	}
	return c.Num, nil
}

// Select returns a new table holding the named columns in the given order.
// Column data is shared with the receiver.
func (t *Table) Select(stage string, names []string) (*Table, error) {
	out := New(t.rows)
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, &SchemaError{Stage: stage, Column: name}
		}
		out.index[name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out, nil
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	out := New(t.rows)
	for _, c := range t.cols {
		cp := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Categorical {
			cp.Str = append([]string(nil), c.Str...)
		} else {
			cp.Num = append([]float64(nil), c.Num...)
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, cp)
	}
	return out
}

// ParseValue converts a raw provider value. ok is false for missing markers.
func ParseValue(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	switch s {
	case "", "None", "none", "null", "NaN", "nan", "-":
		return "", false
	}
	return s, true
}

// ColumnFromStrings builds a column from raw values: numeric when every
// present value parses as a float, categorical otherwise.
func ColumnFromStrings(name string, raw []string) *Column {
	values := make([]string, len(raw))
	nums := make([]float64, len(raw))
	numeric := true
	for i, r := range raw {
		v, ok := ParseValue(r)
		if !ok {
			nums[i] = math.NaN()
			continue
		}
		values[i] = v
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			continue
		}
		nums[i] = f
	}
	if numeric {
		return &Column{Name: name, Kind: Numeric, Num: nums}
	}
	return &Column{Name: name, Kind: Categorical, Str: values}
}

// Matrix is a dense numeric matrix with named columns
type Matrix struct {
	Columns []string
	Data    [][]float64
}

// Rows returns the row count
func (m *Matrix) Rows() int { return len(m.Data) }

// ColumnIndex returns the position of a named column
func (m *Matrix) ColumnIndex(name string) (int, bool) {
	for i, c := range m.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Split removes the named column and returns the remaining matrix and the
// removed column values.
func (m *Matrix) Split(stage, name string) (*Matrix, []float64, error) {
	idx, ok := m.ColumnIndex(name)
	if !ok {
		return nil, nil, &SchemaError{Stage: stage, Column: name}
	}
	cols := make([]string, 0, len(m.Columns)-1)
	cols = append(cols, m.Columns[:idx]...)
	cols = append(cols, m.Columns[idx+1:]...)

	rest := &Matrix{Columns: cols, Data: make([][]float64, len(m.Data))}
	target := make([]float64, len(m.Data))
	for i, row := range m.Data {
		r := make([]float64, 0, len(row)-1)
		r = append(r, row[:idx]...)
		r = append(r, row[idx+1:]...)
		rest.Data[i] = r
		target[i] = row[idx]
	}
	return rest, target, nil
}

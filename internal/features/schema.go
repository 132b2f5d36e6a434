package features

// Feature and source column names
const (
	Open    = "open"
	High    = "high"
	Low     = "low"
	Close   = "close"
	Volume  = "volume"
	MA10    = "moving_average_10"
	MA50    = "moving_average_50"
	Current = "current_ratio"
	DebtEq  = "debt_to_equity"

	TotalCurrentAssets      = "totalCurrentAssets"
	TotalCurrentLiabilities = "totalCurrentLiabilities"
	TotalLiabilities        = "totalLiabilities"
	TotalShareholderEquity  = "totalShareholderEquity"
)

// Variant selects the training or inference column set
type Variant int

const (
	Training Variant = iota
	Inference
)

func (v Variant) String() string {
	if v == Inference {
		return "inference"
	}
	return "training"
}

// Schema is the ordered column list of a feature table. Training and
// inference derive their columns from the same definition; the inference
// columns are exactly the training columns with the target removed.
type Schema struct {
	Columns []string `json:"columns"`
	Target  string   `json:"target,omitempty"`
}

// NewSchema returns the schema for a variant
func NewSchema(v Variant, ratios bool) Schema {
	cols := []string{Open, High, Low, Close, Volume, MA10, MA50}
	if ratios {
		cols = append(cols, Current, DebtEq)
	}
	s := Schema{Columns: cols, Target: Close}
	if v == Inference {
		return s.WithoutTarget()
	}
	return s
}

// WithoutTarget returns the schema with the target column dropped
func (s Schema) WithoutTarget() Schema {
	if s.Target == "" {
		return s
	}
	cols := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c != s.Target {
			cols = append(cols, c)
		}
	}
	return Schema{Columns: cols}
}

// Equal reports whether two schemas have the same columns in the same order
func (s Schema) Equal(o Schema) bool {
	if len(s.Columns) != len(o.Columns) || s.Target != o.Target {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// SourceColumns lists the merged-table columns the builder reads
func SourceColumns(ratios bool) []string {
	cols := []string{Open, High, Low, Close, Volume}
	if ratios {
		cols = append(cols, TotalCurrentAssets, TotalCurrentLiabilities, TotalLiabilities, TotalShareholderEquity)
	}
	return cols
}

package merge

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bars(dates ...string) []model.PriceBar {
	out := make([]model.PriceBar, len(dates))
	for i, d := range dates {
		out[i] = model.PriceBar{Time: day(d), Open: 1, High: 2, Low: 0.5, Close: float64(100 + i), Volume: 1000}
	}
	return out
}

func statement(date string, kv ...string) model.StatementRecord {
	r := model.StatementRecord{FiscalDateEnding: day(date), Fields: map[string]string{"fiscalDateEnding": date}}
	r.Keys = append(r.Keys, "fiscalDateEnding")
	for i := 0; i+1 < len(kv); i += 2 {
		r.Keys = append(r.Keys, kv[i])
		r.Fields[kv[i]] = kv[i+1]
	}
	return r
}

func TestSelectPicksLargestQualifyingDate(t *testing.T) {
	// Provider order is newest first.
	statements := []model.StatementRecord{
		statement("2023-06-30"),
		statement("2023-03-31"),
		statement("2022-12-31"),
	}

	assert.Equal(t, 0, Select(statements, day("2023-01-15")))
	assert.Equal(t, 0, Select(statements, day("2023-06-30")))
	assert.Equal(t, -1, Select(statements, day("2023-07-03")))
}

func TestSelectDuplicateDatesIsStable(t *testing.T) {
	statements := []model.StatementRecord{
		statement("2023-03-31", "rev", "a"),
		statement("2023-03-31", "rev", "b"),
		statement("2022-12-31", "rev", "c"),
	}
	assert.Equal(t, 1, Select(statements, day("2023-01-01")))
}

func TestMergeDropsBarsWithoutFutureStatement(t *testing.T) {
	statements := []model.StatementRecord{statement("2023-03-31", "totalAssets", "500")}
	res := Merge(bars("2023-03-30", "2023-03-31", "2023-04-03"), statements)

	assert.Equal(t, Stats{Bars: 3, Merged: 2, Dropped: 1}, res.Stats)
	assert.Equal(t, 2, res.Table.Rows())
	assert.Equal(t, []time.Time{day("2023-03-30"), day("2023-03-31")}, res.Times)

	assets, err := res.Table.Numeric("test", "totalAssets")
	require.NoError(t, err)
	assert.Equal(t, []float64{500, 500}, assets)
}

func TestMergeEmptyStatements(t *testing.T) {
	res := Merge(bars("2023-01-03", "2023-01-04"), nil)
	assert.Equal(t, 0, res.Table.Rows())
	assert.Equal(t, 2, res.Stats.Dropped)
}

func TestMergeColumnLayout(t *testing.T) {
	statements := []model.StatementRecord{
		statement("2023-03-31", "reportedCurrency", "USD", "totalAssets", "None"),
	}
	res := Merge(bars("2023-01-03"), statements)

	assert.Equal(t, []string{"timestamp", "open", "high", "low", "close", "volume", "fiscalDateEnding", "reportedCurrency", "totalAssets"}, res.Table.Names())

	cur, _ := res.Table.Column("reportedCurrency")
	assert.Equal(t, frame.Categorical, cur.Kind)
	assets, _ := res.Table.Column("totalAssets")
	assert.Equal(t, 1, assets.MissingCount())

	ts, err := Timestamps(res.Table)
	require.NoError(t, err)
	assert.Equal(t, res.Times, ts)
}

// Every merged row carries a statement dated on or after its bar, and bars
// with no such statement never appear.
func TestMergeFutureOrEqualProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	start := day("2020-01-01")

	for trial := 0; trial < 50; trial++ {
		var bs []model.PriceBar
		for i := 0; i < 120; i++ {
			bs = append(bs, model.PriceBar{Time: start.AddDate(0, 0, i), Close: 1})
		}
		var ss []model.StatementRecord
		n := rng.Intn(6)
		for i := 0; i < n; i++ {
			ss = append(ss, model.StatementRecord{FiscalDateEnding: start.AddDate(0, 0, rng.Intn(150))})
		}

		res := Merge(bs, ss)
		fiscal, ok := res.Table.Column(ColFiscalDateEnding)
		if res.Table.Rows() > 0 {
			require.True(t, ok)
		}
		for i, ts := range res.Times {
			fd := day(fiscal.Str[i])
			assert.False(t, fd.Before(ts), "row %d: fiscal %s before bar %s", i, fd, ts)
		}

		merged := make(map[time.Time]bool, len(res.Times))
		for _, ts := range res.Times {
			merged[ts] = true
		}
		for _, b := range bs {
			if Select(ss, b.Time) < 0 {
				assert.False(t, merged[b.Time])
			} else {
				assert.True(t, merged[b.Time])
			}
		}
		assert.Equal(t, len(bs), res.Stats.Merged+res.Stats.Dropped)
	}
}

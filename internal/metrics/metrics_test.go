package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := New()
	r.RecordMerge("BalanceSheet", 120, 5)
	r.RecordMerge("BalanceSheet", 10, 1)
	r.RecordImputed("Income", "rescale", 3)
	r.RecordDivisionByZero("BalanceSheet", 2)
	r.RecordStageError("merge")
	r.RecordRequest("EARNINGS", nil)
	r.RecordRequest("EARNINGS", errors.New("boom"))
	r.RecordDecisions("Hold", 1)
	r.RecordModel("CashFlow", 0.93)

	assert.Equal(t, 130.0, testutil.ToFloat64(r.rowsMerged.WithLabelValues("BalanceSheet")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.rowsDropped.WithLabelValues("BalanceSheet")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.cellsImputed.WithLabelValues("Income", "rescale")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.divisionByZero.WithLabelValues("BalanceSheet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageErrors.WithLabelValues("merge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiRequests.WithLabelValues("EARNINGS", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("Hold")))
	assert.Equal(t, 0.93, testutil.ToFloat64(r.modelR2.WithLabelValues("CashFlow")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordStageError("train")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.stageErrors.WithLabelValues("train")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordMerge("Earnings", 40, 2)
	r.RecordStage("merge", 150*time.Millisecond)

	path := filepath.Join(t.TempDir(), "stockcast.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stockcast_merge_rows_dropped_total{category="Earnings"} 2`)
	assert.Contains(t, string(data), "stockcast_stage_duration_seconds_count")
}

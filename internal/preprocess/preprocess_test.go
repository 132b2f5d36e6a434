package preprocess

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/frame"
	"stockcast/pkg/model"
)

func day(s string) time.Time {
	t, _ := time.Parse(model.DateLayout, s)
	return t
}

func TestFilterBarsInclusive(t *testing.T) {
	bars := []model.PriceBar{
		{Time: day("2018-09-27")},
		{Time: day("2018-09-28")},
		{Time: day("2021-03-15")},
		{Time: day("2023-09-29")},
		{Time: day("2023-10-02")},
	}
	got := FilterBars(bars, DefaultStart, DefaultEnd)
	require.Len(t, got, 3)
	assert.Equal(t, day("2018-09-28"), got[0].Time)
	assert.Equal(t, day("2023-09-29"), got[2].Time)

	assert.Len(t, FilterBars(bars, time.Time{}, time.Time{}), 5)
	assert.Len(t, FilterBars(bars, time.Time{}, day("2018-09-28")), 2)
}

const balancePayload = `{
  "symbol": "IBM",
  "annualReports": [
    {"fiscalDateEnding": "2022-12-31", "totalAssets": "127243000000"}
  ],
  "quarterlyReports": [
    {"fiscalDateEnding": "2023-06-30", "reportedCurrency": "USD", "totalAssets": "132213000000"},
    {"fiscalDateEnding": "2023-03-31", "reportedCurrency": "USD", "totalAssets": "None"}
  ]
}`

func TestQuarterlyOnly(t *testing.T) {
	recs, err := QuarterlyOnly([]byte(balancePayload), model.BalanceSheet)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, day("2023-03-31"), recs[0].FiscalDateEnding)
	assert.Equal(t, []string{"reportedCurrency", "totalAssets"}, recs[1].Keys)
	assert.Equal(t, "132213000000", recs[1].Fields["totalAssets"])
}

func TestQuarterlyOnlyEarningsKey(t *testing.T) {
	payload := `{"symbol":"IBM","annualEarnings":[{"fiscalDateEnding":"2022-12-31","reportedEPS":"9.13"}],
		"quarterlyEarnings":[{"fiscalDateEnding":"2023-06-30","reportedDate":"2023-07-19","reportedEPS":"2.18","surprise":"0.17"}]}`
	recs, err := QuarterlyOnly([]byte(payload), model.Earnings)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2.18", recs[0].Fields["reportedEPS"])

	_, err = QuarterlyOnly([]byte(payload), model.Income)
	var se *frame.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "quarterlyReports", se.Column)
}

func TestQuarterlyOnlyBadDate(t *testing.T) {
	payload := `{"quarterlyReports":[{"fiscalDateEnding":"None","totalAssets":"1"}]}`
	_, err := QuarterlyOnly([]byte(payload), model.CashFlow)
	var se *frame.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.FiscalDateKey, se.Column)
}

func TestPayloadRoundTrip(t *testing.T) {
	recs, err := QuarterlyOnly([]byte(balancePayload), model.BalanceSheet)
	require.NoError(t, err)

	data, err := Payload("IBM", model.BalanceSheet, recs)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "annualReports")

	back, err := QuarterlyOnly(data, model.BalanceSheet)
	require.NoError(t, err)
	assert.Equal(t, recs, back)
}

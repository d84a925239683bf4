package tradehistory

import (
	"context"
	"strings"
	"testing"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerJSONL = `
{"event_id": 1, "trade_date": "2024-01-01", "account_id": "A1", "institution": "Broker", "event_type": "trade", "side": "buy", "quantity": 100, "price": 10, "gross_amount": -1000, "currency": "cad", "symbol": "xyz"}
{"event_id": 2, "trade_date": "2024-02-01", "account_id": "A1", "institution": "Broker", "event_type": "trade", "side": "BUY", "quantity": 50, "price": 12, "gross_amount": -600, "currency": "CAD", "symbol": "XYZ"}
{"event_id": "3", "trade_date": "2024-03-01", "account_id": "A1", "institution": "Broker", "event_type": "trade", "side": "SELL", "quantity": 120, "price": 15, "gross_amount": 1800, "currency": "CAD", "symbol": "XYZ"}
{"event_id": 4, "trade_date": "2024-03-05", "account_id": "A1", "institution": "Broker", "event_type": "dividend", "side": null, "quantity": null, "price": null, "gross_amount": 12.5, "currency": "CAD", "symbol": null}
`

const linesJSONL = `
{"id": 1, "institution": "Broker", "account_id": "A1", "snapshot_date": "2024-03-01", "metric_code": "cash_opening", "currency": "CAD", "value_native": 0, "file_path": "stmts/march.pdf", "source_line_ref": "p1", "raw_line": "Opening cash 0.00"}
{"id": 2, "institution": "Broker", "account_id": "A1", "snapshot_date": "2024-03-31", "metric_code": "cash_closing", "currency": "CAD", "value_native": 1812.5, "file_path": "stmts/march.pdf", "source_line_ref": "p2", "raw_line": "Closing cash 1,812.50"}
`

func testBook(t *testing.T) *Book {
	t.Helper()
	events, err := DecodeEvents("ledger.jsonl", strings.NewReader(ledgerJSONL))
	require.NoError(t, err)
	lines, err := DecodeJSONL[SnapshotLine]("lines.jsonl", strings.NewReader(linesJSONL))
	require.NoError(t, err)
	return &Book{
		Events:    events,
		Lines:     lines,
		Prices:    NewPriceBook(Price{Symbol: "XYZ", Date: date.MustParse("2024-03-28"), Close: CAD(20)}),
		Converter: NewConverter(NewRateTable()),
		Symbols:   NewSymbolIndex(NewResolver(), nil, []ProviderMetadata{{Symbol: "XYZ", Sector: "Energy"}}, nil),
	}
}

func TestBookReport(t *testing.T) {
	b := testBook(t)
	key := RowKey{Month: date.MustParseMonth("2024-03"), Institution: "Broker", Account: "A1", Currency: "CAD"}
	r, err := b.Report(context.Background(), ReportOptions{
		Display:    "CAD",
		On:         date.MustParse("2024-03-31"),
		Reconciler: Reconciler{Tolerance: DefaultTolerance},
		DrillDown:  &key,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, r.Closed.Total)
	assert.Empty(t, r.Warnings)
	assert.True(t, r.Valuation.Total.Decimal().Equal(dec("600")), "30 shares at 20")
	require.Len(t, r.Sectors, 1)
	assert.Equal(t, "Energy", r.Sectors[0].Sector)
	assert.InDelta(t, 100.0, r.Sectors[0].Percentage, 0.01)

	require.NotEmpty(t, r.Reconciliation)
	march := r.Reconciliation[0]
	assert.Equal(t, "2024-03", march.Month.String())
	assert.True(t, march.NetCashFlow.Decimal().Equal(dec("1812.5")))
	assert.True(t, march.Gap.Decimal().Equal(decimal.Zero))
	assert.Equal(t, StatusOK, march.Status)
	assert.Len(t, r.SnapshotLines, 2)
}

func TestBookReportNoData(t *testing.T) {
	_, err := (&Book{}).Report(context.Background(), ReportOptions{Display: "CAD"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDecodeEventsNormalizes(t *testing.T) {
	b := testBook(t)
	e := b.Events[0]
	assert.Equal(t, "1", e.ID)
	assert.Equal(t, "CAD", e.Currency)
	assert.Equal(t, "XYZ", e.Symbol)
	assert.Equal(t, Side("BUY"), e.Side)
	assert.Equal(t, "equity", e.AssetType)

	div := b.Events[3]
	assert.Empty(t, div.Symbol)
	assert.False(t, div.Quantity.Valid)
	assert.False(t, div.Price.Valid)
	assert.True(t, div.Gross.Valid)

	_, err := DecodeEvents("dup.jsonl", strings.NewReader(`{"event_id": 1, "trade_date": "2024-01-01"}
{"event_id": "1", "trade_date": "2024-01-02"}`))
	assert.Error(t, err)
}

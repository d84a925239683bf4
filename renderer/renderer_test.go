package renderer

import (
	"strings"
	"testing"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// table is a parsed markdown table: header cells then body rows.
type table struct {
	header []string
	rows   [][]string
}

// parseTables returns the headings and tables of a markdown document.
func parseTables(t *testing.T, doc string) (headings []string, tables []table) {
	t.Helper()
	source := []byte(doc)
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	root := md.Parser().Parse(text.NewReader(source))

	cellText := func(n ast.Node) string {
		var b strings.Builder
		ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if tn, ok := c.(*ast.Text); ok && entering {
				b.Write(tn.Segment.Value(source))
			}
			return ast.WalkContinue, nil
		})
		return strings.TrimSpace(b.String())
	}

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			headings = append(headings, cellText(n))
		case *extast.Table:
			var tb table
			for row := n.FirstChild(); row != nil; row = row.NextSibling() {
				var cells []string
				for c := row.FirstChild(); c != nil; c = c.NextSibling() {
					cells = append(cells, cellText(c))
				}
				if _, ok := row.(*extast.TableHeader); ok {
					tb.header = cells
				} else {
					tb.rows = append(tb.rows, cells)
				}
			}
			tables = append(tables, tb)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	require.NoError(t, err)
	return headings, tables
}

func TestRenderClosed(t *testing.T) {
	page := tradehistory.Page[tradehistory.ClosedPositionLot]{
		Items: []tradehistory.ClosedPositionLot{
			{ID: 2, CloseDate: date.MustParse("2024-03-01"), Account: "A|1", Symbol: "XYZ", QuantityClosed: tradehistory.Q(20),
				Proceeds: tradehistory.M(300, "CAD"), CostBasis: tradehistory.Unknown("CAD"), RealizedPL: tradehistory.Unknown("CAD"),
				Warning: "excess close"},
			{ID: 1, CloseDate: date.MustParse("2024-03-01"), Account: "A1", Symbol: "XYZ", OpenDate: date.MustParse("2024-01-01"),
				QuantityClosed: tradehistory.Q(100), Proceeds: tradehistory.M(1500, "CAD"), CostBasis: tradehistory.NM(1000, "CAD"),
				RealizedPL: tradehistory.NM(500, "CAD")},
		},
		Total: 2, Page: 1, PageSize: 200,
	}
	out := RenderClosed(page, []tradehistory.Warning{{EventID: "3", Message: "close exceeds open quantity"}})

	headings, tables := parseTables(t, out)
	assert.Equal(t, []string{"Closed Positions", "Warnings"}, headings)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].rows, 3)
	first := tables[0].rows[0]
	assert.Equal(t, "2", first[0])
	assert.Len(t, first, 10, "pipes in values are escaped")
	assert.Equal(t, "-", first[4], "unmatched lots have no open date")
	assert.Equal(t, "-", first[7], "unknown cost")
	assert.Contains(t, out, "event 3: close exceeds open quantity")
	assert.Contains(t, out, "Page 1 of 1, 2 item(s).")
}

func TestRenderEmptyViews(t *testing.T) {
	assert.Contains(t, RenderClosed(tradehistory.Page[tradehistory.ClosedPositionLot]{}, nil), "No closed position.")
	assert.Contains(t, RenderEvents(tradehistory.Page[tradehistory.EventRow]{}), "No event.")
	assert.Contains(t, RenderSectors(nil, tradehistory.M(0, "CAD")), "No priced position.")
	assert.Contains(t, RenderReconciliation(nil), "No reconciliation row.")
	assert.Contains(t, RenderSnapshotLines(nil), "No statement line.")
	assert.Contains(t, RenderCatalog(nil), "No symbol.")
}

func TestRenderReconciliation(t *testing.T) {
	rows := []tradehistory.MonthlyRow{{
		RowKey:               tradehistory.RowKey{Month: date.MustParseMonth("2024-06"), Institution: "Broker", Account: "A1", Currency: "CAD"},
		StatementCashOpening: tradehistory.NM(1000, "CAD"),
		StatementCashClosing: tradehistory.NM(1490, "CAD"),
		NetCashFlow:          tradehistory.M(480, "CAD"),
		FeeTotal:             tradehistory.M(0, "CAD"),
		DerivedCashClosing:   tradehistory.NM(1480, "CAD"),
		Gap:                  tradehistory.NM(-10, "CAD"),
		Tolerance:            tradehistory.M(5, "CAD"),
		Status:               tradehistory.StatusWarning,
	}, {
		RowKey:      tradehistory.RowKey{Month: date.MustParseMonth("2024-05"), Account: "A1", Currency: "CAD"},
		NetCashFlow: tradehistory.M(0, "CAD"),
		FeeTotal:    tradehistory.M(0, "CAD"),
		Status:      tradehistory.StatusMissingSnapshot,
	}, {
		RowKey:         tradehistory.RowKey{Month: date.MustParseMonth("2024-04"), Account: "A1", Currency: "CAD"},
		NetCashFlow:    tradehistory.M(0, "CAD"),
		FeeTotal:       tradehistory.M(0, "CAD"),
		MissingMetrics: []tradehistory.MetricCode{tradehistory.MetricCashOpening, tradehistory.MetricCashClosing},
		Status:         tradehistory.StatusMissingSnapshot,
	}}
	_, tables := parseTables(t, RenderReconciliation(rows))
	require.Len(t, tables, 1)
	require.Len(t, tables[0].rows, 3)
	assert.Len(t, tables[0].header, 11)
	june := tables[0].rows[0]
	assert.Equal(t, "2024-06", june[0])
	assert.Equal(t, "⚠ warning", june[10])
	may := tables[0].rows[1]
	assert.Equal(t, "-", may[8], "no gap without statement")
	assert.Equal(t, "missing snapshot", may[10])
	assert.Equal(t, "missing cash_opening, cash_closing", tables[0].rows[2][10])
}

func TestRenderSnapshotLines(t *testing.T) {
	lines := []tradehistory.SnapshotLineView{
		{SnapshotLine: tradehistory.SnapshotLine{ID: "10", SnapshotDate: date.MustParse("2024-06-30"), MetricCode: tradehistory.MetricCashClosing,
			Currency: "CAD", Value: tradehistory.NM(1490, "CAD"), FilePath: `C:\stmts\june.pdf`, RawLine: "Closing   cash\n1,490.00"},
			DisplayCurrency: "CAD", ValueDisplay: tradehistory.NM(1490, "CAD"), Authoritative: true},
	}
	_, tables := parseTables(t, RenderSnapshotLines(lines))
	require.Len(t, tables, 1)
	row := tables[0].rows[0]
	assert.Equal(t, "10 ✓", row[0])
	assert.Equal(t, "june.pdf", row[5])
	assert.Equal(t, "Closing cash 1,490.00", row[7])
	assert.Equal(t, "Value (CAD)", tables[0].header[4])
}

func TestRenderReport(t *testing.T) {
	r := &tradehistory.Report{
		Display: "CAD",
		On:      date.MustParse("2024-03-31"),
		Valuation: tradehistory.Valuation{
			Display: "CAD", Date: date.MustParse("2024-03-31"), GroupBy: tradehistory.GroupTotal,
			Groups: []tradehistory.AssetGroup{{
				Key: "Total",
				Members: []tradehistory.ValuedPosition{{
					Position:           tradehistory.Position{Account: "A1", Symbol: "XYZ", Currency: "CAD", Quantity: tradehistory.Q(30), Price: tradehistory.NM(20, "CAD")},
					MarketValueDisplay: tradehistory.NM(600, "CAD"),
				}},
				MarketValueDisplay: tradehistory.M(600, "CAD"),
				Unpriced:           1,
			}},
			Total: tradehistory.M(600, "CAD"),
		},
		Sectors:     []tradehistory.SectorRow{{Sector: "Energy", Value: tradehistory.M(600, "CAD"), Percentage: 100, Positions: 1}},
		SectorTotal: tradehistory.M(600, "CAD"),
	}
	out := RenderReport(r)
	assert.NotContains(t, out, "error")
	headings, tables := parseTables(t, out)
	assert.Equal(t, []string{"Trade History Report", "Assets on 2024-03-31", "Total", "Sectors", "Closed Positions", "Monthly Reconciliation"}, headings)
	require.Len(t, tables, 2)
	assert.Equal(t, "XYZ", tables[0].rows[0][0])
	assert.Equal(t, "Total", tables[0].rows[1][0])
	assert.Equal(t, "100.00%", tables[1].rows[0][3])
	assert.Contains(t, out, "1 position(s) without a price")
}

func TestRenderCatalog(t *testing.T) {
	entries := []tradehistory.CatalogEntry{{
		Resolution: tradehistory.Resolution{Symbol: "SHOP", MarketSymbol: "SHOP.TO", MarketSymbolSource: "override", Sector: "Technology", SectorSource: "provider"},
		EventCount: 4, AccountCount: 2, OverrideMarketSymbol: "SHOP.TO",
	}}
	_, tables := parseTables(t, RenderCatalog(entries))
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"SHOP", "4", "2", "SHOP.TO", "override", "Technology", "provider", "SHOP.TO (inactive)"}, tables[0].rows[0])
}

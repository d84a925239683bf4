package tradehistory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOMatching(t *testing.T) {
	events := []TradeEvent{
		trade("3", "2024-03-01", "A1", "SELL", "XYZ", 120, 15),
		trade("1", "2024-01-01", "A1", "BUY", "XYZ", 100, 10),
		trade("2", "2024-02-01", "A1", "BUY", "XYZ", 50, 12),
	}
	res := Matcher{Method: FIFO}.Match(context.Background(), events)

	require.Len(t, res.Closed, 2)
	tests := []struct {
		open     string
		qty      string
		cost     string
		proceeds string
		pl       string
	}{
		{"1", "100", "1000", "1500", "500"},
		{"2", "20", "240", "300", "60"},
	}
	for i, tt := range tests {
		c := res.Closed[i]
		assert.Equal(t, "3", c.CloseEventID)
		assert.Equal(t, tt.open, c.OpenEventID)
		assert.True(t, c.QuantityClosed.Decimal().Equal(dec(tt.qty)), "qty %s", c.QuantityClosed)
		assert.True(t, c.CostBasis.Valid)
		assert.True(t, c.CostBasis.Decimal().Equal(dec(tt.cost)), "cost %s", c.CostBasis)
		assert.True(t, c.Proceeds.Decimal().Equal(dec(tt.proceeds)), "proceeds %s", c.Proceeds)
		assert.True(t, c.RealizedPL.Decimal().Equal(dec(tt.pl)), "pl %s", c.RealizedPL)
	}

	open := res.Open[PositionKey{"A1", "XYZ", "CAD"}]
	require.Len(t, open, 1)
	assert.True(t, open[0].Quantity.Decimal().Equal(dec("30")))
	assert.True(t, open[0].UnitCost().Decimal().Equal(dec("12")))
	assert.Empty(t, res.Warnings)
}

func TestMatchFeesAreCapitalizedAndDeducted(t *testing.T) {
	events := []TradeEvent{
		withFees(trade("1", "2024-01-01", "A1", "BUY", "XYZ", 10, 10), 5),
		withFees(trade("2", "2024-02-01", "A1", "SELL", "XYZ", 10, 20), 3),
	}
	res := Matcher{}.Match(context.Background(), events)
	require.Len(t, res.Closed, 1)
	c := res.Closed[0]
	assert.True(t, c.CostBasis.Decimal().Equal(dec("105")))
	assert.True(t, c.Proceeds.Decimal().Equal(dec("197")))
	assert.True(t, c.RealizedPL.Decimal().Equal(dec("92")))
}

func TestMatchExcessCloseIsFlagged(t *testing.T) {
	events := []TradeEvent{
		trade("1", "2024-01-01", "A1", "BUY", "XYZ", 10, 10),
		trade("2", "2024-02-01", "A1", "SELL", "XYZ", 15, 20),
	}
	res := Matcher{}.Match(context.Background(), events)

	require.Len(t, res.Closed, 2)
	assert.True(t, res.Closed[0].CostBasis.Valid)
	unmatched := res.Closed[1]
	assert.True(t, unmatched.QuantityClosed.Decimal().Equal(dec("5")))
	assert.False(t, unmatched.CostBasis.Valid)
	assert.False(t, unmatched.RealizedPL.Valid)
	assert.NotEmpty(t, unmatched.Warning)

	require.Len(t, res.Warnings, 1)
	assert.True(t, errors.Is(res.Warnings[0], ErrDataIntegrity))
	assert.Empty(t, res.Open, "position must be flat, never negative")
}

func TestMatchAverageCost(t *testing.T) {
	events := []TradeEvent{
		trade("1", "2024-01-01", "A1", "BUY", "XYZ", 100, 10),
		trade("2", "2024-02-01", "A1", "BUY", "XYZ", 100, 20),
		trade("3", "2024-03-01", "A1", "SELL", "XYZ", 50, 30),
	}
	res := Matcher{Method: AverageCost}.Match(context.Background(), events)
	require.Len(t, res.Closed, 1)
	assert.True(t, res.Closed[0].CostBasis.Decimal().Equal(dec("750")))
	assert.Equal(t, AverageCost, res.Closed[0].Method)

	open := res.OpenLots()
	require.Len(t, open, 2)
	for _, l := range open {
		assert.True(t, l.UnitCost().Decimal().Equal(dec("15")), "lots are re-based to the average")
	}
}

func TestMatchLinkedTransferCarriesCost(t *testing.T) {
	events := []TradeEvent{
		trade("1", "2024-01-01", "A1", "BUY", "XYZ", 10, 10),
		transfer("2", "2024-02-01", "A1", SideTransferOut, "XYZ", 10),
		transfer("3", "2024-02-03", "A2", SideTransferIn, "XYZ", 10),
		trade("4", "2024-03-01", "A2", "SELL", "XYZ", 10, 12),
	}
	res := Matcher{}.Match(context.Background(), events)

	assert.Equal(t, 1, res.Stats.TransfersLinked)
	require.Len(t, res.Closed, 1)
	c := res.Closed[0]
	assert.Equal(t, "A2", c.Account)
	assert.Equal(t, "1", c.OpenEventID, "lot keeps its origin")
	assert.True(t, c.CostBasis.Decimal().Equal(dec("100")))
	assert.True(t, c.RealizedPL.Decimal().Equal(dec("20")))
	assert.Empty(t, res.Open)
}

func TestMatchAllPartitionsAndNumbers(t *testing.T) {
	events := []TradeEvent{
		trade("1", "2024-01-01", "A1", "BUY", "AAA", 10, 10),
		trade("2", "2024-01-01", "A1", "BUY", "BBB", 10, 10),
		trade("3", "2024-01-05", "A1", "SELL", "BBB", 5, 11),
		trade("4", "2024-01-06", "A1", "SELL", "AAA", 5, 12),
		cash("5", "2024-01-07", "A1", EventDividend, 3),
	}
	res, err := Matcher{}.MatchAll(context.Background(), events)
	require.NoError(t, err)

	require.Len(t, res.Closed, 2)
	assert.Equal(t, 1, res.Closed[0].ID)
	assert.Equal(t, "3", res.Closed[0].CloseEventID)
	assert.Equal(t, 2, res.Closed[1].ID)
	assert.Equal(t, "4", res.Closed[1].CloseEventID)
	assert.Equal(t, 4, res.Stats.ProcessedEvents)
	assert.Equal(t, 2, res.Stats.OpenPositions)

	realized := res.RealizedByEvent()
	assert.True(t, realized["4"].Decimal().Equal(dec("10")))
}

func TestMatchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Matcher{}.MatchAll(ctx, []TradeEvent{trade("1", "2024-01-01", "A1", "BUY", "AAA", 1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchBuySellEventTypes(t *testing.T) {
	const ledger = `{"event_id": 1, "trade_date": "2024-01-02", "account_id": "A1", "event_type": "buy", "side": "BUY", "quantity": 100, "price": 10, "currency": "CAD", "symbol": "XYZ"}
{"event_id": 2, "trade_date": "2024-03-01", "account_id": "A1", "event_type": "Sell", "quantity": 100, "price": 15, "currency": "CAD", "symbol": "XYZ"}
`
	events, err := DecodeEvents("ledger.jsonl", strings.NewReader(ledger))
	require.NoError(t, err)
	assert.Equal(t, EventTrade, events[1].Type)
	assert.Equal(t, Side("SELL"), events[1].Side)

	res, err := Matcher{}.MatchAll(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.ProcessedEvents)
	require.Len(t, res.Closed, 1)
	assert.True(t, res.Closed[0].RealizedPL.Decimal().Equal(dec("500")))
	assert.Empty(t, res.Open)
	assert.Empty(t, res.Warnings)
}

func TestMatchTransferWithoutDirection(t *testing.T) {
	events := []TradeEvent{
		trade("1", "2024-01-01", "A1", "BUY", "XYZ", 10, 10),
		transfer("2", "2024-02-01", "A2", "", "XYZ", 10),
		transfer("3", "2024-02-01", "A1", "", "XYZ", -10),
	}
	res := Matcher{}.Match(context.Background(), events)

	assert.Len(t, res.Warnings, 2)
	assert.Zero(t, res.Stats.TransfersLinked)
	open := res.Open[PositionKey{"A1", "XYZ", "CAD"}]
	require.Len(t, open, 1, "positions are left unchanged")
	assert.True(t, open[0].Quantity.Decimal().Equal(dec("10")))
	assert.NotContains(t, res.Open, PositionKey{"A2", "XYZ", "CAD"})
}

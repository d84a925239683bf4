package yahoo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPayload = `{
  "quotes": [
    {"symbol": "RYAAY", "quoteType": "EQUITY", "shortname": "Ryanair"},
    {"symbol": "RY-TO", "quoteType": "EQUITY", "longname": "Royal Bank of Canada", "sectorDisp": "Financial Services", "industryDisp": "Banks - Diversified", "exchDisp": "Toronto"},
    {"symbol": "RY.TO.W", "quoteType": "WARRANT"}
  ]
}`

func testClient(srv *httptest.Server) *Client {
	return &Client{
		HTTP:      srv.Client(),
		SearchURL: srv.URL + "/search",
		ChartURL:  srv.URL + "/chart",
		Attempts:  3,
		Backoff:   func(int) time.Duration { return time.Millisecond },
	}
}

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		switch r.URL.Query().Get("q") {
		case "RY.TO":
			io.WriteString(w, searchPayload)
		default:
			io.WriteString(w, `{"quotes": []}`)
		}
	}))
	defer srv.Close()
	c := testClient(srv)

	meta, found, err := c.FetchMetadata(context.Background(), "ry.to")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Provider, meta.Provider)
	assert.Equal(t, "RY.TO", meta.MarketSymbol)
	assert.Equal(t, "Royal Bank of Canada", meta.DisplayName)
	assert.Equal(t, "Financial Services", meta.Sector)
	assert.Equal(t, "Banks - Diversified", meta.Industry)
	assert.Equal(t, "Toronto", meta.Exchange)
	assert.Contains(t, meta.SourceJSON, `"RY-TO"`)

	_, found, err = c.FetchMetadata(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScore(t *testing.T) {
	tests := []struct {
		symbol, quoteType string
		want              int
	}{
		{"SHOP.TO", "EQUITY", 100 + 80 + 40 + 10},
		{"SHOP-TO", "EQUITY", 80 + 10},
		{"SHOP", "ETF", 40},
		{"XYZ", "EQUITY", 10},
	}
	for _, tt := range tests {
		got := score("SHOP.TO", map[string]any{"symbol": tt.symbol, "quoteType": tt.quoteType})
		assert.Equal(t, tt.want, got, tt.symbol)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, searchPayload)
	}))
	defer srv.Close()

	_, found, err := testClient(srv).FetchMetadata(context.Background(), "RY.TO")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	_, _, err = testClient(srv).FetchMetadata(context.Background(), "RY.TO")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chart/ENB.TO", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		// 2024-03-04 and 2024-03-05 14:30 UTC, the second close is missing.
		io.WriteString(w, `{"chart": {"result": [{
			"meta": {"currency": "CAD", "gmtoffset": -18000},
			"timestamp": [1709562600, 1709649000, 1709735400],
			"indicators": {"quote": [{"close": [47.25, null, 47.5]}]}
		}]}}`)
	}))
	defer srv.Close()

	prices, err := testClient(srv).Prices(context.Background(), "enb.to", date.MustParse("2024-03-04"), date.MustParse("2024-03-06"))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "ENB.TO", prices[0].Symbol)
	assert.Equal(t, date.MustParse("2024-03-04"), prices[0].Date)
	assert.Equal(t, "CAD", prices[0].Close.Currency())
	assert.True(t, prices[0].Close.Decimal().Equal(decimal.RequireFromString("47.25")))
	assert.Equal(t, date.MustParse("2024-03-06"), prices[1].Date)
}

func TestPricesEmptyChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"chart": {"result": []}}`)
	}))
	defer srv.Close()
	prices, err := testClient(srv).Prices(context.Background(), "X", date.MustParse("2024-03-04"), date.MustParse("2024-03-06"))
	require.NoError(t, err)
	assert.Empty(t, prices)
}

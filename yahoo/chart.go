package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
)

// Prices returns the daily closes of marketSymbol between from and to
// included. Days without a close are skipped.
func (c *Client) Prices(ctx context.Context, marketSymbol string, from, to date.Date) ([]tradehistory.Price, error) {
	marketSymbol = tradehistory.NormalizeSymbol(marketSymbol)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day()+1, 0, 0, 0, 0, time.UTC)
	q := url.Values{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Unix(), 10)},
		"interval": {"1d"},
		"events":   {"history"},
	}
	payload, err := c.getJSON(ctx, c.ChartURL+"/"+url.PathEscape(marketSymbol)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	timestamps, err := jsonpath.Get("$.chart.result[0].timestamp", payload)
	if err != nil {
		// an empty result has no timestamp
		return nil, nil
	}
	closes, err := jsonpath.Get("$.chart.result[0].indicators.quote[0].close", payload)
	if err != nil {
		return nil, fmt.Errorf("chart of %s has no close series: %w", marketSymbol, err)
	}
	currency := inferCurrency(marketSymbol)
	if v, err := jsonpath.Get("$.chart.result[0].meta.currency", payload); err == nil {
		if s, ok := v.(string); ok && s != "" {
			currency = s
		}
	}
	var offset int64
	if v, err := jsonpath.Get("$.chart.result[0].meta.gmtoffset", payload); err == nil {
		if f, ok := v.(float64); ok {
			offset = int64(f)
		}
	}

	ts, _ := timestamps.([]any)
	cs, _ := closes.([]any)
	var out []tradehistory.Price
	for i, t := range ts {
		sec, ok := t.(float64)
		if !ok || i >= len(cs) {
			continue
		}
		closing, ok := cs[i].(float64)
		if !ok {
			continue
		}
		day := time.Unix(int64(sec)+offset, 0).UTC()
		out = append(out, tradehistory.Price{
			Symbol: marketSymbol,
			Date:   date.New(day.Date()),
			Close:  tradehistory.M(decimal.NewFromFloat(closing), currency),
			Source: "yahoo",
		})
	}
	return out, nil
}

// inferCurrency guesses the quote currency from the listing suffix.
func inferCurrency(marketSymbol string) string {
	if strings.HasSuffix(marketSymbol, ".TO") || strings.HasSuffix(marketSymbol, ".V") {
		return "CAD"
	}
	return "USD"
}

// Package boc fetches daily exchange rates from the Bank of Canada Valet API.
package boc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
	"github.com/etnz/tradehistory/httpcache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultURL = "https://www.bankofcanada.ca/valet"
	// Source labels the rates this package produces.
	Source = "BoC"
)

// Client reads Valet observation series.
type Client struct {
	HTTP    *http.Client
	BaseURL string
}

// New returns a client caching responses for the day in cacheDir.
func New(baseURL, cacheDir string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{HTTP: httpcache.Daily(cacheDir), BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// Series returns the Valet series name of a pair quoted in CAD, such as FXUSDCAD.
func Series(base string) string {
	return "FX" + tradehistory.NormalizeCurrency(base) + "CAD"
}

// Fetch returns the base/CAD rates observed between from and to included.
func (c *Client) Fetch(ctx context.Context, base string, from, to date.Date) ([]tradehistory.Rate, error) {
	base = tradehistory.NormalizeCurrency(base)
	series := Series(base)
	q := url.Values{"start_date": {from.String()}, "end_date": {to.String()}}
	addr := fmt.Sprintf("%s/observations/%s/json?%s", c.BaseURL, series, q.Encode())
	zerolog.Ctx(ctx).Info().Str("series", series).Str("from", from.String()).Str("to", to.String()).Msg("downloading from Bank of Canada")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", series, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: received status %s", series, resp.Status)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var payload any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", series, err)
	}
	return parseObservations(series, base, payload)
}

// parseObservations reads the observations array. Observations without a
// date or a value are skipped.
func parseObservations(series, base string, payload any) ([]tradehistory.Rate, error) {
	observations, err := jsonpath.Get("$.observations[*]", payload)
	if err != nil {
		return nil, fmt.Errorf("%s has no observations: %w", series, err)
	}
	list, _ := observations.([]any)
	rates := make([]tradehistory.Rate, 0, len(list))
	for _, obs := range list {
		d, err := jsonpath.Get("$.d", obs)
		if err != nil {
			continue
		}
		v, err := jsonpath.Get("$."+series+".v", obs)
		if err != nil {
			continue
		}
		day, ok := d.(string)
		if !ok {
			continue
		}
		on, err := date.Parse(day)
		if err != nil {
			return nil, fmt.Errorf("invalid observation date %q: %w", day, err)
		}
		var rate decimal.Decimal
		switch v := v.(type) {
		case string:
			if rate, err = decimal.NewFromString(v); err != nil {
				return nil, fmt.Errorf("invalid %s value %q on %s: %w", series, v, day, err)
			}
		case float64:
			rate = decimal.NewFromFloat(v)
		default:
			continue
		}
		rates = append(rates, tradehistory.Rate{Base: base, Quote: "CAD", Date: on, Rate: rate, Source: Source})
	}
	return rates, nil
}

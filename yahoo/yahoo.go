// Package yahoo reads instrument metadata and daily closes from the public
// Yahoo Finance endpoints.
package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/httpcache"
	"github.com/rs/zerolog"
)

const (
	// Provider names the metadata this package produces.
	Provider = "yahoo_search"

	DefaultSearchURL = "https://query1.finance.yahoo.com/v1/finance/search"
	DefaultChartURL  = "https://query1.finance.yahoo.com/v8/finance/chart"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// ErrRateLimited is returned when the service keeps answering 429.
var ErrRateLimited = errors.New("yahoo: rate limited")

// Client queries Yahoo Finance.
type Client struct {
	HTTP      *http.Client
	SearchURL string
	ChartURL  string
	// Attempts bounds the tries of a rate limited request.
	Attempts int
	// Backoff is the pause before retry attempt (1 based).
	Backoff func(attempt int) time.Duration
}

var _ tradehistory.MetadataFetcher = (*Client)(nil)

// New returns a client caching responses for the day in cacheDir.
func New(searchURL, cacheDir string) *Client {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Client{
		HTTP:      httpcache.Daily(cacheDir),
		SearchURL: searchURL,
		ChartURL:  DefaultChartURL,
		Attempts:  3,
		Backoff:   func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}
}

// getJSON performs a GET and decodes the JSON body into an untyped value,
// retrying while the service answers 429.
func (c *Client) getJSON(ctx context.Context, addr string) (any, error) {
	log := zerolog.Ctx(ctx)
	attempts := max(c.Attempts, 1)
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		_, err = io.Copy(&buf, resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= attempts {
				return nil, fmt.Errorf("GET %s%s: %w", req.URL.Host, req.URL.Path, ErrRateLimited)
			}
			wait := time.Second
			if c.Backoff != nil {
				wait = c.Backoff(attempt)
			}
			log.Debug().Int("attempt", attempt).Dur("wait", wait).Msg("yahoo rate limited")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
		}
		var v any
		if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
			return nil, fmt.Errorf("decoding %s%s: %w", req.URL.Host, req.URL.Path, err)
		}
		return v, nil
	}
}

// FetchMetadata searches the market symbol and keeps the best quote.
func (c *Client) FetchMetadata(ctx context.Context, marketSymbol string) (tradehistory.ProviderMetadata, bool, error) {
	marketSymbol = tradehistory.NormalizeSymbol(marketSymbol)
	q := url.Values{"q": {marketSymbol}, "quotes_count": {"8"}, "news_count": {"0"}}
	payload, err := c.getJSON(ctx, c.SearchURL+"?"+q.Encode())
	if err != nil {
		return tradehistory.ProviderMetadata{}, false, err
	}
	quotes, err := jsonpath.Get("$.quotes[*]", payload)
	if err != nil {
		// no quotes key
		return tradehistory.ProviderMetadata{}, false, nil
	}
	list, _ := quotes.([]any)
	best, ok := bestQuote(marketSymbol, list)
	if !ok {
		return tradehistory.ProviderMetadata{}, false, nil
	}
	source, err := json.Marshal(best)
	if err != nil {
		return tradehistory.ProviderMetadata{}, false, err
	}
	return tradehistory.ProviderMetadata{
		Provider:     Provider,
		MarketSymbol: marketSymbol,
		DisplayName:  field(best, "longname", "shortname"),
		QuoteType:    field(best, "quoteType"),
		Sector:       field(best, "sectorDisp", "sector"),
		Industry:     field(best, "industryDisp", "industry"),
		Exchange:     field(best, "exchDisp", "exchange"),
		SourceJSON:   string(source),
	}, true, nil
}

// score ranks a quote against the searched symbol.
func score(target string, quote map[string]any) int {
	symbol := strings.ToUpper(field(quote, "symbol"))
	s := 0
	if symbol == target {
		s += 100
	}
	if strings.ReplaceAll(symbol, "-", ".") == target || strings.ReplaceAll(symbol, ".", "-") == target {
		s += 80
	}
	if strings.Contains(symbol, target) || strings.Contains(target, symbol) {
		s += 40
	}
	if field(quote, "quoteType") == "EQUITY" {
		s += 10
	}
	return s
}

// bestQuote returns the highest scored quote, the first one on ties.
func bestQuote(target string, quotes []any) (map[string]any, bool) {
	var best map[string]any
	bestScore := -1
	for _, item := range quotes {
		quote, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s := score(target, quote); s > bestScore {
			best, bestScore = quote, s
		}
	}
	return best, best != nil
}

// field returns the first non empty string among keys.
func field(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

package boc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const valet = `{
  "terms": {"url": "https://www.bankofcanada.ca/terms/"},
  "seriesDetail": {"FXUSDCAD": {"label": "USD/CAD"}},
  "observations": [
    {"d": "2024-01-02", "FXUSDCAD": {"v": "1.3316"}},
    {"d": "2024-01-03", "FXUSDCAD": {}},
    {"d": "2024-01-04", "FXUSDCAD": {"v": "1.3357"}}
  ]
}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/valet/observations/FXUSDCAD/json", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2024-01-05", r.URL.Query().Get("end_date"))
		io.WriteString(w, valet)
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client(), BaseURL: srv.URL + "/valet"}
	rates, err := c.Fetch(context.Background(), "usd", date.MustParse("2024-01-01"), date.MustParse("2024-01-05"))
	require.NoError(t, err)
	require.Len(t, rates, 2, "observations without a value are skipped")
	assert.Equal(t, "USD/CAD", rates[0].Pair())
	assert.Equal(t, date.MustParse("2024-01-02"), rates[0].Date)
	assert.True(t, rates[0].Rate.Equal(decimal.RequireFromString("1.3316")))
	assert.Equal(t, Source, rates[1].Source)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"status", http.StatusNotFound, `{}`},
		{"no observations", http.StatusOK, `{"seriesDetail": {}}`},
		{"bad date", http.StatusOK, `{"observations": [{"d": "02/01/2024", "FXUSDCAD": {"v": "1.3"}}]}`},
		{"bad value", http.StatusOK, `{"observations": [{"d": "2024-01-02", "FXUSDCAD": {"v": "n/a"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			c := &Client{HTTP: srv.Client(), BaseURL: srv.URL}
			_, err := c.Fetch(context.Background(), "USD", date.MustParse("2024-01-01"), date.MustParse("2024-01-05"))
			assert.Error(t, err)
		})
	}
}

func TestSeries(t *testing.T) {
	assert.Equal(t, "FXEURCAD", Series(" eur"))
}

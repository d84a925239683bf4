package httpcache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/etnz/tradehistory/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	day := date.MustParse("2024-05-01")
	tr := &Transport{Dir: t.TempDir(), Today: func() date.Date { return day }}
	client := &http.Client{Transport: tr}

	get := func(path string) (int, string) {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, body := get("/quote")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `{"ok":true}`, body)
	_, body = get("/quote")
	assert.Equal(t, `{"ok":true}`, body)
	assert.Equal(t, int32(1), hits.Load(), "second call is served from disk")

	day = day.Add(1)
	get("/quote")
	assert.Equal(t, int32(2), hits.Load(), "entries expire with the day")

	code, _ = get("/missing")
	assert.Equal(t, http.StatusNotFound, code)
	get("/missing")
	assert.Equal(t, int32(4), hits.Load(), "failures are not cached")
}

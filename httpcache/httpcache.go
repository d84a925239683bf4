// Package httpcache is an http.RoundTripper that keeps successful responses
// on disk for the rest of the day.
package httpcache

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"

	"github.com/etnz/tradehistory/date"
	"github.com/rs/zerolog"
)

// Transport implements a simple disk cache for HTTP responses. Entries are
// keyed by day, so the cache expires every day.
type Transport struct {
	// Base performs the actual requests. Nil means http.DefaultTransport.
	Base http.RoundTripper
	// Dir holds the cached responses. Empty means os.TempDir.
	Dir string
	// Today returns the current day. Nil means date.Today.
	Today func() date.Date
}

func (c *Transport) base() http.RoundTripper {
	if c.Base == nil {
		return http.DefaultTransport
	}
	return c.Base
}

func (c *Transport) dir() string {
	if c.Dir == "" {
		return os.TempDir()
	}
	return c.Dir
}

func (c *Transport) key(req *http.Request) string {
	today := date.Today
	if c.Today != nil {
		today = c.Today
	}
	key := fmt.Sprintf("%s %s %s", today(), req.Method, req.URL.String())
	return fmt.Sprintf("th-%x", sha1.Sum([]byte(key)))
}

// RoundTrip returns the cached response of the day if any, otherwise
// performs the request and caches it when successful.
func (c *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := zerolog.Ctx(req.Context())
	if req.Method != http.MethodGet {
		return c.base().RoundTrip(req)
	}
	key := c.key(req)
	if cached, err := c.get(key, req); err == nil {
		log.Debug().Str("url", req.URL.Redacted()).Msg("http cache hit")
		return cached, nil
	}

	resp, err := c.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("method", req.Method).Str("host", req.URL.Host).Str("path", req.URL.Path).Str("status", resp.Status).Msg("http")
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	if err := c.put(key, resp); err != nil {
		log.Warn().Err(err).Msg("cache write failed (ignored)")
	}
	return resp, nil
}

func (c *Transport) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir(), key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
}

// put stores the response. DumpResponse leaves resp.Body readable.
func (c *Transport) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir(), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir(), key), content, 0o644)
}

// Daily returns a client caching responses in dir for the day.
func Daily(dir string) *http.Client {
	return &http.Client{Transport: &Transport{Dir: dir}}
}

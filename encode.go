package tradehistory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// maxLineSize bounds one JSONL record; raw statement lines can be long.
const maxLineSize = 1 << 20

// DecodeJSONL decodes one T per non empty line. name is for error messages only.
func DecodeJSONL[T any](name string, r io.Reader) ([]T, error) {
	var out []T
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("format error in %q on line %d: %w", name, n, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	return out, nil
}

// EncodeJSONL writes one JSON record per line.
func EncodeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, v := range items {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeEvents decodes a JSONL ledger of trade events and checks identities are unique.
func DecodeEvents(name string, r io.Reader) ([]TradeEvent, error) {
	events, err := DecodeJSONL[TradeEvent](name, r)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(events))
	for i, e := range events {
		if e.ID == "" {
			return nil, fmt.Errorf("format error in %q: event %d has no event_id", name, i+1)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("format error in %q: event_id %q is already defined", name, e.ID)
		}
		seen[e.ID] = true
		if e.TradeDate.IsZero() {
			return nil, fmt.Errorf("format error in %q: event %q has no trade_date", name, e.ID)
		}
	}
	return events, nil
}

type priceWire struct {
	Symbol   string          `json:"symbol"`
	Date     date.Date       `json:"date"`
	Close    decimal.Decimal `json:"close"`
	Currency string          `json:"currency"`
	Source   string          `json:"source,omitempty"`
}

func (p *Price) UnmarshalJSON(b []byte) error {
	var w priceWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = Price{Symbol: NormalizeSymbol(w.Symbol), Date: w.Date, Close: M(w.Close, w.Currency), Source: w.Source}
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceWire{Symbol: p.Symbol, Date: p.Date, Close: p.Close.Decimal(), Currency: p.Close.Currency(), Source: p.Source})
}

// UnmarshalJSON decodes a rate and normalizes its currencies.
func (r *Rate) UnmarshalJSON(b []byte) error {
	type plain Rate
	var w plain
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Rate(w)
	r.Base, r.Quote = NormalizeCurrency(r.Base), NormalizeCurrency(r.Quote)
	if r.Base == "" || r.Quote == "" {
		return fmt.Errorf("rate %s has no currency pair", r.Date)
	}
	return nil
}

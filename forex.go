package tradehistory

import (
	"fmt"
	"sync"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
)

// Rate is one observation: 1 unit of Base is worth Rate units of Quote on Date.
type Rate struct {
	Base   string          `json:"base_currency"`
	Quote  string          `json:"quote_currency"`
	Date   date.Date       `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source,omitempty"`
}

// Pair returns the "BASE/QUOTE" key of the rate.
func (r Rate) Pair() string { return pairKey(r.Base, r.Quote) }

func pairKey(base, quote string) string {
	return NormalizeCurrency(base) + "/" + NormalizeCurrency(quote)
}

// RateTable is a versioned table of exchange rates per currency pair.
//
// Inverse pairs are derived on lookup. A RateTable is safe for concurrent
// reads once built; Add bumps the version.
type RateTable struct {
	mu      sync.RWMutex
	pairs   map[string]*date.History[decimal.Decimal]
	version int
}

// NewRateTable returns a table holding rates.
func NewRateTable(rates ...Rate) *RateTable {
	t := &RateTable{pairs: make(map[string]*date.History[decimal.Decimal])}
	t.Add(rates...)
	return t
}

// Add records rates, overwriting existing observations on the same day.
func (t *RateTable) Add(rates ...Rate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rates {
		if r.Rate.IsZero() || r.Rate.IsNegative() {
			continue
		}
		k := r.Pair()
		h, ok := t.pairs[k]
		if !ok {
			h = new(date.History[decimal.Decimal])
			t.pairs[k] = h
		}
		h.Append(r.Date, r.Rate)
	}
	t.version++
}

// Version is incremented on every Add.
func (t *RateTable) Version() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Len returns the number of pairs in the table.
func (t *RateTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pairs)
}

// lookup finds the rate from -> to on the given day. When asOf is true the
// most recent rate on or before the day is accepted.
func (t *RateTable) lookup(from, to string, on date.Date, asOf bool) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	get := func(h *date.History[decimal.Decimal]) (decimal.Decimal, bool) {
		if asOf {
			v, _, ok := h.ValueAsOf(on)
			return v, ok
		}
		return h.Get(on)
	}
	if h, ok := t.pairs[pairKey(from, to)]; ok {
		if v, ok := get(h); ok {
			return v, true
		}
	}
	if h, ok := t.pairs[pairKey(to, from)]; ok {
		if v, ok := get(h); ok && !v.IsZero() {
			return decimal.NewFromInt(1).Div(v), true
		}
	}
	return decimal.Decimal{}, false
}

// Converter converts money between currencies using a RateTable.
type Converter struct {
	Rates *RateTable
}

// NewConverter returns a Converter over rates.
func NewConverter(rates *RateTable) Converter { return Converter{Rates: rates} }

// Convert converts amount to the target currency using the rate observed
// exactly on the given day.
//
// It is the identity when currencies match and fails with ErrRateUnavailable
// when the table has no rate for that pair and day.
func (c Converter) Convert(amount Money, on date.Date, to string) (Money, error) {
	return c.convert(amount, on, to, false)
}

// ConvertAsOf is Convert with the "nearest prior available rate" policy: the
// most recent rate on or before the day is used, and ErrRateUnavailable is
// returned only when none exists. Valuation and reconciliation use it.
func (c Converter) ConvertAsOf(amount Money, on date.Date, to string) (Money, error) {
	return c.convert(amount, on, to, true)
}

func (c Converter) convert(amount Money, on date.Date, to string, asOf bool) (Money, error) {
	to = NormalizeCurrency(to)
	from := amount.Currency()
	if from == to || from == "" {
		return amount.In(to), nil
	}
	if c.Rates == nil {
		return Money{}, fmt.Errorf("%w: %s/%s on %s", ErrRateUnavailable, from, to, on)
	}
	rate, ok := c.Rates.lookup(from, to, on, asOf)
	if !ok {
		return Money{}, fmt.Errorf("%w: %s/%s on %s", ErrRateUnavailable, from, to, on)
	}
	return amount.scale(rate).In(to), nil
}

// ConvertNull converts a nullable amount with the nearest prior rate.
// Unknown stays unknown and a missing rate yields unknown, never zero.
func (c Converter) ConvertNull(amount NullMoney, on date.Date, to string) NullMoney {
	if !amount.Valid {
		return Unknown(to)
	}
	m, err := c.ConvertAsOf(amount.Money, on, to)
	if err != nil {
		return Unknown(to)
	}
	return m.Null()
}

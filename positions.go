package tradehistory

import (
	"slices"
	"strings"
	"sync"

	"github.com/etnz/tradehistory/date"
)

// Price is one quote observation for a market symbol.
type Price struct {
	Symbol string    `json:"symbol"`
	Date   date.Date `json:"date"`
	Close  Money     `json:"close"`
	Source string    `json:"source,omitempty"`
}

// PriceBook holds the known quotes per symbol.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]*date.History[Money]
}

// NewPriceBook returns a PriceBook holding prices.
func NewPriceBook(prices ...Price) *PriceBook {
	b := &PriceBook{prices: make(map[string]*date.History[Money])}
	b.Add(prices...)
	return b
}

// Add records quotes, overwriting an existing quote on the same day.
func (b *PriceBook) Add(prices ...Price) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range prices {
		s := NormalizeSymbol(p.Symbol)
		h, ok := b.prices[s]
		if !ok {
			h = new(date.History[Money])
			b.prices[s] = h
		}
		h.Append(p.Date, p.Close)
	}
}

// PriceAsOf returns the latest quote of symbol on or before the day.
func (b *PriceBook) PriceAsOf(symbol string, on date.Date) (Money, date.Date, bool) {
	if b == nil {
		return Money{}, date.Date{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.prices[NormalizeSymbol(symbol)]
	if !ok {
		return Money{}, date.Date{}, false
	}
	return h.ValueAsOf(on)
}

// Position is the current net holding of one symbol in one account.
type Position struct {
	Account      string    `json:"account_id"`
	Institution  string    `json:"institution"`
	Symbol       string    `json:"symbol"`
	AssetType    string    `json:"asset_type"`
	MarketSymbol string    `json:"market_symbol"`
	Sector       string    `json:"sector"`
	Currency     string    `json:"currency"`
	Quantity     Quantity  `json:"quantity"`
	Price        NullMoney `json:"price_native"`
	PriceDate    date.Date `json:"price_date"`
	MarketValue  NullMoney `json:"market_value_native"`
	CostBasis    Money     `json:"cost_basis_native"`
	UnrealizedPL NullMoney `json:"unrealized_pl_native"`
	Lots         int       `json:"lots"`
}

// positionKey groups open lots into positions.
type positionKey struct {
	account, symbol, assetType, currency string
}

// Positions derives the positions held on the given day from open lots.
//
// Prices are looked up by resolved market symbol first, then by the raw
// symbol. A position without a quote, or quoted in another currency, has a
// null price, market value and unrealized P&L.
func Positions(open []OpenLot, prices *PriceBook, idx *SymbolIndex, on date.Date) []Position {
	byKey := make(map[positionKey]*Position)
	var keys []positionKey
	for _, l := range open {
		k := positionKey{l.Account, l.Symbol, l.AssetType, l.Currency}
		p, ok := byKey[k]
		if !ok {
			p = &Position{
				Account:     l.Account,
				Institution: l.Institution,
				Symbol:      l.Symbol,
				AssetType:   l.AssetType,
				Currency:    l.Currency,
				CostBasis:   M(0, l.Currency),
			}
			byKey[k] = p
			keys = append(keys, k)
		}
		p.Quantity = p.Quantity.Add(l.Quantity)
		p.CostBasis = p.CostBasis.Add(l.Cost)
		p.Lots++
	}

	out := make([]Position, 0, len(keys))
	for _, k := range keys {
		p := byKey[k]
		if p.Quantity.nearlyZero() {
			continue
		}
		res := idx.Resolve(p.Symbol)
		p.MarketSymbol, p.Sector = res.MarketSymbol, res.Sector
		p.Price, p.MarketValue, p.UnrealizedPL = Unknown(p.Currency), Unknown(p.Currency), Unknown(p.Currency)

		price, day, ok := prices.PriceAsOf(p.MarketSymbol, on)
		if !ok {
			price, day, ok = prices.PriceAsOf(p.Symbol, on)
		}
		if ok && (price.Currency() == p.Currency || price.Currency() == "") {
			price = price.In(p.Currency)
			p.Price, p.PriceDate = price.Null(), day
			value := price.Mul(p.Quantity)
			p.MarketValue = value.Null()
			p.UnrealizedPL = value.Sub(p.CostBasis).Null()
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, comparePositions)
	return out
}

func comparePositions(a, b Position) int {
	if c := comparePositionKeys(PositionKey{a.Account, a.Symbol, a.Currency}, PositionKey{b.Account, b.Symbol, b.Currency}); c != 0 {
		return c
	}
	return strings.Compare(a.AssetType, b.AssetType)
}

package tradehistory

import (
	"fmt"
	"slices"
	"strings"
)

// UnknownSector is the sector of a symbol no source knows about.
const UnknownSector = "Unknown"

// NormalizeSymbol returns the canonical key of a raw ticker.
func NormalizeSymbol(raw string) string { return strings.ToUpper(strings.TrimSpace(raw)) }

// Override is a user-entered correction for a symbol. It has the highest precedence.
type Override struct {
	Symbol       string `json:"symbol_norm"`
	MarketSymbol string `json:"market_symbol"`
	Sector       string `json:"sector_override,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Active       bool   `json:"is_active"`
}

// ProviderMetadata is what a market data provider knows about a symbol.
type ProviderMetadata struct {
	Symbol       string `json:"symbol_norm"`
	Provider     string `json:"provider"`
	MarketSymbol string `json:"market_symbol,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	QuoteType    string `json:"quote_type,omitempty"`
	Sector       string `json:"sector,omitempty"`
	Industry     string `json:"industry,omitempty"`
	Exchange     string `json:"exchange,omitempty"`
	SourceJSON   string `json:"-"`
}

// Instrument is the metadata attached to a symbol by ingestion.
type Instrument struct {
	Symbol       string `json:"symbol_norm"`
	SymbolRaw    string `json:"symbol_raw,omitempty"`
	AssetType    string `json:"asset_type,omitempty"`
	MarketSymbol string `json:"market_symbol,omitempty"`
	Sector       string `json:"sector,omitempty"`
	Exchange     string `json:"exchange,omitempty"`
}

// SymbolFacts gathers everything known about one symbol. Nil members are absent.
type SymbolFacts struct {
	Symbol     string
	Override   *Override
	Provider   *ProviderMetadata
	Instrument *Instrument
}

// Resolution is the outcome of resolving a symbol.
type Resolution struct {
	Symbol             string `json:"symbol_norm"`
	MarketSymbol       string `json:"resolved_market_symbol"`
	MarketSymbolSource string `json:"market_symbol_source"`
	Sector             string `json:"resolved_sector"`
	SectorSource       string `json:"sector_source"`
}

// Source is one candidate in the precedence chain.
// An empty answer means "no opinion" and the next source is asked.
type Source interface {
	Name() string
	MarketSymbol(SymbolFacts) string
	Sector(SymbolFacts) string
}

type overrideSource struct{}

func (overrideSource) Name() string { return "override" }
func (overrideSource) MarketSymbol(f SymbolFacts) string {
	if f.Override == nil || !f.Override.Active {
		return ""
	}
	return f.Override.MarketSymbol
}
func (overrideSource) Sector(f SymbolFacts) string {
	if f.Override == nil || !f.Override.Active {
		return ""
	}
	return f.Override.Sector
}

type providerSource struct{}

func (providerSource) Name() string { return "provider" }
func (providerSource) MarketSymbol(f SymbolFacts) string {
	if f.Provider == nil {
		return ""
	}
	return f.Provider.MarketSymbol
}
func (providerSource) Sector(f SymbolFacts) string {
	if f.Provider == nil {
		return ""
	}
	return f.Provider.Sector
}

type instrumentSource struct{}

func (instrumentSource) Name() string { return "instrument" }
func (instrumentSource) MarketSymbol(f SymbolFacts) string {
	if f.Instrument == nil {
		return ""
	}
	return f.Instrument.MarketSymbol
}
func (instrumentSource) Sector(f SymbolFacts) string {
	if f.Instrument == nil {
		return ""
	}
	return f.Instrument.Sector
}

// aliasSource maps brokerage company-name symbols to their market ticker.
type aliasSource map[string]string

func (aliasSource) Name() string                      { return "alias" }
func (a aliasSource) MarketSymbol(f SymbolFacts) string { return a[f.Symbol] }
func (aliasSource) Sector(SymbolFacts) string         { return "" }

// DefaultAliases are the company-name symbols some statements print instead of tickers.
var DefaultAliases = map[string]string{
	"ADOBE": "ADBE", "ADVANCED": "AMD", "AIRBNB": "ABNB", "ALPHABET": "GOOGL",
	"APPLE": "AAPL", "B2GOLD": "BTO.TO", "BARRICK": "ABX.TO", "BCEINC": "BCE.TO",
	"CELESTICA": "CLS.TO", "CENOVUS": "CVE.TO", "ENBRIDGE": "ENB.TO", "FORTIS": "FTS.TO",
	"HECLA": "HL", "MICROCHIP": "MCHP", "MICROSOFT": "MSFT", "NATIONAL": "NA.TO",
	"NEWMONT": "NEM", "NEXTERA": "NEE", "NUTRIEN": "NTR.TO", "NVIDIA": "NVDA",
	"PFIZER": "PFE", "QUALCOMM": "QCOM", "REDDIT": "RDDT", "ROGERS": "RCI.B.TO",
	"ROYALBANK": "RY.TO", "SANDSTORM": "SSL.TO", "SHOPIFYINC": "SHOP.TO", "SUNCOR": "SU.TO",
	"TELUSCORP": "T.TO", "TORONTO": "TD.TO", "WHEATON": "WPM.TO",
}

// DefaultChain is the precedence used when none is configured.
const DefaultChain = "override,provider,instrument,alias"

// ParseChain builds a precedence chain from a comma separated list of source names.
func ParseChain(spec string) ([]Source, error) {
	var chain []Source
	seen := map[string]bool{}
	for _, name := range strings.Split(spec, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("symbol source %q listed twice", name)
		}
		seen[name] = true
		switch name {
		case "override":
			chain = append(chain, overrideSource{})
		case "provider":
			chain = append(chain, providerSource{})
		case "instrument":
			chain = append(chain, instrumentSource{})
		case "alias":
			chain = append(chain, aliasSource(DefaultAliases))
		default:
			return nil, fmt.Errorf("unknown symbol source %q", name)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("empty symbol source chain %q", spec)
	}
	return chain, nil
}

// Resolver resolves symbols along an ordered chain of sources: the first
// non-empty answer wins.
type Resolver struct {
	chain []Source
}

// NewResolver returns a Resolver over chain, or over DefaultChain when empty.
func NewResolver(chain ...Source) Resolver {
	if len(chain) == 0 {
		chain, _ = ParseChain(DefaultChain)
	}
	return Resolver{chain: chain}
}

// Chain returns the names of the sources in precedence order.
func (r Resolver) Chain() []string {
	names := make([]string, len(r.chain))
	for i, s := range r.chain {
		names[i] = s.Name()
	}
	return names
}

// Resolve is pure and total: missing data falls back to the raw symbol and
// to UnknownSector.
func (r Resolver) Resolve(symbol string, facts SymbolFacts) Resolution {
	facts.Symbol = NormalizeSymbol(symbol)
	res := Resolution{
		Symbol:             facts.Symbol,
		MarketSymbol:       facts.Symbol,
		MarketSymbolSource: "symbol",
		Sector:             UnknownSector,
		SectorSource:       "fallback",
	}
	for _, s := range r.chain {
		if v := strings.TrimSpace(s.MarketSymbol(facts)); v != "" {
			res.MarketSymbol, res.MarketSymbolSource = strings.ToUpper(v), s.Name()
			break
		}
	}
	for _, s := range r.chain {
		if v := strings.TrimSpace(s.Sector(facts)); v != "" {
			res.Sector, res.SectorSource = v, s.Name()
			break
		}
	}
	return res
}

// SymbolIndex is an immutable snapshot of everything known about symbols.
// It is built per request and can be shared by concurrent readers.
type SymbolIndex struct {
	resolver    Resolver
	overrides   map[string]Override
	providers   map[string]ProviderMetadata
	instruments map[string]Instrument
}

// NewSymbolIndex snapshots the given overrides, provider metadata and instruments.
// Inactive overrides are kept for listing but ignored by resolution.
func NewSymbolIndex(r Resolver, overrides []Override, providers []ProviderMetadata, instruments []Instrument) *SymbolIndex {
	idx := &SymbolIndex{
		resolver:    r,
		overrides:   make(map[string]Override, len(overrides)),
		providers:   make(map[string]ProviderMetadata, len(providers)),
		instruments: make(map[string]Instrument, len(instruments)),
	}
	for _, o := range overrides {
		o.Symbol = NormalizeSymbol(o.Symbol)
		idx.overrides[o.Symbol] = o
	}
	for _, p := range providers {
		p.Symbol = NormalizeSymbol(p.Symbol)
		idx.providers[p.Symbol] = p
	}
	for _, i := range instruments {
		i.Symbol = NormalizeSymbol(i.Symbol)
		idx.instruments[i.Symbol] = i
	}
	return idx
}

// Facts returns what the index knows about symbol.
func (idx *SymbolIndex) Facts(symbol string) SymbolFacts {
	symbol = NormalizeSymbol(symbol)
	f := SymbolFacts{Symbol: symbol}
	if idx == nil {
		return f
	}
	if o, ok := idx.overrides[symbol]; ok {
		f.Override = &o
	}
	if p, ok := idx.providers[symbol]; ok {
		f.Provider = &p
	}
	if i, ok := idx.instruments[symbol]; ok {
		f.Instrument = &i
	}
	return f
}

// Resolve resolves symbol against the snapshot.
func (idx *SymbolIndex) Resolve(symbol string) Resolution {
	if idx == nil {
		return NewResolver().Resolve(symbol, SymbolFacts{})
	}
	return idx.resolver.Resolve(symbol, idx.Facts(symbol))
}

// Instruments returns the instruments of the snapshot ordered by symbol.
func (idx *SymbolIndex) Instruments() []Instrument {
	if idx == nil {
		return nil
	}
	out := make([]Instrument, 0, len(idx.instruments))
	for _, i := range idx.instruments {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b Instrument) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}

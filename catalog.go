package tradehistory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// CatalogEntry describes one equity symbol and how it resolves.
type CatalogEntry struct {
	Resolution
	SampleSymbolRaw     string
	EventCount          int
	AccountCount        int
	DefaultMarketSymbol string

	OverrideMarketSymbol string
	OverrideSector       string
	OverrideNotes        string
	OverrideActive       bool

	ProviderSector   string
	ProviderIndustry string
	ProviderExchange string
	InstrumentSector string
}

// MarshalJSON writes the entry in the stable wire vocabulary, absent
// metadata as null.
func (c CatalogEntry) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("symbol_norm", c.Symbol)
	w.Nullable("sample_symbol_raw", c.SampleSymbolRaw)
	w.Append("event_count", c.EventCount)
	w.Append("account_count", c.AccountCount)
	w.Append("default_market_symbol", c.DefaultMarketSymbol)
	w.Append("resolved_market_symbol", c.MarketSymbol)
	w.Append("market_symbol_source", c.MarketSymbolSource)
	w.Append("resolved_sector", c.Sector)
	w.Append("sector_source", c.SectorSource)
	w.Nullable("override_market_symbol", c.OverrideMarketSymbol)
	w.Nullable("override_sector", c.OverrideSector)
	w.Nullable("override_notes", c.OverrideNotes)
	w.Append("override_active", c.OverrideActive)
	w.Nullable("provider_sector", c.ProviderSector)
	w.Nullable("provider_industry", c.ProviderIndustry)
	w.Nullable("provider_exchange", c.ProviderExchange)
	w.Nullable("instrument_sector", c.InstrumentSector)
	return w.MarshalJSON()
}

func isEquity(assetType string) bool { return assetType == "" || assetType == "equity" }

// Catalog lists the equity symbols known from events and instruments,
// most traded first. query is a case insensitive substring filter.
func Catalog(events []TradeEvent, idx *SymbolIndex, query string) []CatalogEntry {
	query = NormalizeSymbol(query)
	type counts struct {
		events   int
		accounts map[string]bool
	}
	seen := make(map[string]*counts)
	add := func(symbol string) *counts {
		c, ok := seen[symbol]
		if !ok {
			c = &counts{accounts: make(map[string]bool)}
			seen[symbol] = c
		}
		return c
	}
	for _, i := range idx.Instruments() {
		if isEquity(i.AssetType) {
			add(i.Symbol)
		}
	}
	for _, e := range events {
		if e.Symbol == "" || !isEquity(e.AssetType) {
			continue
		}
		c := add(e.Symbol)
		c.events++
		c.accounts[e.Account] = true
	}

	out := make([]CatalogEntry, 0, len(seen))
	for symbol, c := range seen {
		if query != "" && !strings.Contains(symbol, query) {
			continue
		}
		facts := idx.Facts(symbol)
		entry := CatalogEntry{
			Resolution:          idx.Resolve(symbol),
			SampleSymbolRaw:     symbol,
			EventCount:          c.events,
			AccountCount:        len(c.accounts),
			DefaultMarketSymbol: symbol,
		}
		if alias, ok := DefaultAliases[symbol]; ok {
			entry.DefaultMarketSymbol = alias
		}
		if o := facts.Override; o != nil && o.Active {
			entry.OverrideMarketSymbol, entry.OverrideSector, entry.OverrideNotes = o.MarketSymbol, o.Sector, o.Notes
			entry.OverrideActive = true
		}
		if p := facts.Provider; p != nil {
			entry.ProviderSector, entry.ProviderIndustry, entry.ProviderExchange = p.Sector, p.Industry, p.Exchange
		}
		if i := facts.Instrument; i != nil {
			entry.InstrumentSector = i.Sector
			if i.SymbolRaw != "" {
				entry.SampleSymbolRaw = i.SymbolRaw
			}
		}
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b CatalogEntry) int {
		return cmp.Or(cmp.Compare(b.EventCount, a.EventCount), strings.Compare(a.Symbol, b.Symbol))
	})
	return out
}

// MetadataFetcher looks a market symbol up at a metadata provider. found is
// false when the provider does not know the symbol.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, marketSymbol string) (meta ProviderMetadata, found bool, err error)
}

// MetadataFetchers asks each fetcher in turn. The first found metadata wins;
// later fetchers only fill a missing sector.
type MetadataFetchers []MetadataFetcher

func (fs MetadataFetchers) FetchMetadata(ctx context.Context, marketSymbol string) (ProviderMetadata, bool, error) {
	var (
		meta  ProviderMetadata
		found bool
		errs  []error
	)
	for _, f := range fs {
		m, ok, err := f.FetchMetadata(ctx, marketSymbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if !found {
			meta, found = m, true
		} else if strings.TrimSpace(meta.Sector) == "" {
			meta.Sector = m.Sector
		}
		if strings.TrimSpace(meta.Sector) != "" {
			break
		}
	}
	if found {
		return meta, true, nil
	}
	return ProviderMetadata{}, false, errors.Join(errs...)
}

// MetadataStore persists what RefreshSectors learns.
type MetadataStore interface {
	SaveMetadata(ctx context.Context, meta ProviderMetadata) error
	SetInstrumentSector(ctx context.Context, symbol, sector string) error
}

// RefreshResult counts what RefreshSectors touched.
type RefreshResult struct {
	MetadataRows   int `json:"metadata_rows"`
	SectorsUpdated int `json:"sectors_updated"`
}

// RefreshSectors fetches provider metadata for symbols and records the
// sector of each instrument: an active override sector wins over the
// discovered one.
//
// A symbol the fetcher fails on is skipped and its error returned joined
// with the others after the batch; a store failure aborts the batch.
func RefreshSectors(ctx context.Context, symbols []string, idx *SymbolIndex, fetcher MetadataFetcher, store MetadataStore) (RefreshResult, error) {
	log := zerolog.Ctx(ctx)
	var (
		res  RefreshResult
		errs []error
	)
	for _, symbol := range symbols {
		symbol = NormalizeSymbol(symbol)
		if symbol == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		marketSymbol := idx.Resolve(symbol).MarketSymbol
		meta, found, err := fetcher.FetchMetadata(ctx, marketSymbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("metadata fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
		sector := ""
		if found {
			meta.Symbol = symbol
			if meta.MarketSymbol == "" {
				meta.MarketSymbol = marketSymbol
			}
			if err := store.SaveMetadata(ctx, meta); err != nil {
				return res, fmt.Errorf("saving metadata of %s: %w", symbol, err)
			}
			res.MetadataRows++
			sector = strings.TrimSpace(meta.Sector)
		}
		if o := idx.Facts(symbol).Override; o != nil && o.Active && o.Sector != "" {
			sector = o.Sector
		}
		if sector == "" {
			continue
		}
		if err := store.SetInstrumentSector(ctx, symbol, sector); err != nil {
			return res, fmt.Errorf("updating sector of %s: %w", symbol, err)
		}
		res.SectorsUpdated++
	}
	log.Info().Int("metadata_rows", res.MetadataRows).Int("sectors_updated", res.SectorsUpdated).Msg("sectors refreshed")
	return res, errors.Join(errs...)
}

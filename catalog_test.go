package tradehistory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	events := []TradeEvent{
		trade("1", "2024-01-01", "A1", "BUY", "AAPL", 1, 1),
		trade("2", "2024-01-02", "A2", "BUY", "AAPL", 1, 1),
		trade("3", "2024-01-03", "A1", "BUY", "APPLE", 1, 1),
		cash("4", "2024-01-04", "A1", EventDeposit, 10),
	}
	bond := trade("5", "2024-01-05", "A1", "BUY", "GOVT", 1, 1)
	bond.AssetType = "bond"
	events = append(events, bond)

	idx := NewSymbolIndex(NewResolver(),
		[]Override{{Symbol: "AAPL", MarketSymbol: "AAPL-OV", Sector: "Tech", Notes: "n", Active: true}},
		[]ProviderMetadata{{Symbol: "AAPL", Sector: "Technology", Industry: "Hardware", Exchange: "NMS"}},
		[]Instrument{{Symbol: "MSFT", SymbolRaw: "msft", AssetType: "equity", Sector: "Software"}},
	)

	got := Catalog(events, idx, "")
	require.Len(t, got, 3)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, 2, got[0].EventCount)
	assert.Equal(t, 2, got[0].AccountCount)
	assert.Equal(t, "AAPL-OV", got[0].MarketSymbol)
	assert.Equal(t, "Tech", got[0].Sector)
	assert.Equal(t, "Technology", got[0].ProviderSector)
	assert.True(t, got[0].OverrideActive)

	assert.Equal(t, "APPLE", got[1].Symbol)
	assert.Equal(t, "AAPL", got[1].DefaultMarketSymbol)

	assert.Equal(t, "MSFT", got[2].Symbol)
	assert.Equal(t, 0, got[2].EventCount)
	assert.Equal(t, "msft", got[2].SampleSymbolRaw)

	filtered := Catalog(events, idx, "app")
	assert.Len(t, filtered, 2)
}

func TestMemoryOverrides(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryOverrides()
	require.NoError(t, err)

	o, err := s.UpsertOverride(ctx, Override{Symbol: " shop ", Sector: " Tech ", Active: true})
	require.NoError(t, err)
	assert.Equal(t, Override{Symbol: "SHOP", MarketSymbol: "SHOP", Sector: "Tech", Active: true}, o)

	_, err = s.UpsertOverride(ctx, Override{Symbol: "  "})
	assert.Error(t, err)

	o, err = s.DeleteOverride(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, o.Active)
	all, err := s.Overrides(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "delete is a soft delete")
	assert.False(t, all[0].Active)

	_, err = s.DeleteOverride(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeFetcher map[string]ProviderMetadata

func (f fakeFetcher) FetchMetadata(_ context.Context, s string) (ProviderMetadata, bool, error) {
	if s == "BOOM" {
		return ProviderMetadata{}, false, errors.New("boom")
	}
	m, ok := f[s]
	return m, ok, nil
}

type fakeMetadataStore struct {
	saved   []ProviderMetadata
	sectors map[string]string
}

func (s *fakeMetadataStore) SaveMetadata(_ context.Context, m ProviderMetadata) error {
	s.saved = append(s.saved, m)
	return nil
}

func (s *fakeMetadataStore) SetInstrumentSector(_ context.Context, symbol, sector string) error {
	if s.sectors == nil {
		s.sectors = make(map[string]string)
	}
	s.sectors[symbol] = sector
	return nil
}

func TestRefreshSectors(t *testing.T) {
	idx := NewSymbolIndex(NewResolver(),
		[]Override{{Symbol: "SHOP", MarketSymbol: "SHOP.TO", Sector: "Commerce", Active: true}},
		nil, nil)
	fetcher := fakeFetcher{
		"SHOP.TO": {Provider: "yahoo_search", Sector: "Technology"},
		"AAPL":    {Provider: "yahoo_search", Sector: "Technology"},
		"MSFT":    {Provider: "yahoo_search"},
	}
	store := &fakeMetadataStore{}

	res, err := RefreshSectors(context.Background(), []string{"shop", "aapl", "msft", "zzz", "boom"}, idx, fetcher, store)
	require.Error(t, err, "fetch errors are reported after the batch")
	assert.Equal(t, RefreshResult{MetadataRows: 3, SectorsUpdated: 2}, res)
	assert.Equal(t, "Commerce", store.sectors["SHOP"], "override sector wins")
	assert.Equal(t, "Technology", store.sectors["AAPL"])
	assert.Equal(t, "SHOP.TO", store.saved[0].MarketSymbol)
	assert.Equal(t, "SHOP", store.saved[0].Symbol)
}

func TestMetadataFetchersFillSector(t *testing.T) {
	fs := MetadataFetchers{
		fakeFetcher{"X": {Provider: "yahoo_search", DisplayName: "X Corp"}},
		fakeFetcher{"X": {Provider: "gemini", Sector: "Energy"}},
	}
	m, ok, err := fs.FetchMetadata(context.Background(), "X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "yahoo_search", m.Provider)
	assert.Equal(t, "X Corp", m.DisplayName)
	assert.Equal(t, "Energy", m.Sector)

	_, ok, err = MetadataFetchers{fakeFetcher{}}.FetchMetadata(context.Background(), "BOOM")
	assert.False(t, ok)
	assert.Error(t, err)
}

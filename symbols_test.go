package tradehistory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrecedence(t *testing.T) {
	r := NewResolver()
	facts := SymbolFacts{
		Override:   &Override{MarketSymbol: "AAPL-OV", Sector: "Override Tech", Active: true},
		Provider:   &ProviderMetadata{MarketSymbol: "AAPL-PV", Sector: "Technology"},
		Instrument: &Instrument{MarketSymbol: "AAPL-IN", Sector: "Tech (instrument)"},
	}

	got := r.Resolve("aapl", facts)
	assert.Equal(t, "AAPL-OV", got.MarketSymbol)
	assert.Equal(t, "Override Tech", got.Sector)
	assert.Equal(t, "override", got.MarketSymbolSource)

	facts.Override = nil
	got = r.Resolve("aapl", facts)
	assert.Equal(t, "AAPL-PV", got.MarketSymbol)
	assert.Equal(t, "Technology", got.Sector)

	facts.Provider = nil
	got = r.Resolve("aapl", facts)
	assert.Equal(t, "AAPL-IN", got.MarketSymbol)
	assert.Equal(t, "Tech (instrument)", got.Sector)
}

func TestResolveFallback(t *testing.T) {
	r := NewResolver()

	got := r.Resolve(" xyz ", SymbolFacts{})
	assert.Equal(t, Resolution{
		Symbol:             "XYZ",
		MarketSymbol:       "XYZ",
		MarketSymbolSource: "symbol",
		Sector:             UnknownSector,
		SectorSource:       "fallback",
	}, got)

	// alias comes after instrument in the default chain.
	got = r.Resolve("APPLE", SymbolFacts{})
	assert.Equal(t, "AAPL", got.MarketSymbol)
	assert.Equal(t, "alias", got.MarketSymbolSource)
}

func TestResolveIgnoresInactiveAndBlankOverrides(t *testing.T) {
	r := NewResolver()
	facts := SymbolFacts{
		Override: &Override{MarketSymbol: "OV", Sector: "Energy", Active: false},
		Provider: &ProviderMetadata{MarketSymbol: "PV", Sector: "  "},
	}
	got := r.Resolve("X", facts)
	assert.Equal(t, "PV", got.MarketSymbol)
	assert.Equal(t, UnknownSector, got.Sector, "blank provider sector is not an answer")
}

func TestParseChain(t *testing.T) {
	chain, err := ParseChain("instrument, override")
	require.NoError(t, err)
	r := NewResolver(chain...)
	assert.Equal(t, []string{"instrument", "override"}, r.Chain())

	facts := SymbolFacts{
		Override:   &Override{MarketSymbol: "OV", Active: true},
		Instrument: &Instrument{MarketSymbol: "IN"},
	}
	assert.Equal(t, "IN", r.Resolve("X", facts).MarketSymbol, "chain order is configuration")

	_, err = ParseChain("override,nope")
	assert.Error(t, err)
	_, err = ParseChain("override,override")
	assert.Error(t, err)
	_, err = ParseChain(" , ")
	assert.Error(t, err)
}

func TestSymbolIndex(t *testing.T) {
	idx := NewSymbolIndex(NewResolver(),
		[]Override{{Symbol: "aapl", MarketSymbol: "AAPL-OV", Active: true}},
		[]ProviderMetadata{{Symbol: "AAPL", MarketSymbol: "AAPL-PV", Sector: "Technology"}},
		[]Instrument{{Symbol: "AAPL", MarketSymbol: "AAPL-IN"}},
	)
	got := idx.Resolve("AAPL")
	assert.Equal(t, "AAPL-OV", got.MarketSymbol)
	assert.Equal(t, "Technology", got.Sector)

	var nilIdx *SymbolIndex
	assert.Equal(t, "MSFT", nilIdx.Resolve("msft").MarketSymbol)
}

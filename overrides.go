package tradehistory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// OverrideStore reads and writes symbol overrides.
//
// Readers take a snapshot with Overrides and never hold a lock across a
// request.
type OverrideStore interface {
	Overrides(ctx context.Context) ([]Override, error)
	UpsertOverride(ctx context.Context, o Override) (Override, error)
	// DeleteOverride deactivates the override of symbol. It returns
	// ErrNotFound when the symbol has no override.
	DeleteOverride(ctx context.Context, symbol string) (Override, error)
}

// NormalizeOverride validates an override before it is stored: the symbol
// is required, the market symbol defaults to the symbol and both are upper
// cased.
func NormalizeOverride(o Override) (Override, error) {
	o.Symbol = NormalizeSymbol(o.Symbol)
	if o.Symbol == "" {
		return Override{}, errors.New("override symbol is required")
	}
	o.MarketSymbol = NormalizeSymbol(o.MarketSymbol)
	if o.MarketSymbol == "" {
		o.MarketSymbol = o.Symbol
	}
	o.Sector = strings.TrimSpace(o.Sector)
	o.Notes = strings.TrimSpace(o.Notes)
	return o, nil
}

// MemoryOverrides is an in-memory OverrideStore safe for concurrent use.
type MemoryOverrides struct {
	mu sync.RWMutex
	m  map[string]Override
}

// NewMemoryOverrides returns a store holding overrides.
func NewMemoryOverrides(overrides ...Override) (*MemoryOverrides, error) {
	s := &MemoryOverrides{m: make(map[string]Override)}
	for _, o := range overrides {
		if _, err := s.UpsertOverride(context.Background(), o); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Overrides returns a copy of all overrides, active or not, ordered by symbol.
func (s *MemoryOverrides) Overrides(context.Context) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Override, 0, len(s.m))
	for _, o := range s.m {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Override) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out, nil
}

func (s *MemoryOverrides) UpsertOverride(_ context.Context, o Override) (Override, error) {
	o, err := NormalizeOverride(o)
	if err != nil {
		return Override{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[o.Symbol] = o
	return o, nil
}

func (s *MemoryOverrides) DeleteOverride(_ context.Context, symbol string) (Override, error) {
	symbol = NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.m[symbol]
	if !ok {
		return Override{}, fmt.Errorf("override %q: %w", symbol, ErrNotFound)
	}
	o.Active = false
	s.m[symbol] = o
	return o, nil
}

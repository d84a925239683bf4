package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Events returns the ledger in insertion independent order: trade date then id.
func (db *DB) Events(ctx context.Context) ([]tradehistory.TradeEvent, error) {
	return records[tradehistory.TradeEvent](ctx, db, "events",
		`SELECT record FROM events ORDER BY trade_date, CAST(event_id AS INTEGER), event_id`)
}

// Lines returns the statement lines ordered by date then id.
func (db *DB) Lines(ctx context.Context) ([]tradehistory.SnapshotLine, error) {
	return records[tradehistory.SnapshotLine](ctx, db, "snapshot lines",
		`SELECT record FROM snapshot_lines ORDER BY snapshot_date, CAST(id AS INTEGER), id`)
}

// records decodes the JSON record column of each row.
func records[T any](ctx context.Context, db *DB, what, query string) ([]T, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		var v T
		if err := json.Unmarshal([]byte(record), &v); err != nil {
			return nil, fmt.Errorf("corrupted %s record %q: %w", what, record, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return out, nil
}

// Prices returns every stored close.
func (db *DB) Prices(ctx context.Context) ([]tradehistory.Price, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT symbol, date, close, currency, source FROM prices ORDER BY symbol, date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()
	var out []tradehistory.Price
	for rows.Next() {
		var symbol, day, closing, currency, source string
		if err := rows.Scan(&symbol, &day, &closing, &currency, &source); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		d, err := date.Parse(day)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", symbol, err)
		}
		c, err := decimal.NewFromString(closing)
		if err != nil {
			return nil, fmt.Errorf("price %s on %s: %w", symbol, day, err)
		}
		out = append(out, tradehistory.Price{Symbol: symbol, Date: d, Close: tradehistory.M(c, currency), Source: source})
	}
	return out, rows.Err()
}

// Rates returns every stored exchange rate.
func (db *DB) Rates(ctx context.Context) ([]tradehistory.Rate, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT base_currency, quote_currency, date, rate, source FROM rates ORDER BY base_currency, quote_currency, date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()
	var out []tradehistory.Rate
	for rows.Next() {
		var r tradehistory.Rate
		var day, rate string
		if err := rows.Scan(&r.Base, &r.Quote, &day, &rate, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		if r.Date, err = date.Parse(day); err != nil {
			return nil, fmt.Errorf("rate %s: %w", r.Pair(), err)
		}
		if r.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("rate %s on %s: %w", r.Pair(), day, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Instruments returns the instrument table.
func (db *DB) Instruments(ctx context.Context) ([]tradehistory.Instrument, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT symbol_norm, symbol_raw, asset_type, market_symbol, sector, exchange FROM instruments ORDER BY symbol_norm`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()
	var out []tradehistory.Instrument
	for rows.Next() {
		var i tradehistory.Instrument
		if err := rows.Scan(&i.Symbol, &i.SymbolRaw, &i.AssetType, &i.MarketSymbol, &i.Sector, &i.Exchange); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Metadata returns provider metadata, oldest fetch first, so that the most
// recent fetch of a symbol wins when indexed.
func (db *DB) Metadata(ctx context.Context) ([]tradehistory.ProviderMetadata, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT symbol_norm, provider, market_symbol, display_name, quote_type, sector, industry, exchange, source_json
		FROM instrument_metadata ORDER BY fetched_at, symbol_norm, provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument metadata: %w", err)
	}
	defer rows.Close()
	var out []tradehistory.ProviderMetadata
	for rows.Next() {
		var m tradehistory.ProviderMetadata
		if err := rows.Scan(&m.Symbol, &m.Provider, &m.MarketSymbol, &m.DisplayName, &m.QuoteType, &m.Sector, &m.Industry, &m.Exchange, &m.SourceJSON); err != nil {
			return nil, fmt.Errorf("failed to scan instrument metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SymbolIndex snapshots overrides, provider metadata and instruments.
func (db *DB) SymbolIndex(ctx context.Context, r tradehistory.Resolver) (*tradehistory.SymbolIndex, error) {
	var (
		overrides   []tradehistory.Override
		metadata    []tradehistory.ProviderMetadata
		instruments []tradehistory.Instrument
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { overrides, err = db.Overrides(ctx); return })
	g.Go(func() (err error) { metadata, err = db.Metadata(ctx); return })
	g.Go(func() (err error) { instruments, err = db.Instruments(ctx); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tradehistory.NewSymbolIndex(r, overrides, metadata, instruments), nil
}

// LoadBook reads everything the views need.
func (db *DB) LoadBook(ctx context.Context, r tradehistory.Resolver) (*tradehistory.Book, error) {
	var (
		book   tradehistory.Book
		prices []tradehistory.Price
		rates  []tradehistory.Rate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { book.Events, err = db.Events(gctx); return })
	g.Go(func() (err error) { book.Lines, err = db.Lines(gctx); return })
	g.Go(func() (err error) { prices, err = db.Prices(gctx); return })
	g.Go(func() (err error) { rates, err = db.Rates(gctx); return })
	g.Go(func() (err error) { book.Symbols, err = db.SymbolIndex(gctx, r); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading book from %s: %w", db.path, err)
	}
	book.Prices = tradehistory.NewPriceBook(prices...)
	book.Converter = tradehistory.NewConverter(tradehistory.NewRateTable(rates...))
	db.log.Debug().
		Int("events", len(book.Events)).
		Int("lines", len(book.Lines)).
		Int("prices", len(prices)).
		Int("rates", len(rates)).
		Msg("book loaded")
	return &book, nil
}

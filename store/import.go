package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/etnz/tradehistory"
)

// ImportEvents upserts ledger events by event id.
func (db *DB) ImportEvents(ctx context.Context, events []tradehistory.TradeEvent) (int, error) {
	const q = `INSERT INTO events (event_id, trade_date, account_id, institution, symbol, currency, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			trade_date = excluded.trade_date, account_id = excluded.account_id,
			institution = excluded.institution, symbol = excluded.symbol,
			currency = excluded.currency, record = excluded.record`
	return upsert(ctx, db, "events", q, events, func(e tradehistory.TradeEvent) ([]any, error) {
		record, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		return []any{e.ID, e.TradeDate.String(), e.Account, e.Institution, e.Symbol, e.Currency, string(record)}, nil
	})
}

// ImportLines upserts statement lines by id.
func (db *DB) ImportLines(ctx context.Context, lines []tradehistory.SnapshotLine) (int, error) {
	const q = `INSERT INTO snapshot_lines (id, institution, account_id, snapshot_date, metric_code, currency, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			institution = excluded.institution, account_id = excluded.account_id,
			snapshot_date = excluded.snapshot_date, metric_code = excluded.metric_code,
			currency = excluded.currency, record = excluded.record`
	return upsert(ctx, db, "snapshot lines", q, lines, func(l tradehistory.SnapshotLine) ([]any, error) {
		if l.ID == "" {
			return nil, fmt.Errorf("snapshot line without id")
		}
		record, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		return []any{l.ID, l.Institution, l.Account, l.SnapshotDate.String(), string(l.MetricCode), l.Currency, string(record)}, nil
	})
}

// ImportPrices upserts daily closes by symbol and date.
func (db *DB) ImportPrices(ctx context.Context, prices []tradehistory.Price) (int, error) {
	const q = `INSERT INTO prices (symbol, date, close, currency, source) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			close = excluded.close, currency = excluded.currency, source = excluded.source`
	return upsert(ctx, db, "prices", q, prices, func(p tradehistory.Price) ([]any, error) {
		return []any{p.Symbol, p.Date.String(), p.Close.Decimal().String(), p.Close.Currency(), p.Source}, nil
	})
}

// ImportRates upserts exchange rates by pair and date.
func (db *DB) ImportRates(ctx context.Context, rates []tradehistory.Rate) (int, error) {
	const q = `INSERT INTO rates (base_currency, quote_currency, date, rate, source) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(base_currency, quote_currency, date) DO UPDATE SET
			rate = excluded.rate, source = excluded.source`
	return upsert(ctx, db, "rates", q, rates, func(r tradehistory.Rate) ([]any, error) {
		return []any{r.Base, r.Quote, r.Date.String(), r.Rate.String(), r.Source}, nil
	})
}

// ImportInstruments upserts instrument metadata by symbol.
func (db *DB) ImportInstruments(ctx context.Context, instruments []tradehistory.Instrument) (int, error) {
	const q = `INSERT INTO instruments (symbol_norm, symbol_raw, asset_type, market_symbol, sector, exchange)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol_norm) DO UPDATE SET
			symbol_raw = excluded.symbol_raw, asset_type = excluded.asset_type,
			market_symbol = excluded.market_symbol, sector = excluded.sector, exchange = excluded.exchange`
	return upsert(ctx, db, "instruments", q, instruments, func(i tradehistory.Instrument) ([]any, error) {
		symbol := tradehistory.NormalizeSymbol(i.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("instrument without symbol")
		}
		return []any{symbol, i.SymbolRaw, i.AssetType, tradehistory.NormalizeSymbol(i.MarketSymbol), i.Sector, i.Exchange}, nil
	})
}

// upsert runs one prepared statement per item in a single transaction.
func upsert[T any](ctx context.Context, db *DB, what, query string, items []T, args func(T) ([]any, error)) (int, error) {
	n := 0
	err := WithTransaction(ctx, db.conn, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, item := range items {
			a, err := args(item)
			if err != nil {
				return fmt.Errorf("%s #%d: %w", what, i+1, err)
			}
			if _, err := stmt.ExecContext(ctx, a...); err != nil {
				return fmt.Errorf("%s #%d: %w", what, i+1, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importing %s: %w", what, err)
	}
	db.log.Info().Str("table", what).Int("rows", n).Msg("imported")
	return n, nil
}

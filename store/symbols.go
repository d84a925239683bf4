package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/tradehistory"
)

var (
	_ tradehistory.OverrideStore = (*DB)(nil)
	_ tradehistory.MetadataStore = (*DB)(nil)
)

// scanner is a *sql.Row or *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const overrideColumns = `symbol_norm, market_symbol, sector_override, notes, is_active`

func scanOverride(row scanner) (tradehistory.Override, error) {
	var o tradehistory.Override
	err := row.Scan(&o.Symbol, &o.MarketSymbol, &o.Sector, &o.Notes, &o.Active)
	return o, err
}

// Overrides returns all overrides, active or not, ordered by symbol.
func (db *DB) Overrides(ctx context.Context) ([]tradehistory.Override, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+overrideColumns+` FROM symbol_overrides ORDER BY symbol_norm`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()
	var out []tradehistory.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertOverride stores o and returns it as stored.
func (db *DB) UpsertOverride(ctx context.Context, o tradehistory.Override) (tradehistory.Override, error) {
	o, err := tradehistory.NormalizeOverride(o)
	if err != nil {
		return tradehistory.Override{}, err
	}
	var stored tradehistory.Override
	err = WithTransaction(ctx, db.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO symbol_overrides (`+overrideColumns+`, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol_norm) DO UPDATE SET
				market_symbol = excluded.market_symbol, sector_override = excluded.sector_override,
				notes = excluded.notes, is_active = excluded.is_active, updated_at = excluded.updated_at`,
			o.Symbol, o.MarketSymbol, o.Sector, o.Notes, o.Active, now())
		if err != nil {
			return err
		}
		stored, err = scanOverride(tx.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM symbol_overrides WHERE symbol_norm = ?`, o.Symbol))
		return err
	})
	if err != nil {
		return tradehistory.Override{}, fmt.Errorf("override %q: %w", o.Symbol, err)
	}
	db.log.Info().Str("symbol", stored.Symbol).Str("market_symbol", stored.MarketSymbol).Bool("active", stored.Active).Msg("override saved")
	return stored, nil
}

// DeleteOverride deactivates the override of symbol.
func (db *DB) DeleteOverride(ctx context.Context, symbol string) (tradehistory.Override, error) {
	symbol = tradehistory.NormalizeSymbol(symbol)
	var stored tradehistory.Override
	err := WithTransaction(ctx, db.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE symbol_overrides SET is_active = 0, updated_at = ? WHERE symbol_norm = ?`, now(), symbol)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return tradehistory.ErrNotFound
		}
		stored, err = scanOverride(tx.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM symbol_overrides WHERE symbol_norm = ?`, symbol))
		return err
	})
	if errors.Is(err, tradehistory.ErrNotFound) {
		return tradehistory.Override{}, fmt.Errorf("override %q: %w", symbol, tradehistory.ErrNotFound)
	}
	if err != nil {
		return tradehistory.Override{}, fmt.Errorf("override %q: %w", symbol, err)
	}
	db.log.Info().Str("symbol", symbol).Msg("override deactivated")
	return stored, nil
}

// SaveMetadata upserts what a provider returned for a symbol.
func (db *DB) SaveMetadata(ctx context.Context, m tradehistory.ProviderMetadata) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO instrument_metadata
			(symbol_norm, provider, market_symbol, display_name, quote_type, sector, industry, exchange, source_json, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol_norm, provider) DO UPDATE SET
			market_symbol = excluded.market_symbol, display_name = excluded.display_name,
			quote_type = excluded.quote_type, sector = excluded.sector, industry = excluded.industry,
			exchange = excluded.exchange, source_json = excluded.source_json, fetched_at = excluded.fetched_at`,
		tradehistory.NormalizeSymbol(m.Symbol), m.Provider, m.MarketSymbol, m.DisplayName, m.QuoteType,
		m.Sector, m.Industry, m.Exchange, m.SourceJSON, now())
	if err != nil {
		return fmt.Errorf("failed to save metadata of %s: %w", m.Symbol, err)
	}
	return nil
}

// SetInstrumentSector records the sector of an instrument, creating the
// instrument when unknown.
func (db *DB) SetInstrumentSector(ctx context.Context, symbol, sector string) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO instruments (symbol_norm, sector) VALUES (?, ?)
		ON CONFLICT(symbol_norm) DO UPDATE SET sector = excluded.sector`,
		tradehistory.NormalizeSymbol(symbol), sector)
	if err != nil {
		return fmt.Errorf("failed to set sector of %s: %w", symbol, err)
	}
	return nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

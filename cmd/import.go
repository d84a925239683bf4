package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/etnz/tradehistory"
	"github.com/google/subcommands"
)

type importCmd struct {
	kind string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "imports JSONL records into the database" }
func (*importCmd) Usage() string {
	return `th import [-kind <kind>] <file.jsonl>...

  Upserts the records of each file into the database. A record whose key
  already exists replaces the stored one, so importing twice is harmless.

  Kinds and their keys:
    events       event_id
    lines        id (statement snapshot lines)
    prices       symbol, date
    rates        base_currency, quote_currency, date
    instruments  symbol_norm

`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "events", "Kind of records: events, lines, prices, rates or instruments.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "import requires at least one file")
		return subcommands.ExitUsageError
	}
	imp, ok := importers[c.kind]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown kind %q\n", c.kind)
		return subcommands.ExitUsageError
	}

	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	for _, name := range f.Args() {
		n, err := importFile(ctx, a, name, imp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing %q: %v\n", name, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Imported %d %s from %s\n", n, c.kind, name)
	}
	return subcommands.ExitSuccess
}

// importer decodes a JSONL stream and stores its records.
type importer func(ctx context.Context, a *app, name string, r io.Reader) (int, error)

var importers = map[string]importer{
	"events": func(ctx context.Context, a *app, name string, r io.Reader) (int, error) {
		events, err := tradehistory.DecodeEvents(name, r)
		if err != nil {
			return 0, err
		}
		for i, e := range events {
			if e.Account == "" {
				return 0, fmt.Errorf("format error in %q: event %q needs an account_id", name, e.ID)
			}
			if e.Currency == "" {
				events[i] = e.InCurrency(a.cfg.DefaultCurrency)
			}
		}
		return a.db.ImportEvents(ctx, events)
	},
	"lines": func(ctx context.Context, a *app, name string, r io.Reader) (int, error) {
		lines, err := tradehistory.DecodeJSONL[tradehistory.SnapshotLine](name, r)
		if err != nil {
			return 0, err
		}
		for i, l := range lines {
			if l.ID == "" || l.SnapshotDate.IsZero() || l.MetricCode == "" {
				return 0, fmt.Errorf("format error in %q: line %d needs an id, a snapshot_date and a metric_code", name, i+1)
			}
		}
		return a.db.ImportLines(ctx, lines)
	},
	"prices": func(ctx context.Context, a *app, name string, r io.Reader) (int, error) {
		prices, err := tradehistory.DecodeJSONL[tradehistory.Price](name, r)
		if err != nil {
			return 0, err
		}
		for i, p := range prices {
			if p.Symbol == "" || p.Date.IsZero() || p.Close.Currency() == "" {
				return 0, fmt.Errorf("format error in %q: price %d needs a symbol, a date and a currency", name, i+1)
			}
		}
		return a.db.ImportPrices(ctx, prices)
	},
	"rates": func(ctx context.Context, a *app, name string, r io.Reader) (int, error) {
		rates, err := tradehistory.DecodeJSONL[tradehistory.Rate](name, r)
		if err != nil {
			return 0, err
		}
		for _, rate := range rates {
			if !rate.Rate.IsPositive() {
				return 0, fmt.Errorf("format error in %q: rate %s on %s is not positive", name, rate.Pair(), rate.Date)
			}
		}
		return a.db.ImportRates(ctx, rates)
	},
	"instruments": func(ctx context.Context, a *app, name string, r io.Reader) (int, error) {
		instruments, err := tradehistory.DecodeJSONL[tradehistory.Instrument](name, r)
		if err != nil {
			return 0, err
		}
		for i := range instruments {
			instruments[i].Symbol = tradehistory.NormalizeSymbol(instruments[i].Symbol)
			if instruments[i].Symbol == "" {
				return 0, fmt.Errorf("format error in %q: instrument %d has no symbol_norm", name, i+1)
			}
		}
		return a.db.ImportInstruments(ctx, instruments)
	},
}

func importFile(ctx context.Context, a *app, name string, imp importer) (int, error) {
	file, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return imp(ctx, a, name, file)
}

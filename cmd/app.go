// Package cmd implements the th command line tool over a trade history database.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/config"
	"github.com/etnz/tradehistory/date"
	"github.com/etnz/tradehistory/logger"
	"github.com/etnz/tradehistory/store"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	dbPath          = flag.String("db", "", "Path to the SQLite database. Overrides TH_SQLITE_PATH.")
	displayCurrency = flag.String("currency", "", "Display currency of reports. Overrides TH_DISPLAY_CURRENCY.")
	Verbose         = flag.Bool("v", false, "Log debug messages to stderr.")
)

// Groups lists the command groups in help order.
var Groups = []string{"data", "reports", "symbols"}

// Commands lists every subcommand of th, by group.
var Commands = map[string][]subcommands.Command{
	"data": {
		&importCmd{},
		&fetchFXCmd{},
		&fetchPricesCmd{},
		&healthCmd{},
	},
	"reports": {
		&closedCmd{},
		&tradesCmd{},
		&assetsCmd{},
		&sectorsCmd{},
		&reconCmd{},
		&reconLinesCmd{},
		&reportCmd{},
	},
	"symbols": {
		&symbolsCmd{},
		&overrideCmd{},
		&unoverrideCmd{},
		&refreshSectorsCmd{},
	},
}

// Register the subcommands.
func Register(c *subcommands.Commander) {
	for _, group := range Groups {
		for _, cmd := range Commands[group] {
			c.Register(cmd, group)
		}
	}
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}
	if *displayCurrency != "" {
		if !tradehistory.KnownCurrency(*displayCurrency) {
			return nil, fmt.Errorf("unknown display currency %q", *displayCurrency)
		}
		cfg.DisplayCurrency = tradehistory.NormalizeCurrency(*displayCurrency)
	}
	if *Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// app is what every command needs: the configuration and an open database.
type app struct {
	cfg *config.Config
	db  *store.DB
}

// openApp loads the configuration, installs the logger in the returned
// context and opens the database. Callers must Close the app.
func openApp(ctx context.Context) (context.Context, *app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, nil, fmt.Errorf("loading configuration: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	ctx = log.WithContext(ctx)

	db, err := store.New(ctx, store.Config{Path: cfg.SQLitePath})
	if err != nil {
		return ctx, nil, fmt.Errorf("opening database %q: %w", cfg.SQLitePath, err)
	}
	return ctx, &app{cfg: cfg, db: db}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
}

// book loads the whole database.
func (a *app) book(ctx context.Context) (*tradehistory.Book, error) {
	b, err := a.db.LoadBook(ctx, a.cfg.Resolver())
	if err != nil {
		return nil, err
	}
	b.TransferWindow = a.cfg.TransferWindow
	zerolog.Ctx(ctx).Debug().Int("events", len(b.Events)).Int("lines", len(b.Lines)).Msg("book loaded")
	return b, nil
}

// method parses a -method flag, the configured method when empty.
func (a *app) method(s string) (tradehistory.CostBasisMethod, error) {
	if s == "" {
		return a.cfg.CostBasis, nil
	}
	return tradehistory.ParseCostBasisMethod(s)
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

// printJSON writes v to stdout, indented.
func printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseDay parses an optional date flag; empty means the zero Date.
func parseDay(s string) (date.Date, error) {
	if s == "" {
		return date.Date{}, nil
	}
	return date.Parse(s)
}

// parseRange parses the -from and -to flags of a command.
func parseRange(from, to string) (date.Range, error) {
	f, err := parseDay(from)
	if err != nil {
		return date.Range{}, fmt.Errorf("-from: %w", err)
	}
	t, err := parseDay(to)
	if err != nil {
		return date.Range{}, fmt.Errorf("-to: %w", err)
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f) {
		return date.Range{}, fmt.Errorf("-to %s is before -from %s", t, f)
	}
	return date.Range{From: f, To: t}, nil
}

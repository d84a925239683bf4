package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/agent"
	"github.com/etnz/tradehistory/renderer"
	"github.com/etnz/tradehistory/yahoo"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

type symbolsCmd struct {
	query string
	json  bool
}

func (*symbolsCmd) Name() string     { return "symbols" }
func (*symbolsCmd) Synopsis() string { return "lists equity symbols and how they resolve" }
func (*symbolsCmd) Usage() string {
	return `th symbols [-q <text>]

  Lists the equity symbols of the ledger and the instrument table, most
  traded first, with the market symbol and sector they resolve to and the
  source of each (TH_SYMBOL_CHAIN).
`
}

func (c *symbolsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.query, "q", "", "Only symbols containing this text.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *symbolsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	book, err := a.book(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading database: %v\n", err)
		return subcommands.ExitFailure
	}
	entries := tradehistory.Catalog(book.Events, book.Symbols, c.query)

	if c.json {
		return printJSON(entries)
	}
	printMarkdown(renderer.RenderCatalog(entries))
	return subcommands.ExitSuccess
}

type overrideCmd struct {
	market string
	sector string
	notes  string
}

func (*overrideCmd) Name() string     { return "override" }
func (*overrideCmd) Synopsis() string { return "sets the market symbol or sector of a symbol" }
func (*overrideCmd) Usage() string {
	return `th override [-market <symbol>] [-sector <sector>] [-notes <text>] <symbol>

  Records a user correction for a ledger symbol. An override has the
  highest precedence when resolving a market symbol or a sector. The market
  symbol defaults to the symbol itself.
`
}

func (c *overrideCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.market, "market", "", "Market symbol to quote the symbol with, e.g. SHOP.TO.")
	f.StringVar(&c.sector, "sector", "", "Sector to report the symbol under.")
	f.StringVar(&c.notes, "notes", "", "Free text kept with the override.")
}

func (c *overrideCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "override requires exactly one symbol")
		return subcommands.ExitUsageError
	}

	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	o, err := a.db.UpsertOverride(ctx, tradehistory.Override{
		Symbol:       f.Arg(0),
		MarketSymbol: c.market,
		Sector:       c.sector,
		Notes:        c.notes,
		Active:       true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error saving override: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s now resolves to %s\n", o.Symbol, o.MarketSymbol)
	return subcommands.ExitSuccess
}

type unoverrideCmd struct{}

func (*unoverrideCmd) Name() string     { return "unoverride" }
func (*unoverrideCmd) Synopsis() string { return "deactivates the override of a symbol" }
func (*unoverrideCmd) Usage() string {
	return `th unoverride <symbol>

  Deactivates the override of a symbol. The override is kept, inactive, so
  it still shows in 'th symbols -json'.
`
}

func (c *unoverrideCmd) SetFlags(f *flag.FlagSet) {}

func (c *unoverrideCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "unoverride requires exactly one symbol")
		return subcommands.ExitUsageError
	}

	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	o, err := a.db.DeleteOverride(ctx, f.Arg(0))
	if errors.Is(err, tradehistory.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "%s has no override\n", tradehistory.NormalizeSymbol(f.Arg(0)))
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error removing override: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Override of %s deactivated\n", o.Symbol)
	return subcommands.ExitSuccess
}

type refreshSectorsCmd struct {
	noAgent bool
}

func (*refreshSectorsCmd) Name() string     { return "refresh-sectors" }
func (*refreshSectorsCmd) Synopsis() string { return "fetches the sector of symbols from market data providers" }
func (*refreshSectorsCmd) Usage() string {
	return `th refresh-sectors [-no-agent] [symbol...]

  Looks each symbol up at Yahoo Finance and records the provider metadata
  and the sector of the instrument. An active override sector always wins.
  Without arguments every symbol of the catalog is refreshed.

  When TH_GEMINI_API_KEY is set, symbols Yahoo does not know are classified
  by a Gemini model instead.
`
}

func (c *refreshSectorsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.noAgent, "no-agent", false, "Do not ask Gemini for symbols Yahoo does not know.")
}

func (c *refreshSectorsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	book, err := a.book(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading database: %v\n", err)
		return subcommands.ExitFailure
	}
	symbols := f.Args()
	if len(symbols) == 0 {
		for _, e := range tradehistory.Catalog(book.Events, book.Symbols, "") {
			symbols = append(symbols, e.Symbol)
		}
	}

	fetcher, err := a.metadataFetchers(ctx, book.Symbols, !c.noAgent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	res, err := tradehistory.RefreshSectors(ctx, symbols, book.Symbols, fetcher, a.db)
	fmt.Printf("%d metadata row(s) saved, %d sector(s) updated\n", res.MetadataRows, res.SectorsUpdated)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error refreshing sectors: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// metadataFetchers returns the provider chain: Yahoo first, then the Gemini
// classifier when enabled and configured.
func (a *app) metadataFetchers(ctx context.Context, idx *tradehistory.SymbolIndex, withAgent bool) (tradehistory.MetadataFetchers, error) {
	dir, err := a.cfg.HTTPCacheDir()
	if err != nil {
		return nil, fmt.Errorf("locating the HTTP cache: %w", err)
	}
	fetchers := tradehistory.MetadataFetchers{yahoo.New(a.cfg.YahooSearchURL, dir)}
	if !withAgent || a.cfg.GeminiAPIKey == "" {
		return fetchers, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: a.cfg.GeminiAPIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("initializing Gemini's client: %w", err)
	}
	expert := agent.NewSectorExpert(a.cfg.GeminiModel, agent.SymbolLookup(idx))
	if err := expert.Start(ctx, client); err != nil {
		return nil, fmt.Errorf("starting %s: %w", expert.Name, err)
	}
	zerolog.Ctx(ctx).Debug().Str("model", a.cfg.GeminiModel).Msg("sector classifier enabled")
	return append(fetchers, agent.SectorClassifier{Expert: expert}), nil
}

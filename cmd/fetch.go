package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/boc"
	"github.com/etnz/tradehistory/date"
	"github.com/etnz/tradehistory/yahoo"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

type fetchFXCmd struct {
	from string
	to   string
}

func (*fetchFXCmd) Name() string     { return "fetch-fx" }
func (*fetchFXCmd) Synopsis() string { return "downloads CAD exchange rates from the Bank of Canada" }
func (*fetchFXCmd) Usage() string {
	return `th fetch-fx [-from <date>] [-to <date>] [currency...]

  Downloads the daily <currency>/CAD rates published by the Bank of Canada
  and stores them. Without arguments every non CAD currency of the ledger
  is fetched, from its first trade date to today.
`
}

func (c *fetchFXCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "First day to fetch. Defaults to the first trade date.")
	f.StringVar(&c.to, "to", "", "Last day to fetch. Defaults to today.")
}

func (c *fetchFXCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, err := parseRange(c.from, c.to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	events, err := a.db.Events(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading events: %v\n", err)
		return subcommands.ExitFailure
	}
	currencies := f.Args()
	if len(currencies) == 0 {
		currencies = foreignCurrencies(events, "CAD")
	}
	period = defaultRange(period, firstTradeDate(events, nil))

	dir, err := a.cfg.HTTPCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating the HTTP cache: %v\n", err)
		return subcommands.ExitFailure
	}
	client := boc.New(a.cfg.BoCValetURL, dir)
	var errs []error
	for _, ccy := range currencies {
		rates, err := client.Fetch(ctx, ccy, period.From, period.To)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := a.db.ImportRates(ctx, rates)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving rates: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s: %d rate(s) from %s to %s\n", boc.Series(ccy), n, period.From, period.To)
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching rates: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type fetchPricesCmd struct {
	from string
	to   string
}

func (*fetchPricesCmd) Name() string     { return "fetch-prices" }
func (*fetchPricesCmd) Synopsis() string { return "downloads daily closes from Yahoo Finance" }
func (*fetchPricesCmd) Usage() string {
	return `th fetch-prices [-from <date>] [-to <date>] [symbol...]

  Downloads the daily closes of each symbol, quoted with its resolved
  market symbol, and stores them. Without arguments every symbol of the
  catalog is fetched, from its first trade date to today.
`
}

func (c *fetchPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "First day to fetch. Defaults to the first trade date of each symbol.")
	f.StringVar(&c.to, "to", "", "Last day to fetch. Defaults to today.")
}

func (c *fetchPricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, err := parseRange(c.from, c.to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

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

	dir, err := a.cfg.HTTPCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating the HTTP cache: %v\n", err)
		return subcommands.ExitFailure
	}
	client := yahoo.New(a.cfg.YahooSearchURL, dir)
	log := zerolog.Ctx(ctx)
	var errs []error
	for _, symbol := range symbols {
		symbol = tradehistory.NormalizeSymbol(symbol)
		r := defaultRange(period, firstTradeDate(book.Events, func(e tradehistory.TradeEvent) bool { return e.Symbol == symbol }))
		market := book.Symbols.Resolve(symbol).MarketSymbol
		prices, err := client.Prices(ctx, market, r.From, r.To)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		if len(prices) == 0 {
			log.Warn().Str("symbol", symbol).Str("market_symbol", market).Msg("no price found")
			continue
		}
		n, err := a.db.ImportPrices(ctx, prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving prices: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s (%s): %d price(s) from %s to %s\n", symbol, market, n, r.From, r.To)
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching prices: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type healthCmd struct{}

func (*healthCmd) Name() string     { return "health" }
func (*healthCmd) Synopsis() string { return "checks the database" }
func (*healthCmd) Usage() string {
	return `th health

  Opens the database, applies pending migrations and runs an integrity check.
`
}

func (c *healthCmd) SetFlags(f *flag.FlagSet) {}

func (c *healthCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.db.HealthCheck(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s is healthy\n", a.db.Path())
	return subcommands.ExitSuccess
}

// foreignCurrencies returns the sorted currencies of events other than home.
func foreignCurrencies(events []tradehistory.TradeEvent, home string) []string {
	var out []string
	for _, e := range events {
		if e.Currency != "" && e.Currency != home && !slices.Contains(out, e.Currency) {
			out = append(out, e.Currency)
		}
	}
	slices.Sort(out)
	return out
}

// firstTradeDate returns the earliest trade date of the events keep accepts,
// all events when keep is nil.
func firstTradeDate(events []tradehistory.TradeEvent, keep func(tradehistory.TradeEvent) bool) date.Date {
	var first date.Date
	for _, e := range events {
		if keep != nil && !keep(e) {
			continue
		}
		if first.IsZero() || e.TradeDate.Before(first) {
			first = e.TradeDate
		}
	}
	return first
}

// defaultRange fills the open sides of r: from defaults to first, to to today.
func defaultRange(r date.Range, first date.Date) date.Range {
	if r.From.IsZero() {
		r.From = first
	}
	if r.To.IsZero() {
		r.To = date.Today()
	}
	if r.From.IsZero() || r.From.After(r.To) {
		r.From = r.To
	}
	return r
}

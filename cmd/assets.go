package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
	"github.com/etnz/tradehistory/renderer"
	"github.com/google/subcommands"
)

type assetsCmd struct {
	on     string
	group  string
	method string
	json   bool
}

func (*assetsCmd) Name() string     { return "assets" }
func (*assetsCmd) Synopsis() string { return "values the positions held on a day" }
func (*assetsCmd) Usage() string {
	return `th assets [-d <date>] [-group total|account|institution] [-method fifo|average]

  Values every position held on the day with its latest quote and converts
  it to the display currency. Positions without a quote are listed with an
  unknown value and left out of the totals.
`
}

func (c *assetsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.on, "d", date.Today().String(), "Valuation date.")
	f.StringVar(&c.group, "group", string(tradehistory.GroupTotal), "Grouping: total, account or institution.")
	f.StringVar(&c.method, "method", "", "Cost basis method (fifo, average). Defaults to TH_COST_BASIS.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *assetsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := date.Parse(c.on)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	by, err := tradehistory.ParseGroupBy(c.group)
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

	method, err := a.method(c.method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing cost basis method: %v\n", err)
		return subcommands.ExitUsageError
	}
	book, err := a.book(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading database: %v\n", err)
		return subcommands.ExitFailure
	}
	positions, err := book.Positions(ctx, method, on)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing positions: %v\n", err)
		return subcommands.ExitFailure
	}
	v, err := tradehistory.Aggregate(positions, by, a.cfg.DisplayCurrency, on, book.Converter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error valuing positions: %v\n", err)
		if errors.Is(err, tradehistory.ErrRateUnavailable) {
			fmt.Fprintln(os.Stderr, "Hint: run 'th fetch-fx' or import the missing rates.")
		}
		return subcommands.ExitFailure
	}

	if c.json {
		return printJSON(v)
	}
	printMarkdown(renderer.RenderValuation(v))
	return subcommands.ExitSuccess
}

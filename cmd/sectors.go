package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/date"
	"github.com/etnz/tradehistory/renderer"
	"github.com/google/subcommands"
)

type sectorsCmd struct {
	on     string
	method string
	json   bool
}

func (*sectorsCmd) Name() string     { return "sectors" }
func (*sectorsCmd) Synopsis() string { return "breaks the valuation down by sector" }
func (*sectorsCmd) Usage() string {
	return `th sectors [-d <date>]

  Buckets the priced positions held on the day by resolved sector.
  Symbols without a sector are grouped under Unknown; see 'th refresh-sectors'
  and 'th override' to fill them in.
`
}

func (c *sectorsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.on, "d", date.Today().String(), "Valuation date.")
	f.StringVar(&c.method, "method", "", "Cost basis method (fifo, average). Defaults to TH_COST_BASIS.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *sectorsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := date.Parse(c.on)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
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
	rows, total, err := tradehistory.Sectors(positions, a.cfg.DisplayCurrency, on, book.Converter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error valuing positions: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.json {
		return printJSON(struct {
			Rows  []tradehistory.SectorRow `json:"rows"`
			Total tradehistory.Money       `json:"total_display"`
		}{rows, total})
	}
	printMarkdown(renderer.RenderSectors(rows, total))
	return subcommands.ExitSuccess
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/renderer"
	"github.com/google/subcommands"
)

// pageFlags are the paging flags shared by listings.
type pageFlags struct {
	page int
	size int
}

func (p *pageFlags) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.page, "page", 1, "Page to show, starting at 1.")
	f.IntVar(&p.size, "size", tradehistory.DefaultPageSize, "Number of rows per page.")
}

type closedCmd struct {
	pageFlags
	account string
	symbol  string
	from    string
	to      string
	method  string
	json    bool
}

func (*closedCmd) Name() string     { return "closed" }
func (*closedCmd) Synopsis() string { return "closed lots with their realized P&L" }
func (*closedCmd) Usage() string {
	return `th closed [-account <id>] [-symbol <sym>] [-from <date>] [-to <date>] [-method fifo|average]

  Matches every closing event against the lots it closes and lists the
  closed lots, most recent first. Closes without enough open quantity are
  listed with an unknown cost and reported as warnings.
`
}

func (c *closedCmd) SetFlags(f *flag.FlagSet) {
	c.pageFlags.SetFlags(f)
	f.StringVar(&c.account, "account", "", "Only lots of this account.")
	f.StringVar(&c.symbol, "symbol", "", "Only lots of this symbol.")
	f.StringVar(&c.from, "from", "", "Only lots closed on or after this date.")
	f.StringVar(&c.to, "to", "", "Only lots closed on or before this date.")
	f.StringVar(&c.method, "method", "", "Cost basis method (fifo, average). Defaults to TH_COST_BASIS.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *closedCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	res, err := book.Match(ctx, method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error matching lots: %v\n", err)
		return subcommands.ExitFailure
	}
	page := tradehistory.ListClosed(res.Closed, tradehistory.ClosedQuery{
		Account:  c.account,
		Symbol:   c.symbol,
		Range:    period,
		Page:     c.page,
		PageSize: c.size,
	})

	if c.json {
		return printJSON(struct {
			Closed   tradehistory.Page[tradehistory.ClosedPositionLot] `json:"closed"`
			Warnings []tradehistory.Warning                            `json:"warnings"`
		}{page, res.Warnings})
	}
	printMarkdown(renderer.RenderClosed(page, res.Warnings))
	return subcommands.ExitSuccess
}

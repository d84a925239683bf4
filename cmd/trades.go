package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/tradehistory"
	"github.com/etnz/tradehistory/renderer"
	"github.com/google/subcommands"
)

type tradesCmd struct {
	pageFlags
	account     string
	institution string
	symbol      string
	eventType   string
	from        string
	to          string
	sort        string
	desc        bool
	method      string
	json        bool
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "lists ledger events with their realized P&L" }
func (*tradesCmd) Usage() string {
	return `th trades [-account <id>] [-institution <name>] [-symbol <sym>] [-type <type>] [-sort <column>] [-desc]

  Lists the ledger events. Each closing event shows the realized P&L of the
  lots it closed.

  Sort columns: trade_date, account_id, institution, symbol, quantity,
  price, gross_amount, realized_pl. Unknown values sort last; ties are
  broken by event id.
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	c.pageFlags.SetFlags(f)
	f.StringVar(&c.account, "account", "", "Only events of this account.")
	f.StringVar(&c.institution, "institution", "", "Only events of this institution.")
	f.StringVar(&c.symbol, "symbol", "", "Only events of this symbol.")
	f.StringVar(&c.eventType, "type", "", "Only events of this type (trade, transfer, dividend, ...).")
	f.StringVar(&c.from, "from", "", "Only events traded on or after this date.")
	f.StringVar(&c.to, "to", "", "Only events traded on or before this date.")
	f.StringVar(&c.sort, "sort", "trade_date", "Column to sort by.")
	f.BoolVar(&c.desc, "desc", false, "Sort in descending order.")
	f.StringVar(&c.method, "method", "", "Cost basis method (fifo, average). Defaults to TH_COST_BASIS.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *tradesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, err := parseRange(c.from, c.to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	sort, err := tradehistory.ParseEventSort(c.sort)
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
	page := tradehistory.ListEvents(book.Events, res.RealizedByEvent(), tradehistory.EventQuery{
		Account:     c.account,
		Institution: c.institution,
		Symbol:      c.symbol,
		Type:        tradehistory.EventType(strings.ToLower(c.eventType)),
		Range:       period,
		Sort:        sort,
		Desc:        c.desc,
		Page:        c.page,
		PageSize:    c.size,
	})

	if c.json {
		return printJSON(page)
	}
	printMarkdown(renderer.RenderEvents(page))
	return subcommands.ExitSuccess
}

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

type reportCmd struct {
	rowKeyFlags
	pageFlags
	on     string
	group  string
	method string
	json   bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "prints every view of the trade history at once" }
func (*reportCmd) Usage() string {
	return `th report [-d <date>] [-group total|account|institution] [-month <YYYY-MM> -account <id> -currency <ccy>]

  Computes the asset valuation, the sector breakdown, the closed lots and
  the monthly reconciliation in one pass over the database. When a row is
  selected with -month, -account and -currency its statement lines are
  listed too.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	c.rowKeyFlags.SetFlags(f)
	c.pageFlags.SetFlags(f)
	f.StringVar(&c.on, "d", date.Today().String(), "Valuation date.")
	f.StringVar(&c.group, "group", string(tradehistory.GroupTotal), "Grouping of assets: total, account or institution.")
	f.StringVar(&c.method, "method", "", "Cost basis method (fifo, average). Defaults to TH_COST_BASIS.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	var drill *tradehistory.RowKey
	if c.rowKeyFlags.set() {
		key, err := c.key()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		drill = &key
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
	report, err := book.Report(ctx, tradehistory.ReportOptions{
		Display:    a.cfg.DisplayCurrency,
		On:         on,
		GroupBy:    by,
		Method:     method,
		Reconciler: a.cfg.Reconciler(book.Converter),
		Filter:     tradehistory.RowFilter{Institution: c.institution, Account: c.account},
		Closed:     tradehistory.ClosedQuery{Page: c.page, PageSize: c.size},
		DrillDown:  drill,
	})
	if errors.Is(err, tradehistory.ErrNoData) {
		fmt.Fprintln(os.Stderr, "No event in the database, see 'th import'.")
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing report: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.json {
		return printJSON(report)
	}
	printMarkdown(renderer.RenderReport(report))
	return subcommands.ExitSuccess
}

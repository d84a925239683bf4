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

type reconCmd struct {
	institution string
	account     string
	json        bool
}

func (*reconCmd) Name() string     { return "recon" }
func (*reconCmd) Synopsis() string { return "reconciles ledger cash with statements, month by month" }
func (*reconCmd) Usage() string {
	return `th recon [-institution <name>] [-account <id>]

  For every month, account and currency found in the ledger or in the
  statement lines, compares the closing cash derived from the ledger with
  the closing cash reported by the statement.

  The gap is derived minus statement. A row is ok when the gap is within
  tolerance (TH_RECON_TOLERANCE_*), warning otherwise, and missing snapshot
  when the statement does not report both opening and closing cash.
`
}

func (c *reconCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.institution, "institution", "", "Only rows of this institution.")
	f.StringVar(&c.account, "account", "", "Only rows of this account.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *reconCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	rows := a.cfg.Reconciler(book.Converter).ReconcileAll(ctx, book.Events, book.Lines,
		tradehistory.RowFilter{Institution: c.institution, Account: c.account}, a.cfg.DisplayCurrency)

	if c.json {
		return printJSON(rows)
	}
	printMarkdown(renderer.RenderReconciliation(rows))
	return subcommands.ExitSuccess
}

// rowKeyFlags select one reconciliation row.
type rowKeyFlags struct {
	month       string
	institution string
	account     string
	currency    string
}

func (k *rowKeyFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&k.month, "month", "", "Statement month, as YYYY-MM.")
	f.StringVar(&k.institution, "institution", "", "Institution of the row. Empty matches any.")
	f.StringVar(&k.account, "account", "", "Account of the row.")
	f.StringVar(&k.currency, "currency", "", "Native currency of the row.")
}

// set reports whether any row flag was given.
func (k *rowKeyFlags) set() bool {
	return k.month != "" || k.account != "" || k.currency != ""
}

// key parses the flags; month, account and currency are required.
func (k *rowKeyFlags) key() (tradehistory.RowKey, error) {
	if k.month == "" || k.account == "" || k.currency == "" {
		return tradehistory.RowKey{}, errors.New("-month, -account and -currency are required")
	}
	m, err := date.ParseMonth(k.month)
	if err != nil {
		return tradehistory.RowKey{}, fmt.Errorf("-month: %w", err)
	}
	return tradehistory.RowKey{
		Month:       m,
		Institution: k.institution,
		Account:     k.account,
		Currency:    tradehistory.NormalizeCurrency(k.currency),
	}, nil
}

type reconLinesCmd struct {
	rowKeyFlags
	json bool
}

func (*reconLinesCmd) Name() string     { return "recon-lines" }
func (*reconLinesCmd) Synopsis() string { return "lists the statement lines behind a reconciliation row" }
func (*reconLinesCmd) Usage() string {
	return `th recon-lines -month <YYYY-MM> -account <id> -currency <ccy> [-institution <name>]

  Lists every statement line contributing to one reconciliation row, with
  its source file and raw text. The line each figure is taken from is
  marked with a check.
`
}

func (c *reconLinesCmd) SetFlags(f *flag.FlagSet) {
	c.rowKeyFlags.SetFlags(f)
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown.")
}

func (c *reconLinesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	key, err := c.key()
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
	lines := a.cfg.Reconciler(book.Converter).SnapshotLinesFor(key, book.Lines, a.cfg.DisplayCurrency)

	if c.json {
		return printJSON(lines)
	}
	printMarkdown(renderer.RenderSnapshotLines(lines))
	return subcommands.ExitSuccess
}

package tradehistory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/tradehistory/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Status classifies a reconciliation row.
type Status string

const (
	StatusOK              Status = "ok"
	StatusWarning         Status = "warning"
	StatusMissingSnapshot Status = "missing_snapshot"
)

// FeePolicy tells how event fees enter the net cash flow.
type FeePolicy string

const (
	// FeesIncluded means gross amounts are already net of commission and fees.
	FeesIncluded FeePolicy = "included"
	// FeesDeduct subtracts commission and fees from the gross amounts.
	FeesDeduct FeePolicy = "deduct"
)

// ParseFeePolicy parses a fee policy. The empty string means FeesIncluded.
func ParseFeePolicy(s string) (FeePolicy, error) {
	switch p := FeePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FeesIncluded, nil
	case FeesIncluded, FeesDeduct:
		return p, nil
	}
	return "", fmt.Errorf("unknown fee policy %q, want included or deduct", s)
}

// Decode implements envconfig.Decoder.
func (p *FeePolicy) Decode(s string) (err error) {
	*p, err = ParseFeePolicy(s)
	return err
}

// Tolerance is the threshold above which a reconciliation gap is a warning.
//
// The threshold of a row is the larger of its absolute part and its relative
// part applied to the statement closing cash. PerCurrency replaces Absolute
// for the currencies it lists.
type Tolerance struct {
	Absolute    decimal.Decimal
	Relative    decimal.Decimal
	PerCurrency map[string]decimal.Decimal
}

// DefaultTolerance accepts gaps up to one unit of currency.
var DefaultTolerance = Tolerance{Absolute: decimal.NewFromInt(1)}

// Threshold returns the largest acceptable |gap| for a statement closing amount.
func (t Tolerance) Threshold(closing Money) decimal.Decimal {
	abs := t.Absolute
	if v, ok := t.PerCurrency[closing.Currency()]; ok {
		abs = v
	}
	rel := t.Relative.Mul(closing.Decimal().Abs())
	return decimal.Max(abs, rel)
}

// ParsePerCurrency parses "USD:5,CAD:1" into per currency thresholds.
func ParsePerCurrency(s string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ccy, value, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid currency tolerance %q, want CCY:amount", item)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid currency tolerance %q: %w", item, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("negative currency tolerance %q", item)
		}
		out[NormalizeCurrency(ccy)] = d
	}
	return out, nil
}

// RowKey identifies a reconciliation row.
type RowKey struct {
	Month       date.Month
	Institution string
	Account     string
	Currency    string
}

func compareRowKeys(a, b RowKey) int {
	return cmp.Or(
		a.Month.Compare(b.Month),
		strings.Compare(a.Institution, b.Institution),
		strings.Compare(a.Account, b.Account),
		strings.Compare(a.Currency, b.Currency),
	)
}

// MonthlyRow compares ledger derived cash with statement reported cash for
// one account, month and native currency.
//
// The gap is derived minus statement: a negative gap means the statement
// reports more cash than the ledger explains.
type MonthlyRow struct {
	RowKey
	DisplayCurrency string

	StatementCashOpening   NullMoney
	StatementCashClosing   NullMoney
	StatementPortfolio     NullMoney
	StatementPreviousValue NullMoney

	EventCount          int
	EventsWithoutAmount int
	NetCashFlow         Money
	FeeTotal            Money
	DerivedCashClosing  NullMoney
	Gap                 NullMoney
	Tolerance           Money

	Status         Status
	MissingMetrics []MetricCode
	LineCount      int

	// Display holds the native figures converted to DisplayCurrency.
	Display RowAmounts
}

// RowAmounts is the set of monetary figures of a row in one currency.
type RowAmounts struct {
	StatementCashOpening   NullMoney
	StatementCashClosing   NullMoney
	StatementPortfolio     NullMoney
	StatementPreviousValue NullMoney
	NetCashFlow            NullMoney
	FeeTotal               NullMoney
	DerivedCashClosing     NullMoney
	Gap                    NullMoney
}

// Native returns the native figures as RowAmounts.
func (r MonthlyRow) Native() RowAmounts {
	return RowAmounts{
		StatementCashOpening:   r.StatementCashOpening,
		StatementCashClosing:   r.StatementCashClosing,
		StatementPortfolio:     r.StatementPortfolio,
		StatementPreviousValue: r.StatementPreviousValue,
		NetCashFlow:            r.NetCashFlow.Null(),
		FeeTotal:               r.FeeTotal.Null(),
		DerivedCashClosing:     r.DerivedCashClosing,
		Gap:                    r.Gap,
	}
}

// Err wraps ErrMissingStatementMetric with the metrics the statement lacks,
// or returns nil when the row could be checked.
func (r MonthlyRow) Err() error {
	if len(r.MissingMetrics) == 0 {
		return nil
	}
	codes := make([]string, len(r.MissingMetrics))
	for i, m := range r.MissingMetrics {
		codes[i] = string(m)
	}
	return fmt.Errorf("%w: %s", ErrMissingStatementMetric, strings.Join(codes, ", "))
}

// MarshalJSON writes the row flat, each figure as a _native and a _display field.
func (r MonthlyRow) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("month", r.Month)
	w.Append("institution", r.Institution)
	w.Append("account_id", r.Account)
	w.Append("currency_native", r.Currency)
	w.Append("display_currency", r.DisplayCurrency)
	native, display := r.Native(), r.Display
	pairs := []struct {
		name            string
		native, display NullMoney
	}{
		{"statement_cash_opening", native.StatementCashOpening, display.StatementCashOpening},
		{"statement_cash_closing", native.StatementCashClosing, display.StatementCashClosing},
		{"statement_portfolio", native.StatementPortfolio, display.StatementPortfolio},
		{"statement_previous_value", native.StatementPreviousValue, display.StatementPreviousValue},
		{"txn_net_cash_flow", native.NetCashFlow, display.NetCashFlow},
		{"txn_fee_total", native.FeeTotal, display.FeeTotal},
		{"derived_cash_closing", native.DerivedCashClosing, display.DerivedCashClosing},
		{"reconciliation_gap", native.Gap, display.Gap},
	}
	for _, p := range pairs {
		w.Append(p.name+"_native", p.native)
		w.Append(p.name+"_display", p.display)
	}
	w.Append("txn_event_count", r.EventCount)
	w.Optional("txn_events_without_amount", r.EventsWithoutAmount)
	w.Append("tolerance_native", r.Tolerance)
	w.Append("status", r.Status)
	w.Optional("missing_metrics", r.MissingMetrics)
	w.Append("snapshot_line_count", r.LineCount)
	return w.MarshalJSON()
}

// Reconciler computes monthly reconciliation rows.
type Reconciler struct {
	Tolerance Tolerance
	FeePolicy FeePolicy
	Converter Converter
}

// requiredMetrics are the statement figures without which a row cannot be reconciled.
var requiredMetrics = []struct {
	figure Figure
	code   MetricCode
}{
	{FigureCashOpening, MetricCashOpening},
	{FigureCashClosing, MetricCashClosing},
}

// authoritative picks, per figure, the line the row uses among lines.
func authoritative(lines []SnapshotLine) map[Figure]SnapshotLine {
	best := make(map[Figure]SnapshotLine)
	for _, l := range lines {
		f, ok := l.MetricCode.Figure()
		if !ok || !l.Value.Valid {
			continue
		}
		if cur, ok := best[f]; !ok || l.supersedes(cur) {
			best[f] = l
		}
	}
	return best
}

// Reconcile builds the row of one (month, account, native currency). Events
// and lines outside that key are ignored, so callers may pass whole batches.
func (rc Reconciler) Reconcile(key RowKey, events []TradeEvent, lines []SnapshotLine, display string) MonthlyRow {
	display = NormalizeCurrency(display)
	ccy := NormalizeCurrency(key.Currency)
	key.Currency = ccy
	row := MonthlyRow{
		RowKey:          key,
		DisplayCurrency: display,
		NetCashFlow:     M(0, ccy),
		FeeTotal:        M(0, ccy),
	}

	for _, e := range events {
		if e.Account != key.Account || e.Institution != key.Institution ||
			e.Currency != ccy || !key.Month.Contains(e.TradeDate) {
			continue
		}
		row.EventCount++
		fees := e.FeeTotal().In(ccy)
		row.FeeTotal = row.FeeTotal.Add(fees)
		if !e.Gross.Valid {
			row.EventsWithoutAmount++
			continue
		}
		flow := e.Gross.Money.In(ccy)
		if rc.FeePolicy == FeesDeduct {
			flow = flow.Sub(fees)
		}
		row.NetCashFlow = row.NetCashFlow.Add(flow)
	}

	var mine []SnapshotLine
	for _, l := range lines {
		if l.matches(key) {
			mine = append(mine, l)
		}
	}
	row.LineCount = len(mine)
	best := authoritative(mine)
	figure := func(f Figure) NullMoney {
		if l, ok := best[f]; ok {
			return l.Value.in(ccy)
		}
		return Unknown(ccy)
	}
	row.StatementCashOpening = figure(FigureCashOpening)
	row.StatementCashClosing = figure(FigureCashClosing)
	row.StatementPortfolio = figure(FigurePortfolio)
	row.StatementPreviousValue = figure(FigurePreviousValue)

	row.DerivedCashClosing = Unknown(ccy)
	if row.StatementCashOpening.Valid {
		row.DerivedCashClosing = row.StatementCashOpening.Money.Add(row.NetCashFlow).Null()
	}
	row.Gap = row.DerivedCashClosing.SubKnown(row.StatementCashClosing)

	for _, m := range requiredMetrics {
		if _, ok := best[m.figure]; !ok {
			row.MissingMetrics = append(row.MissingMetrics, m.code)
		}
	}
	row.Tolerance = M(rc.Tolerance.Threshold(row.StatementCashClosing.Money.In(ccy)), ccy)
	switch {
	case len(row.MissingMetrics) > 0:
		row.Status = StatusMissingSnapshot
	case row.Gap.Valid && row.Gap.Decimal().Abs().GreaterThan(row.Tolerance.Decimal()):
		row.Status = StatusWarning
	default:
		row.Status = StatusOK
	}

	on := key.Month.Last()
	conv := func(n NullMoney) NullMoney { return rc.Converter.ConvertNull(n, on, display) }
	native := row.Native()
	row.Display = RowAmounts{
		StatementCashOpening:   conv(native.StatementCashOpening),
		StatementCashClosing:   conv(native.StatementCashClosing),
		StatementPortfolio:     conv(native.StatementPortfolio),
		StatementPreviousValue: conv(native.StatementPreviousValue),
		NetCashFlow:            conv(native.NetCashFlow),
		FeeTotal:               conv(native.FeeTotal),
		DerivedCashClosing:     conv(native.DerivedCashClosing),
		Gap:                    conv(native.Gap),
	}
	return row
}

// matches reports whether the line contributes to the row key.
func (l SnapshotLine) matches(key RowKey) bool {
	if l.SnapshotDate.IsZero() || l.Account != key.Account || l.Institution != key.Institution ||
		l.Currency != key.Currency {
		return false
	}
	return key.Month.Contains(l.SnapshotDate)
}

// resolve returns the row keys of lines that key designates. A key without
// institution designates the keys of every institution of its month, account
// and currency; a key with one designates itself.
func (key RowKey) resolve(lines []SnapshotLine) []RowKey {
	if key.Institution != "" {
		return []RowKey{key}
	}
	seen := make(map[RowKey]bool)
	var keys []RowKey
	for _, l := range lines {
		k := key
		k.Institution = l.Institution
		if !seen[k] && l.matches(k) {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// RowFilter restricts ReconcileAll to an institution and/or an account.
type RowFilter struct {
	Institution string
	Account     string
}

func (f RowFilter) match(institution, account string) bool {
	return (f.Institution == "" || f.Institution == institution) && (f.Account == "" || f.Account == account)
}

// ReconcileAll reconciles every (month, institution, account, currency) found
// in the events or the lines. Rows are sorted newest month first.
func (rc Reconciler) ReconcileAll(ctx context.Context, events []TradeEvent, lines []SnapshotLine, filter RowFilter, display string) []MonthlyRow {
	keys := make(map[RowKey]bool)
	for _, e := range events {
		if e.TradeDate.IsZero() || !filter.match(e.Institution, e.Account) {
			continue
		}
		keys[RowKey{Month: e.TradeDate.MonthOf(), Institution: e.Institution, Account: e.Account, Currency: e.Currency}] = true
	}
	for _, l := range lines {
		if l.SnapshotDate.IsZero() || !filter.match(l.Institution, l.Account) {
			continue
		}
		keys[l.Key()] = true
	}

	sorted := make([]RowKey, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	slices.SortFunc(sorted, func(a, b RowKey) int { return compareRowKeys(b, a) })

	log := zerolog.Ctx(ctx)
	rows := make([]MonthlyRow, 0, len(sorted))
	for _, k := range sorted {
		row := rc.Reconcile(k, events, lines, display)
		switch {
		case row.Status == StatusWarning:
			log.Debug().Str("month", k.Month.String()).Str("account", k.Account).Str("currency", k.Currency).
				Str("gap", row.Gap.String()).Msg("reconciliation gap above tolerance")
		case row.Err() != nil:
			log.Debug().Err(row.Err()).Str("month", k.Month.String()).Str("account", k.Account).
				Str("currency", k.Currency).Msg("reconciliation row not checked")
		}
		rows = append(rows, row)
	}
	return rows
}

// SnapshotLinesFor returns every line contributing to the row key, ordered
// by snapshot date, metric code and id, converted to the display currency.
// The line a figure is taken from is marked Authoritative. A key without
// institution lists the lines of every institution, each row on its own.
func (rc Reconciler) SnapshotLinesFor(key RowKey, lines []SnapshotLine, display string) []SnapshotLineView {
	display = NormalizeCurrency(display)
	key.Currency = NormalizeCurrency(key.Currency)
	on := key.Month.Last()
	var views []SnapshotLineView
	for _, k := range key.resolve(lines) {
		var mine []SnapshotLine
		for _, l := range lines {
			if l.matches(k) {
				mine = append(mine, l)
			}
		}
		best := authoritative(mine)
		for _, l := range mine {
			f, _ := l.MetricCode.Figure()
			b, ok := best[f]
			views = append(views, SnapshotLineView{
				SnapshotLine:    l,
				Figure:          f,
				DisplayCurrency: display,
				ValueDisplay:    rc.Converter.ConvertNull(l.Value, on, display),
				Authoritative:   ok && b.ID == l.ID,
			})
		}
	}
	slices.SortFunc(views, func(a, b SnapshotLineView) int { return compareSnapshotLines(a.SnapshotLine, b.SnapshotLine) })
	if views == nil {
		views = []SnapshotLineView{}
	}
	return views
}

package tradehistory

import (
	"cmp"
	"encoding/json"
	"path"
	"strings"

	"github.com/etnz/tradehistory/date"
)

// MetricCode names the statement figure a SnapshotLine reports.
type MetricCode string

const (
	MetricCashOpening          MetricCode = "cash_opening"
	MetricCashClosing          MetricCode = "cash_closing"
	MetricCashClosingTotal     MetricCode = "cash_closing_total"
	MetricPortfolioTotal       MetricCode = "portfolio_total"
	MetricAccountValueCurrent  MetricCode = "account_value_current"
	MetricAccountValuePrevious MetricCode = "account_value_previous"
)

// Figure is a statement-side field of a MonthlyRow.
type Figure string

const (
	FigureCashOpening   Figure = "statement_cash_opening"
	FigureCashClosing   Figure = "statement_cash_closing"
	FigurePortfolio     Figure = "statement_portfolio"
	FigurePreviousValue Figure = "statement_previous_value"
)

// figureCodes lists, per figure, the metric codes that report it by
// decreasing priority: a line with an earlier code always wins.
var figureCodes = map[Figure][]MetricCode{
	FigureCashOpening:   {MetricCashOpening},
	FigureCashClosing:   {MetricCashClosingTotal, MetricCashClosing},
	FigurePortfolio:     {MetricPortfolioTotal, MetricAccountValueCurrent},
	FigurePreviousValue: {MetricAccountValuePrevious},
}

// Figures returns the figures in row order.
func Figures() []Figure {
	return []Figure{FigureCashOpening, FigureCashClosing, FigurePortfolio, FigurePreviousValue}
}

// Figure returns the statement figure reported by the code, if any.
func (c MetricCode) Figure() (Figure, bool) {
	for f, codes := range figureCodes {
		for _, x := range codes {
			if x == c {
				return f, true
			}
		}
	}
	return "", false
}

// priority is the rank of the code within its figure, 0 being the best.
func (c MetricCode) priority() int {
	f, ok := c.Figure()
	if !ok {
		return len(figureCodes)
	}
	for i, x := range figureCodes[f] {
		if x == c {
			return i
		}
	}
	return len(figureCodes)
}

// SnapshotLine is one fact parsed from a brokerage statement, with its
// provenance.
type SnapshotLine struct {
	ID            string
	Institution   string
	Account       string
	SnapshotDate  date.Date
	MetricCode    MetricCode
	Currency      string
	Value         NullMoney
	FilePath      string
	SourceLineRef string
	RawLine       string
}

// Month is the statement month the line belongs to.
func (l SnapshotLine) Month() date.Month { return l.SnapshotDate.MonthOf() }

// FileName returns the base name of the source file, whatever the path
// separator used by the producer.
func (l SnapshotLine) FileName() string {
	p := strings.ReplaceAll(l.FilePath, "\\", "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// Key returns the reconciliation row the line contributes to.
func (l SnapshotLine) Key() RowKey {
	return RowKey{Month: l.Month(), Institution: l.Institution, Account: l.Account, Currency: l.Currency}
}

// compareSnapshotLines orders lines by snapshot date, metric code then id.
func compareSnapshotLines(a, b SnapshotLine) int {
	return cmp.Or(
		a.SnapshotDate.Compare(b.SnapshotDate),
		strings.Compare(string(a.MetricCode), string(b.MetricCode)),
		CompareIDs(a.ID, b.ID),
	)
}

// supersedes reports whether a is more authoritative than b for the same
// figure: a better metric code wins, then the latest line.
func (l SnapshotLine) supersedes(b SnapshotLine) bool {
	if pa, pb := l.MetricCode.priority(), b.MetricCode.priority(); pa != pb {
		return pa < pb
	}
	if c := l.SnapshotDate.Compare(b.SnapshotDate); c != 0 {
		return c > 0
	}
	return CompareIDs(l.ID, b.ID) > 0
}

type snapshotLineWire struct {
	ID            flexID    `json:"id"`
	Institution   string    `json:"institution"`
	Account       string    `json:"account_id"`
	SnapshotDate  date.Date `json:"snapshot_date"`
	MetricCode    string    `json:"metric_code"`
	Currency      string    `json:"currency"`
	Value         NullMoney `json:"value_native"`
	FilePath      string    `json:"file_path"`
	SourceLineRef string    `json:"source_line_ref"`
	RawLine       string    `json:"raw_line"`
}

// UnmarshalJSON decodes and normalizes a statement line.
func (l *SnapshotLine) UnmarshalJSON(b []byte) error {
	var w snapshotLineWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ccy := NormalizeCurrency(w.Currency)
	*l = SnapshotLine{
		ID:            string(w.ID),
		Institution:   strings.TrimSpace(w.Institution),
		Account:       strings.TrimSpace(w.Account),
		SnapshotDate:  w.SnapshotDate,
		MetricCode:    MetricCode(strings.ToLower(strings.TrimSpace(w.MetricCode))),
		Currency:      ccy,
		Value:         w.Value.in(ccy),
		FilePath:      w.FilePath,
		SourceLineRef: w.SourceLineRef,
		RawLine:       w.RawLine,
	}
	return nil
}

// MarshalJSON writes the line in the stable wire vocabulary.
func (l SnapshotLine) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", l.ID)
	w.Append("institution", l.Institution)
	w.Append("account_id", l.Account)
	w.Append("snapshot_date", l.SnapshotDate)
	w.Append("metric_code", l.MetricCode)
	w.Append("currency", l.Currency)
	w.Append("value_native", l.Value)
	w.Append("file_path", l.FilePath)
	w.Append("source_line_ref", l.SourceLineRef)
	w.Append("raw_line", l.RawLine)
	return w.MarshalJSON()
}

// SnapshotLineView is a contributing line as shown in a reconciliation
// drill-down.
type SnapshotLineView struct {
	SnapshotLine
	Figure          Figure
	DisplayCurrency string
	ValueDisplay    NullMoney
	// Authoritative marks the line whose value the row uses for its figure.
	Authoritative bool
}

// MarshalJSON writes the view in the stable wire vocabulary.
func (v SnapshotLineView) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", v.ID)
	w.Append("institution", v.Institution)
	w.Append("account_id", v.Account)
	w.Append("month", v.Month())
	w.Append("snapshot_date", v.SnapshotDate)
	w.Append("metric_code", v.MetricCode)
	w.Nullable("figure", string(v.Figure))
	w.Append("currency_native", v.Currency)
	w.Append("value_native", v.Value)
	w.Append("display_currency", v.DisplayCurrency)
	w.Append("value_display", v.ValueDisplay)
	w.Append("file_path", v.FilePath)
	w.Append("file_name", v.FileName())
	w.Append("source_line_ref", v.SourceLineRef)
	w.Append("raw_line", v.RawLine)
	w.Append("authoritative", v.Authoritative)
	return w.MarshalJSON()
}

package tradehistory

import (
	"context"
	"fmt"

	"github.com/etnz/tradehistory/date"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Book is an immutable batch of everything the views are computed from.
// Views never modify it, so one Book can serve concurrent requests.
type Book struct {
	Events    []TradeEvent
	Lines     []SnapshotLine
	Prices    *PriceBook
	Converter Converter
	Symbols   *SymbolIndex

	// TransferWindow is passed to the Matcher.
	TransferWindow int
}

// Match runs the lot matcher over the whole ledger.
func (b *Book) Match(ctx context.Context, method CostBasisMethod) (MatchResult, error) {
	return b.matcher(method).MatchAll(ctx, b.Events)
}

func (b *Book) matcher(method CostBasisMethod) Matcher {
	return Matcher{Method: method, TransferWindow: b.TransferWindow}
}

// Positions returns the positions held on the given day.
func (b *Book) Positions(ctx context.Context, method CostBasisMethod, on date.Date) ([]Position, error) {
	var held []TradeEvent
	for _, e := range b.Events {
		if !e.TradeDate.After(on) {
			held = append(held, e)
		}
	}
	res, err := b.matcher(method).MatchAll(ctx, held)
	if err != nil {
		return nil, err
	}
	return Positions(res.OpenLots(), b.Prices, b.Symbols, on), nil
}

// ReportOptions selects what Report computes.
type ReportOptions struct {
	Display    string
	On         date.Date
	GroupBy    GroupBy
	Method     CostBasisMethod
	Reconciler Reconciler
	Filter     RowFilter
	Closed     ClosedQuery
	// DrillDown, when set, selects the row whose snapshot lines are listed.
	DrillDown  *RowKey
}

// Report gathers the five views of a Book.
type Report struct {
	Display        string                  `json:"display_currency"`
	On             date.Date               `json:"date"`
	Closed         Page[ClosedPositionLot] `json:"closed"`
	Warnings       []Warning               `json:"warnings"`
	Valuation      Valuation               `json:"valuation"`
	Sectors        []SectorRow             `json:"sectors"`
	SectorTotal    Money                   `json:"sector_total_display"`
	Reconciliation []MonthlyRow            `json:"reconciliation"`
	SnapshotLines  []SnapshotLineView      `json:"snapshot_lines,omitempty"`
}

// Report computes all views concurrently. It fails with ErrNoData on an
// empty ledger and with ErrRateUnavailable when a valuation total cannot be
// converted.
func (b *Book) Report(ctx context.Context, opts ReportOptions) (*Report, error) {
	if len(b.Events) == 0 {
		return nil, ErrNoData
	}
	if opts.On.IsZero() {
		opts.On = date.Today()
	}
	if opts.GroupBy == "" {
		opts.GroupBy = GroupTotal
	}
	if opts.Reconciler.Converter.Rates == nil {
		opts.Reconciler.Converter = b.Converter
	}
	log := zerolog.Ctx(ctx)
	r := &Report{Display: NormalizeCurrency(opts.Display), On: opts.On}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := b.Match(ctx, opts.Method)
		if err != nil {
			return err
		}
		r.Closed = ListClosed(res.Closed, opts.Closed)
		r.Warnings = res.Warnings
		return nil
	})
	g.Go(func() error {
		positions, err := b.Positions(ctx, opts.Method, opts.On)
		if err != nil {
			return err
		}
		var vg errgroup.Group
		vg.Go(func() (err error) {
			r.Valuation, err = Aggregate(positions, opts.GroupBy, opts.Display, opts.On, b.Converter)
			return err
		})
		vg.Go(func() (err error) {
			r.Sectors, r.SectorTotal, err = Sectors(positions, opts.Display, opts.On, b.Converter)
			return err
		})
		if err := vg.Wait(); err != nil {
			return fmt.Errorf("valuation on %s: %w", opts.On, err)
		}
		return nil
	})
	g.Go(func() error {
		r.Reconciliation = opts.Reconciler.ReconcileAll(ctx, b.Events, b.Lines, opts.Filter, opts.Display)
		return nil
	})
	if opts.DrillDown != nil {
		g.Go(func() error {
			r.SnapshotLines = opts.Reconciler.SnapshotLinesFor(*opts.DrillDown, b.Lines, opts.Display)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug().Int("events", len(b.Events)).Int("lines", len(b.Lines)).Msg("report computed")
	return r, nil
}

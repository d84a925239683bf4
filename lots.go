package tradehistory

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"

	"github.com/etnz/tradehistory/date"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PositionKey identifies a position: lots never cross these boundaries
// except through a linked transfer.
type PositionKey struct {
	Account  string
	Symbol   string
	Currency string
}

func (k PositionKey) String() string { return k.Account + "/" + k.Symbol + "/" + k.Currency }

func comparePositionKeys(a, b PositionKey) int {
	return cmp.Or(cmp.Compare(a.Account, b.Account), cmp.Compare(a.Symbol, b.Symbol), cmp.Compare(a.Currency, b.Currency))
}

// OpenLot is a quantity of a symbol acquired at one price and date.
type OpenLot struct {
	EventID     string    `json:"open_event_id"`
	Date        date.Date `json:"open_date"`
	Account     string    `json:"account_id"`
	Institution string    `json:"institution"`
	Symbol      string    `json:"symbol"`
	AssetType   string    `json:"asset_type"`
	Currency    string    `json:"currency"`
	Quantity    Quantity  `json:"quantity"`
	Cost        Money     `json:"cost_native"` // total cost of the remaining quantity, fees included
}

// UnitCost returns the cost per share of the lot.
func (l OpenLot) UnitCost() Money {
	if l.Quantity.IsZero() {
		return M(0, l.Currency)
	}
	return l.Cost.Div(l.Quantity)
}

// take splits q out of the lot, returning the taken part and the remainder.
func (l OpenLot) take(q Quantity) (taken, rest OpenLot) {
	if !q.LessThan(l.Quantity) {
		return l, OpenLot{}
	}
	taken, rest = l, l
	taken.Quantity = q
	taken.Cost = l.Cost.Mul(q).Div(l.Quantity)
	rest.Quantity = l.Quantity.Sub(q)
	rest.Cost = l.Cost.Sub(taken.Cost)
	return taken, rest
}

// lots is the ordered queue of open lots of one position, oldest first.
type lots []OpenLot

func (l lots) quantity() Quantity {
	var q Quantity
	for _, x := range l {
		q = q.Add(x.Quantity)
	}
	return q
}

func (l lots) cost(currency string) Money {
	total := M(0, currency)
	for _, x := range l {
		total = total.Add(x.Cost)
	}
	return total
}

// dequeue removes up to q from the front of the queue. It returns the
// consumed slices, the remaining queue and the quantity that could not be
// matched.
//
// Under AverageCost the slices are priced at the average unit cost of the
// whole queue and the remaining lots are re-based to that average.
func (l lots) dequeue(q Quantity, method CostBasisMethod) (consumed, rest lots, missing Quantity) {
	var avg Money
	if method == AverageCost && len(l) > 0 {
		avg = l.cost(l[0].Currency).Div(l.quantity())
	}
	remaining := q
	for i, current := range l {
		if remaining.IsZero() || remaining.nearlyZero() {
			rest = append(rest, l[i:]...)
			remaining = Quantity{}
			break
		}
		taken, left := current.take(remaining)
		remaining = remaining.Sub(taken.Quantity)
		consumed = append(consumed, taken)
		if !left.Quantity.IsZero() {
			rest = append(rest, left)
		}
	}
	if method == AverageCost {
		for i := range consumed {
			consumed[i].Cost = avg.Mul(consumed[i].Quantity)
		}
		for i := range rest {
			rest[i].Cost = avg.Mul(rest[i].Quantity)
		}
	}
	if remaining.nearlyZero() {
		remaining = Quantity{}
	}
	return consumed, rest, remaining
}

// ClosedPositionLot is the realized result of closing (part of) one open lot.
//
// An unmatched slice, closed without any open lot to match, has an unknown
// cost basis and realized P&L and carries a warning.
type ClosedPositionLot struct {
	ID             int
	CloseEventID   string
	CloseDate      date.Date
	Account        string
	Institution    string
	Symbol         string
	OpenEventID    string
	OpenDate       date.Date
	QuantityClosed Quantity
	Proceeds       Money
	CostBasis      NullMoney
	RealizedPL     NullMoney
	Currency       string
	Method         CostBasisMethod
	Warning        string
}

// MarshalJSON writes the record in the stable wire vocabulary.
func (c ClosedPositionLot) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", c.ID)
	w.Append("close_event_id", c.CloseEventID)
	w.Append("close_date", c.CloseDate)
	w.Append("account_id", c.Account)
	w.Append("institution", c.Institution)
	w.Append("symbol", c.Symbol)
	w.Nullable("open_event_id", c.OpenEventID)
	w.Append("open_date", c.OpenDate)
	w.Append("quantity_closed", c.QuantityClosed)
	w.Append("proceeds_native", c.Proceeds)
	w.Append("cost_native", c.CostBasis)
	w.Append("realized_pl_native", c.RealizedPL)
	w.Append("currency", c.Currency)
	w.Append("method", c.Method.String())
	w.Optional("warning", c.Warning)
	return w.MarshalJSON()
}

// MatchStats counts what a matcher run did.
type MatchStats struct {
	ProcessedEvents int `json:"processed_events"`
	ClosedLotRows   int `json:"closed_lot_rows"`
	OpenPositions   int `json:"open_positions"`
	TransfersLinked int `json:"transfers_linked"`
}

// MatchResult is the output of a matcher run.
type MatchResult struct {
	Closed   []ClosedPositionLot
	Open     map[PositionKey][]OpenLot
	Warnings []Warning
	Stats    MatchStats
}

// OpenLots returns all remaining open lots ordered by position then date.
func (r MatchResult) OpenLots() []OpenLot {
	keys := make([]PositionKey, 0, len(r.Open))
	for k := range r.Open {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, comparePositionKeys)
	var out []OpenLot
	for _, k := range keys {
		out = append(out, r.Open[k]...)
	}
	return out
}

// RealizedByEvent sums the known realized P&L of closed lots per closing event.
func (r MatchResult) RealizedByEvent() map[string]NullMoney {
	out := make(map[string]NullMoney)
	for _, c := range r.Closed {
		prev, ok := out[c.CloseEventID]
		if !ok {
			out[c.CloseEventID] = c.RealizedPL
			continue
		}
		if !c.RealizedPL.Valid {
			continue
		}
		if !prev.Valid {
			out[c.CloseEventID] = c.RealizedPL
			continue
		}
		out[c.CloseEventID] = prev.Money.Add(c.RealizedPL.Money).Null()
	}
	return out
}

// Matcher matches closing events against previously opened lots.
type Matcher struct {
	Method CostBasisMethod
	// TransferWindow is the maximum number of days between the two legs of a
	// transfer. Zero means DefaultTransferWindow.
	TransferWindow int
}

// partitionKey groups the events that may share lots: one symbol in one
// currency across all accounts, since transfers move lots between accounts.
type partitionKey struct{ symbol, currency string }

// MatchAll runs the matcher over a whole batch. Independent symbols are
// processed in parallel; events of one symbol are folded strictly in ledger
// order.
func (m Matcher) MatchAll(ctx context.Context, events []TradeEvent) (MatchResult, error) {
	parts := make(map[partitionKey][]TradeEvent)
	var keys []partitionKey
	for _, e := range events {
		if !e.affectsPosition() {
			continue
		}
		k := partitionKey{e.Symbol, e.Currency}
		if _, ok := parts[k]; !ok {
			keys = append(keys, k)
		}
		parts[k] = append(parts[k], e)
	}

	results := make([]MatchResult, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, k := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = m.Match(ctx, parts[k])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MatchResult{}, err
	}

	merged := MatchResult{Open: make(map[PositionKey][]OpenLot)}
	for _, r := range results {
		merged.Closed = append(merged.Closed, r.Closed...)
		merged.Warnings = append(merged.Warnings, r.Warnings...)
		for k, v := range r.Open {
			merged.Open[k] = v
		}
		merged.Stats.ProcessedEvents += r.Stats.ProcessedEvents
		merged.Stats.TransfersLinked += r.Stats.TransfersLinked
	}
	order := make(map[string]TradeEvent, len(events))
	for _, e := range events {
		order[e.ID] = e
	}
	// Stable sort keeps the slice order of one closing event.
	slices.SortStableFunc(merged.Closed, func(a, b ClosedPositionLot) int {
		return CompareEvents(order[a.CloseEventID], order[b.CloseEventID])
	})
	for i := range merged.Closed {
		merged.Closed[i].ID = i + 1
	}
	merged.Stats.ClosedLotRows = len(merged.Closed)
	merged.Stats.OpenPositions = len(merged.Open)
	zerolog.Ctx(ctx).Debug().
		Int("events", merged.Stats.ProcessedEvents).
		Int("closed", merged.Stats.ClosedLotRows).
		Int("open", merged.Stats.OpenPositions).
		Int("warnings", len(merged.Warnings)).
		Msg("lot matching done")
	return merged, nil
}

// Match folds the events of one symbol in ledger order. Events are sorted
// here, so callers may pass them in any order.
func (m Matcher) Match(ctx context.Context, events []TradeEvent) MatchResult {
	events = slices.Clone(events)
	slices.SortFunc(events, CompareEvents)

	window := m.TransferWindow
	if window == 0 {
		window = DefaultTransferWindow
	}
	links := LinkTransfers(events, window)

	run := &matchRun{
		method:      m.Method,
		log:         zerolog.Ctx(ctx),
		queues:      make(map[PositionKey]lots),
		links:       links,
		transferred: make(map[string]lots),
	}
	for _, e := range events {
		if !e.affectsPosition() {
			continue
		}
		run.stats.ProcessedEvents++
		run.apply(e)
	}
	run.stats.TransfersLinked = len(links)

	res := MatchResult{
		Closed:   run.closed,
		Open:     make(map[PositionKey][]OpenLot),
		Warnings: run.warnings,
		Stats:    run.stats,
	}
	for k, q := range run.queues {
		if q.quantity().nearlyZero() {
			continue
		}
		res.Open[k] = q
	}
	res.Stats.ClosedLotRows = len(res.Closed)
	res.Stats.OpenPositions = len(res.Open)
	return res
}

// matchRun is the working set of one Match call.
type matchRun struct {
	method      CostBasisMethod
	log         *zerolog.Logger
	queues      map[PositionKey]lots
	links       map[string]string // transfer-in event id -> transfer-out event id
	transferred map[string]lots   // lots moved out by a transfer-out event id
	closed      []ClosedPositionLot
	warnings    []Warning
	stats       MatchStats
}

func (r *matchRun) warn(e TradeEvent, kind error, format string, args ...any) {
	w := Warning{Kind: kind, EventID: e.ID, Account: e.Account, Symbol: e.Symbol, Message: fmt.Sprintf(format, args...)}
	r.warnings = append(r.warnings, w)
	r.log.Warn().Str("event_id", e.ID).Str("account", e.Account).Str("symbol", e.Symbol).Msg(w.Message)
}

func (r *matchRun) apply(e TradeEvent) {
	key := PositionKey{Account: e.Account, Symbol: e.Symbol, Currency: e.Currency}
	qty := e.SignedQuantity()

	if e.IsTransfer() {
		switch e.Side {
		case SideTransferOut:
			r.transferOut(key, e, qty.Abs())
		case SideTransferIn:
			r.transferIn(key, e, qty.Abs())
		default:
			r.warn(e, nil, "transfer with unknown direction %q, position unchanged", e.Side)
		}
		return
	}

	price := e.UnitPrice()
	if !price.Valid {
		r.warn(e, nil, "event has neither price nor gross amount, skipped")
		return
	}
	if qty.IsPositive() {
		cost := price.Money.Mul(qty).Add(e.FeeTotal())
		r.queues[key] = append(r.queues[key], r.newLot(e, qty, cost))
		return
	}
	r.close(key, e, qty.Abs(), price.Money)
}

func (r *matchRun) newLot(e TradeEvent, q Quantity, cost Money) OpenLot {
	return OpenLot{
		EventID:     e.ID,
		Date:        e.TradeDate,
		Account:     e.Account,
		Institution: e.Institution,
		Symbol:      e.Symbol,
		AssetType:   e.AssetType,
		Currency:    e.Currency,
		Quantity:    q,
		Cost:        cost,
	}
}

// close consumes q from the position and emits one ClosedPositionLot per
// consumed slice. Proceeds are net of the event's fees, pro-rated by quantity.
func (r *matchRun) close(key PositionKey, e TradeEvent, q Quantity, price Money) {
	totalProceeds := price.Mul(q).Sub(e.FeeTotal())
	consumed, rest, missing := r.queues[key].dequeue(q, r.method)
	r.queues[key] = rest

	allocated := M(0, e.Currency)
	emit := func(slice Quantity, last bool) ClosedPositionLot {
		proceeds := totalProceeds.Mul(slice).Div(q)
		if last {
			proceeds = totalProceeds.Sub(allocated)
		}
		allocated = allocated.Add(proceeds)
		return ClosedPositionLot{
			CloseEventID:   e.ID,
			CloseDate:      e.TradeDate,
			Account:        e.Account,
			Institution:    e.Institution,
			Symbol:         e.Symbol,
			QuantityClosed: slice,
			Proceeds:       proceeds,
			Currency:       e.Currency,
			Method:         r.method,
		}
	}
	for i, lot := range consumed {
		c := emit(lot.Quantity, i == len(consumed)-1 && missing.IsZero())
		c.OpenEventID = lot.EventID
		c.OpenDate = lot.Date
		c.CostBasis = lot.Cost.Null()
		c.RealizedPL = c.Proceeds.Sub(lot.Cost).Null()
		r.closed = append(r.closed, c)
	}
	if !missing.IsZero() {
		c := emit(missing, true)
		c.CostBasis = Unknown(e.Currency)
		c.RealizedPL = Unknown(e.Currency)
		c.Warning = fmt.Sprintf("closing quantity %s exceeds open quantity by %s", q, missing)
		r.closed = append(r.closed, c)
		r.warn(e, ErrDataIntegrity, "%s", c.Warning)
	}
}

func (r *matchRun) transferOut(key PositionKey, e TradeEvent, q Quantity) {
	consumed, rest, missing := r.queues[key].dequeue(q, r.method)
	r.queues[key] = rest
	r.transferred[e.ID] = consumed
	if !missing.IsZero() {
		r.warn(e, ErrDataIntegrity, "transfer out of %s exceeds open quantity by %s", q, missing)
	}
}

// transferIn re-opens the lots carried by the linked transfer-out in the
// receiving account, keeping their original dates and cost. Unlinked
// transfers open a new lot at the implied price.
func (r *matchRun) transferIn(key PositionKey, e TradeEvent, q Quantity) {
	if from, ok := r.links[e.ID]; ok {
		if carried, ok := r.transferred[from]; ok && len(carried) > 0 {
			delete(r.transferred, from)
			carriedQty := carried.quantity()
			for _, lot := range carried {
				lot.Account, lot.Institution = e.Account, e.Institution
				if !carriedQty.IsZero() && !carriedQty.Equal(q) {
					// legs matched within tolerance: scale to the received quantity.
					lot.Quantity = lot.Quantity.Mul(q).Div(carriedQty)
				}
				r.queues[key] = append(r.queues[key], lot)
			}
			return
		}
	}
	price := e.UnitPrice()
	if !price.Valid {
		r.warn(e, nil, "unlinked transfer in without price, opened at zero cost")
		price = M(0, e.Currency).Null()
	}
	r.queues[key] = append(r.queues[key], r.newLot(e, q, price.Money.Mul(q)))
}

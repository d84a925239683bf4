package tradehistory

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/tradehistory/date"
)

// DefaultPageSize is the page size used when a query does not set one.
const DefaultPageSize = 200

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// paginate cuts items to the requested 1-based page.
func paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	p := Page[T]{Total: len(items), Page: page, PageSize: size, Items: []T{}}
	start := (page - 1) * size
	if start >= len(items) {
		return p
	}
	end := min(start+size, len(items))
	p.Items = items[start:end]
	return p
}

// EventSort is a sortable column of the event listing.
type EventSort string

const (
	SortTradeDate   EventSort = "trade_date"
	SortAccount     EventSort = "account_id"
	SortInstitution EventSort = "institution"
	SortSymbol      EventSort = "symbol"
	SortQuantity    EventSort = "quantity"
	SortPrice       EventSort = "price"
	SortGross       EventSort = "gross_amount"
	SortRealizedPL  EventSort = "realized_pl"
)

// ParseEventSort parses a sort column. The empty string means SortTradeDate.
func ParseEventSort(s string) (EventSort, error) {
	switch c := EventSort(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return SortTradeDate, nil
	case SortTradeDate, SortAccount, SortInstitution, SortSymbol, SortQuantity, SortPrice, SortGross, SortRealizedPL:
		return c, nil
	}
	return "", fmt.Errorf("unknown sort column %q", s)
}

// EventQuery selects and orders events. Empty filters match everything.
type EventQuery struct {
	Account     string
	Institution string
	Symbol      string
	Type        EventType
	Range       date.Range
	Sort        EventSort
	Desc        bool
	Page        int
	PageSize    int
}

// EventRow is a listed event with the realized P&L of the lots it closed.
type EventRow struct {
	TradeEvent
	RealizedPL NullMoney
}

// MarshalJSON writes the event fields followed by realized_pl.
func (r EventRow) MarshalJSON() ([]byte, error) {
	b, err := r.TradeEvent.MarshalJSON()
	if err != nil {
		return nil, err
	}
	pl, err := r.RealizedPL.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out := append(b[:len(b)-1], `,"realized_pl":`...)
	out = append(out, pl...)
	return append(out, '}'), nil
}

// nullsLast compares two nullable amounts, unknown values sorting after known ones.
func nullsLast(a, b NullMoney) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return 1
	case !b.Valid:
		return -1
	}
	return a.Decimal().Cmp(b.Decimal())
}

func (c EventSort) compare(a, b EventRow) int {
	switch c {
	case SortAccount:
		return strings.Compare(a.Account, b.Account)
	case SortInstitution:
		return strings.Compare(a.Institution, b.Institution)
	case SortSymbol:
		return strings.Compare(a.Symbol, b.Symbol)
	case SortQuantity:
		return a.Quantity.Decimal().Cmp(b.Quantity.Decimal())
	case SortPrice:
		return nullsLast(a.Price, b.Price)
	case SortGross:
		return nullsLast(a.Gross, b.Gross)
	case SortRealizedPL:
		return nullsLast(a.RealizedPL, b.RealizedPL)
	}
	return a.TradeDate.Compare(b.TradeDate)
}

// ListEvents filters, sorts and pages events. Ties are broken by id in the
// requested direction.
func ListEvents(events []TradeEvent, realized map[string]NullMoney, q EventQuery) Page[EventRow] {
	rows := make([]EventRow, 0, len(events))
	for _, e := range events {
		if q.Account != "" && e.Account != q.Account {
			continue
		}
		if q.Institution != "" && e.Institution != q.Institution {
			continue
		}
		if q.Symbol != "" && e.Symbol != NormalizeSymbol(q.Symbol) {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if !q.Range.Contains(e.TradeDate) {
			continue
		}
		pl, ok := realized[e.ID]
		if !ok {
			pl = Unknown(e.Currency)
		}
		rows = append(rows, EventRow{TradeEvent: e, RealizedPL: pl})
	}
	slices.SortStableFunc(rows, func(a, b EventRow) int {
		c := cmp.Or(q.Sort.compare(a, b), CompareIDs(a.ID, b.ID))
		if q.Desc {
			return -c
		}
		return c
	})
	return paginate(rows, q.Page, q.PageSize)
}

// ClosedQuery selects closed lots. Empty filters match everything.
type ClosedQuery struct {
	Account  string
	Symbol   string
	Range    date.Range
	Page     int
	PageSize int
}

// ListClosed pages closed lots, most recent close first.
func ListClosed(closed []ClosedPositionLot, q ClosedQuery) Page[ClosedPositionLot] {
	rows := make([]ClosedPositionLot, 0, len(closed))
	for _, c := range closed {
		if q.Account != "" && c.Account != q.Account {
			continue
		}
		if q.Symbol != "" && c.Symbol != NormalizeSymbol(q.Symbol) {
			continue
		}
		if !q.Range.Contains(c.CloseDate) {
			continue
		}
		rows = append(rows, c)
	}
	slices.SortFunc(rows, func(a, b ClosedPositionLot) int {
		return cmp.Or(b.CloseDate.Compare(a.CloseDate), cmp.Compare(b.ID, a.ID))
	})
	return paginate(rows, q.Page, q.PageSize)
}

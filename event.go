package tradehistory

import (
	"cmp"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
)

// EventType classifies a ledger entry.
type EventType string

const (
	EventTrade      EventType = "trade"
	EventTransfer   EventType = "transfer"
	EventDividend   EventType = "dividend"
	EventInterest   EventType = "interest"
	EventFee        EventType = "fee"
	EventDeposit    EventType = "deposit"
	EventWithdrawal EventType = "withdrawal"
	EventTax        EventType = "tax"
	EventOther      EventType = "other"
)

// Side is the direction of a trade or transfer as written by the broker.
type Side string

const (
	SideTransferIn  Side = "TRANSFER_IN"
	SideTransferOut Side = "TRANSFER_OUT"
)

var positiveSides = map[Side]bool{
	"BUY": true, "BUY_TO_OPEN": true, "BUY_TO_CLOSE": true, "BUY_TO_COVER": true,
	"BTO": true, "BTC": true, SideTransferIn: true,
}

var negativeSides = map[Side]bool{
	"SELL": true, "SELL_SHORT": true, "SELL_TO_OPEN": true, "SELL_TO_CLOSE": true,
	"SOLD": true, "STO": true, "STC": true, SideTransferOut: true,
}

// tradeTypes maps event types that are trades in disguise to their side.
var tradeTypes = map[EventType]Side{"buy": "BUY", "sell": "SELL"}

// NullQuantity is a Quantity that may be absent, as on cash-only events.
type NullQuantity struct {
	Quantity
	Valid bool
}

func (n NullQuantity) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.Quantity.MarshalJSON()
}

// TradeEvent is an immutable ledger entry.
type TradeEvent struct {
	ID          string
	TradeDate   date.Date
	SettleDate  date.Date
	Account     string
	Institution string
	Type        EventType
	Side        Side
	Quantity    NullQuantity
	Price       NullMoney
	Gross       NullMoney // signed from the account's cash point of view
	Commission  Money
	Fees        Money
	Currency    string
	Symbol      string // normalized, empty for cash-only events
	AssetType   string
}

// SignedQuantity returns the quantity signed by the side: positive for
// acquisitions, negative for disposals. Unknown sides keep the source sign.
func (e TradeEvent) SignedQuantity() Quantity {
	q := e.Quantity.Quantity
	switch {
	case positiveSides[e.Side]:
		return q.Abs()
	case negativeSides[e.Side]:
		return q.Abs().Neg()
	}
	return q
}

// FeeTotal returns commission plus fees.
func (e TradeEvent) FeeTotal() Money { return e.Commission.Add(e.Fees) }

// IsTransfer reports whether the event moves a position between accounts.
func (e TradeEvent) IsTransfer() bool {
	return e.Type == EventTransfer || e.Side == SideTransferIn || e.Side == SideTransferOut
}

// affectsPosition reports whether the event takes part in lot matching.
func (e TradeEvent) affectsPosition() bool {
	if e.Symbol == "" || !e.Quantity.Valid || e.Quantity.nearlyZero() {
		return false
	}
	return e.Type == EventTrade || e.IsTransfer() || positiveSides[e.Side] || negativeSides[e.Side]
}

// UnitPrice returns the price, or the price implied by |gross/quantity|.
func (e TradeEvent) UnitPrice() NullMoney {
	if e.Price.Valid {
		return e.Price
	}
	if e.Gross.Valid && e.Quantity.Valid && !e.Quantity.IsZero() {
		return Money{value: e.Gross.value.Div(e.Quantity.value).Abs(), cur: e.Currency}.Null()
	}
	return Unknown(e.Currency)
}

// sameDayRank orders transfers out before trades and transfers in after them.
func (e TradeEvent) sameDayRank() int {
	if e.IsTransfer() {
		switch e.Side {
		case SideTransferOut:
			return 0
		case SideTransferIn:
			return 2
		}
	}
	return 1
}

// CompareEvents is the deterministic ledger order: trade date, then same-day
// rank, then identity.
func CompareEvents(a, b TradeEvent) int {
	if c := a.TradeDate.Compare(b.TradeDate); c != 0 {
		return c
	}
	if c := cmp.Compare(a.sameDayRank(), b.sameDayRank()); c != 0 {
		return c
	}
	return CompareIDs(a.ID, b.ID)
}

// CompareIDs compares identities numerically when both are integers.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(a, b)
}

// flexID accepts an identity written as a JSON number or string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = flexID(strings.TrimSpace(s))
	return nil
}

// eventWire is the JSON vocabulary of a TradeEvent.
type eventWire struct {
	ID          flexID           `json:"event_id"`
	TradeDate   date.Date        `json:"trade_date"`
	SettleDate  date.Date        `json:"settle_date"`
	Account     string           `json:"account_id"`
	Institution string           `json:"institution"`
	Type        string           `json:"event_type"`
	Side        *string          `json:"side"`
	Quantity    *decimal.Decimal `json:"quantity"`
	Price       NullMoney        `json:"price"`
	Gross       NullMoney        `json:"gross_amount"`
	Commission  *decimal.Decimal `json:"commission"`
	Fees        *decimal.Decimal `json:"fees"`
	Currency    string           `json:"currency"`
	Symbol      *string          `json:"symbol"`
	AssetType   string           `json:"asset_type"`
}

// UnmarshalJSON decodes and normalizes a ledger entry.
func (e *TradeEvent) UnmarshalJSON(b []byte) error {
	var w eventWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = w.event()
	return nil
}

func (w eventWire) event() TradeEvent {
	ccy := NormalizeCurrency(w.Currency)
	e := TradeEvent{
		ID:          string(w.ID),
		TradeDate:   w.TradeDate,
		SettleDate:  w.SettleDate,
		Account:     strings.TrimSpace(w.Account),
		Institution: strings.TrimSpace(w.Institution),
		Type:        EventType(strings.ToLower(strings.TrimSpace(w.Type))),
		Price:       w.Price.in(ccy),
		Gross:       w.Gross.in(ccy),
		Commission:  M(decimal.Zero, ccy),
		Fees:        M(decimal.Zero, ccy),
		Currency:    ccy,
		AssetType:   strings.ToLower(strings.TrimSpace(w.AssetType)),
	}
	if w.Side != nil {
		e.Side = Side(strings.ToUpper(strings.TrimSpace(*w.Side)))
	}
	// some brokers write the direction as the event type.
	if side, ok := tradeTypes[e.Type]; ok {
		e.Type = EventTrade
		if e.Side == "" {
			e.Side = side
		}
	}
	if w.Quantity != nil {
		e.Quantity = NullQuantity{Quantity: Q(*w.Quantity), Valid: true}
	}
	if w.Commission != nil {
		e.Commission = M(*w.Commission, ccy)
	}
	if w.Fees != nil {
		e.Fees = M(*w.Fees, ccy)
	}
	if w.Symbol != nil {
		e.Symbol = NormalizeSymbol(*w.Symbol)
	}
	if e.Symbol != "" && e.AssetType == "" {
		e.AssetType = "equity"
	}
	return e
}

// InCurrency returns e with every amount expressed in currency.
func (e TradeEvent) InCurrency(currency string) TradeEvent {
	e.Currency = NormalizeCurrency(currency)
	e.Price = e.Price.in(e.Currency)
	e.Gross = e.Gross.in(e.Currency)
	e.Commission = e.Commission.In(e.Currency)
	e.Fees = e.Fees.In(e.Currency)
	return e
}

// MarshalJSON writes the event in the stable wire vocabulary.
func (e TradeEvent) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("event_id", e.ID)
	w.Append("trade_date", e.TradeDate)
	w.Append("settle_date", e.SettleDate)
	w.Append("account_id", e.Account)
	w.Append("institution", e.Institution)
	w.Append("event_type", e.Type)
	w.Nullable("side", string(e.Side))
	w.Append("quantity", e.Quantity)
	w.Append("price", e.Price)
	w.Append("gross_amount", e.Gross)
	w.Append("commission", e.Commission)
	w.Append("fees", e.Fees)
	w.Append("currency", e.Currency)
	w.Nullable("symbol", e.Symbol)
	w.Nullable("asset_type", e.AssetType)
	return w.MarshalJSON()
}

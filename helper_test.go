package tradehistory

import (
	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
)

// CAD is a helper for test to create canadian money from const
func CAD(v float64) Money { return M(v, "CAD") }

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// dec parses a decimal literal, panicking on error.
func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// trade builds a priced trade event in CAD.
func trade(id, on, account, side, symbol string, qty, price float64) TradeEvent {
	return TradeEvent{
		ID:          id,
		TradeDate:   date.MustParse(on),
		Account:     account,
		Institution: "Broker",
		Type:        EventTrade,
		Side:        Side(side),
		Quantity:    NullQuantity{Quantity: Q(qty), Valid: true},
		Price:       NM(price, "CAD"),
		Gross:       Unknown("CAD"),
		Commission:  CAD(0),
		Fees:        CAD(0),
		Currency:    "CAD",
		Symbol:      symbol,
		AssetType:   "equity",
	}
}

// transfer builds an unpriced transfer leg in CAD.
func transfer(id, on, account string, side Side, symbol string, qty float64) TradeEvent {
	e := trade(id, on, account, string(side), symbol, qty, 0)
	e.Type = EventTransfer
	e.Price = Unknown("CAD")
	return e
}

// cash builds a cash-only event in CAD with a signed gross amount.
func cash(id, on, account string, typ EventType, gross float64) TradeEvent {
	return TradeEvent{
		ID:          id,
		TradeDate:   date.MustParse(on),
		Account:     account,
		Institution: "Broker",
		Type:        typ,
		Price:       Unknown("CAD"),
		Gross:       NM(gross, "CAD"),
		Commission:  CAD(0),
		Fees:        CAD(0),
		Currency:    "CAD",
	}
}

// withFees sets the commission of e.
func withFees(e TradeEvent, fee float64) TradeEvent {
	e.Commission = M(fee, e.Currency)
	return e
}

package tradehistory

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money represents a monetary value in a given currency.
type Money struct {
	value decimal.Decimal // as major unit value
	cur   string
}

func M[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T, currency string) Money {
	return Money{value: newDecimal(value), cur: NormalizeCurrency(currency)}
}

// NormalizeCurrency upper cases and trims a currency code.
func NormalizeCurrency(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// KnownCurrency reports whether code is an ISO 4217 currency known to go-money.
func KnownCurrency(code string) bool {
	return money.GetCurrency(NormalizeCurrency(code)) != nil
}

// currency returns the money's currency
func (m Money) currency() money.Currency {
	// to get a never nil currency I need to call the Money constructor
	return *money.New(0, m.cur).Currency()
}

// String returns the string representation of the money value.
func (m Money) String() string {
	cur := m.currency()
	dec := m.value.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(dec.IntPart())
}

func (m Money) Currency() string                { return m.cur }
func (m Money) Decimal() decimal.Decimal        { return m.value }
func (m Money) Equal(n Money) bool              { return m.value.Equal(n.value) && m.cur == n.cur }
func (m Money) IsZero() bool                    { return m.value.IsZero() }
func (m Money) IsPositive() bool                { return m.value.IsPositive() }
func (m Money) IsNegative() bool                { return m.value.IsNegative() }
func (m Money) LessThan(amount Money) bool      { return m.value.LessThan(amount.value) }
func (m Money) GreaterThan(n Money) bool        { return m.value.GreaterThan(n.value) }
func (m Money) Neg() Money                      { return Money{value: m.value.Neg(), cur: m.cur} }
func (m Money) Abs() Money                      { return Money{value: m.value.Abs(), cur: m.cur} }
func (m Money) Mul(n Quantity) Money            { return Money{value: m.value.Mul(n.value), cur: m.cur} }
func (m Money) Div(n Quantity) Money            { return Money{value: m.value.Div(n.value), cur: m.cur} }
func (m Money) DivPrice(n Money) Quantity       { return Quantity{value: m.value.Div(n.value)} }
func (m Money) Round() Money                    { return Money{value: m.value.Round(int32(m.currency().Fraction)), cur: m.cur} }
func (m Money) InexactFloat64() float64         { return m.value.InexactFloat64() }
func (m Money) Null() NullMoney                 { return NullMoney{Money: m, Valid: true} }
func (m Money) In(currency string) Money        { return Money{value: m.value, cur: NormalizeCurrency(currency)} }
func (m Money) scale(rate decimal.Decimal) Money { return Money{value: m.value.Mul(rate), cur: m.cur} }

// binary operators.
func (m Money) Add(n Money) Money { return Money{value: m.value.Add(n.value), cur: cur(m, n)} }
func (m Money) Sub(n Money) Money { return Money{value: m.value.Sub(n.value), cur: cur(m, n)} }

// makes the "" currency totally weak.
func cur(A, B Money) string {
	if A.cur == "" {
		return B.cur
	}
	if B.cur == "" {
		return A.cur
	}
	if A.cur != B.cur {
		panic("currency mismatch " + A.cur + "!=" + B.cur)
	}
	return A.cur
}

// MarshalJSON writes the plain amount: the currency travels in sibling fields
// of the wire vocabulary.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.value.String()), nil
}

// NullMoney is a Money that may be unknown.
//
// An invalid NullMoney is "unknown" and is never the same as a known zero.
type NullMoney struct {
	Money
	Valid bool
}

// Unknown returns an invalid NullMoney in the given currency.
func Unknown(currency string) NullMoney {
	return NullMoney{Money: Money{cur: NormalizeCurrency(currency)}}
}

// NM returns a valid NullMoney.
func NM[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T, currency string) NullMoney {
	return M(value, currency).Null()
}

// Ptr returns the value as a *decimal.Decimal, nil when unknown.
func (n NullMoney) Ptr() *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := n.value
	return &v
}

// AddKnown adds n and x when both are known, else returns unknown.
func (n NullMoney) AddKnown(x NullMoney) NullMoney {
	if !n.Valid || !x.Valid {
		return Unknown(n.cur)
	}
	return n.Money.Add(x.Money).Null()
}

// SubKnown subtracts x from n when both are known, else returns unknown.
func (n NullMoney) SubKnown(x NullMoney) NullMoney {
	if !n.Valid || !x.Valid {
		return Unknown(n.cur)
	}
	return n.Money.Sub(x.Money).Null()
}

func (n NullMoney) String() string {
	if !n.Valid {
		return "-"
	}
	return n.Money.String()
}

func (n NullMoney) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.Money.MarshalJSON()
}

// UnmarshalJSON decodes a plain number or null. The currency is left empty
// and must be set by the enclosing record.
func (n *NullMoney) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = NullMoney{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid amount %s: %w", b, err)
	}
	*n = NullMoney{Money: Money{value: d}, Valid: true}
	return nil
}

// in returns n re-labelled in currency, keeping its validity.
func (n NullMoney) in(currency string) NullMoney {
	n.cur = NormalizeCurrency(currency)
	return n
}

package tradehistory

import "github.com/shopspring/decimal"

// newDecimal is a convenient factory for decimal.Decimal
func newDecimal[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	default:
		panic("unsupported type")
	}
}

// quantityEpsilon is the residual under which a position is considered flat.
var quantityEpsilon = decimal.New(1, -9)

// Quantity is a number of shares or units.
type Quantity struct {
	value decimal.Decimal
}

func Q[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) Quantity {
	return Quantity{value: newDecimal(value)}
}

func (t Quantity) Decimal() decimal.Decimal            { return t.value }
func (t Quantity) Equal(p Quantity) bool               { return t.value.Equal(p.value) }
func (t Quantity) LessThan(quantity Quantity) bool     { return t.value.LessThan(quantity.value) }
func (t Quantity) Div(p Quantity) Quantity             { return Quantity{value: t.value.Div(p.value)} }
func (t Quantity) Mul(p Quantity) Quantity             { return Quantity{value: t.value.Mul(p.value)} }
func (t Quantity) Add(p Quantity) Quantity             { return Quantity{value: t.value.Add(p.value)} }
func (t Quantity) Sub(p Quantity) Quantity             { return Quantity{value: t.value.Sub(p.value)} }
func (t Quantity) Abs() Quantity                       { return Quantity{value: t.value.Abs()} }
func (t Quantity) Neg() Quantity                       { return Quantity{value: t.value.Neg()} }
func (t Quantity) GreaterThan(p Quantity) bool         { return t.value.GreaterThan(p.value) }
func (t Quantity) IsNegative() bool                    { return t.value.IsNegative() }
func (t Quantity) IsPositive() bool                    { return t.value.IsPositive() }
func (t Quantity) IsZero() bool                        { return t.value.IsZero() }
func (t Quantity) Min(p Quantity) Quantity             { return Quantity{value: decimal.Min(t.value, p.value)} }
func (t Quantity) InexactFloat64() float64             { return t.value.InexactFloat64() }
func (t Quantity) String() string                      { return t.value.String() }
func (t Quantity) nearlyZero() bool                    { return t.value.Abs().LessThan(quantityEpsilon) }
func (t Quantity) withinRel(p Quantity, rel float64) bool {
	tol := decimal.Max(t.value.Abs(), p.value.Abs()).Mul(decimal.NewFromFloat(rel))
	tol = decimal.Max(tol, decimal.NewFromFloat(rel))
	return t.value.Sub(p.value).Abs().LessThanOrEqual(tol)
}

// MarshalJSON implements the json.Marshaler interface.
func (t Quantity) MarshalJSON() ([]byte, error) {
	return []byte(t.value.String()), nil
}
func (t *Quantity) UnmarshalJSON(decimalBytes []byte) error {
	return t.value.UnmarshalJSON(decimalBytes)
}

package tradehistory

import (
	"testing"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usdcad(on string, rate float64) Rate {
	return Rate{Base: "USD", Quote: "CAD", Date: date.MustParse(on), Rate: decimal.NewFromFloat(rate)}
}

func TestConvertIdentity(t *testing.T) {
	c := NewConverter(NewRateTable())
	got, err := c.Convert(M(12.5, "CAD"), date.MustParse("2024-01-01"), "cad")
	require.NoError(t, err)
	assert.True(t, got.Equal(M(12.5, "CAD")))
}

func TestConvertExactDate(t *testing.T) {
	c := NewConverter(NewRateTable(usdcad("2024-01-10", 1.35)))

	got, err := c.Convert(M(100, "USD"), date.MustParse("2024-01-10"), "CAD")
	require.NoError(t, err)
	assert.Equal(t, "135", got.Decimal().String())
	assert.Equal(t, "CAD", got.Currency())

	_, err = c.Convert(M(100, "USD"), date.MustParse("2024-01-11"), "CAD")
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestConvertAsOf(t *testing.T) {
	c := NewConverter(NewRateTable(usdcad("2024-01-10", 1.25), usdcad("2024-01-20", 1.5)))

	tests := []struct {
		name    string
		amount  Money
		on      string
		to      string
		want    string
		wantErr bool
	}{
		{"same day", M(100, "USD"), "2024-01-10", "CAD", "125", false},
		{"nearest prior", M(100, "USD"), "2024-01-15", "CAD", "125", false},
		{"latest", M(100, "USD"), "2024-03-01", "CAD", "150", false},
		{"inverse", M(125, "CAD"), "2024-01-15", "USD", "100", false},
		{"before first rate", M(100, "USD"), "2024-01-01", "CAD", "", true},
		{"unknown pair", M(100, "EUR"), "2024-01-15", "CAD", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ConvertAsOf(tt.amount, date.MustParse(tt.on), tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRateUnavailable)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Decimal().Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got.Decimal(), tt.want)
		})
	}
}

func TestConvertNullPropagation(t *testing.T) {
	c := NewConverter(NewRateTable(usdcad("2024-01-10", 1.25)))
	on := date.MustParse("2024-02-01")

	assert.False(t, c.ConvertNull(Unknown("USD"), on, "CAD").Valid, "null must stay null")
	assert.False(t, c.ConvertNull(NM(10, "EUR"), on, "CAD").Valid, "missing rate must give null")

	zero := c.ConvertNull(NM(0, "USD"), on, "CAD")
	assert.True(t, zero.Valid, "a known zero stays known")
	assert.True(t, zero.IsZero())
}

func TestRateTableVersion(t *testing.T) {
	tbl := NewRateTable()
	v := tbl.Version()
	tbl.Add(usdcad("2024-01-10", 1.25))
	assert.Greater(t, tbl.Version(), v)
	assert.Equal(t, 1, tbl.Len())
}

package tradehistory

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/tradehistory/date"
	"github.com/shopspring/decimal"
)

// GroupBy is the grouping key of an asset valuation.
type GroupBy string

const (
	GroupTotal       GroupBy = "total"
	GroupAccount     GroupBy = "account"
	GroupInstitution GroupBy = "institution"
)

// ParseGroupBy parses a grouping key. The empty string means GroupTotal.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GroupTotal, nil
	case GroupTotal, GroupAccount, GroupInstitution:
		return g, nil
	}
	return "", fmt.Errorf("unknown group %q, want total, account or institution", s)
}

// Key returns the group a position belongs to.
func (g GroupBy) Key(p Position) string {
	switch g {
	case GroupAccount:
		return p.Institution + " | " + p.Account
	case GroupInstitution:
		return p.Institution
	}
	return "total"
}

// ValuedPosition is a Position with its values converted to the display currency.
type ValuedPosition struct {
	Position
	MarketValueDisplay  NullMoney `json:"market_value_display"`
	CostBasisDisplay    NullMoney `json:"cost_basis_display"`
	UnrealizedPLDisplay NullMoney `json:"unrealized_pl_display"`
}

// AssetGroup is a set of positions sharing a group key.
//
// MarketValueDisplay is exactly the sum of the members' known display values;
// unpriced members are counted in Unpriced and excluded from sums.
type AssetGroup struct {
	Key                 string           `json:"group_key"`
	Members             []ValuedPosition `json:"positions"`
	MarketValueNative   map[string]Money `json:"market_value_native"`
	MarketValueDisplay  Money            `json:"market_value_display"`
	CostBasisDisplay    NullMoney        `json:"cost_basis_display"`
	UnrealizedPLDisplay NullMoney        `json:"unrealized_pl_display"`
	Unpriced            int              `json:"unpriced"`
}

// Valuation is the result of Aggregate. Total is the sum over Groups.
type Valuation struct {
	Display string       `json:"display_currency"`
	Date    date.Date    `json:"date"`
	GroupBy GroupBy      `json:"group_by"`
	Groups  []AssetGroup `json:"groups"`
	Total   Money        `json:"total_display"`
}

// Aggregate groups positions and converts their values to the display
// currency with the rate as of the valuation day.
//
// A priced position whose value cannot be converted makes the total
// impossible: Aggregate then fails with ErrRateUnavailable. Cost basis and
// unrealized P&L degrade to null instead.
func Aggregate(positions []Position, by GroupBy, display string, on date.Date, conv Converter) (Valuation, error) {
	display = NormalizeCurrency(display)
	v := Valuation{Display: display, Date: on, GroupBy: by, Total: M(0, display)}

	index := make(map[string]int)
	for _, p := range positions {
		vp := ValuedPosition{
			Position:            p,
			MarketValueDisplay:  Unknown(display),
			CostBasisDisplay:    conv.ConvertNull(p.CostBasis.Null(), on, display),
			UnrealizedPLDisplay: conv.ConvertNull(p.UnrealizedPL, on, display),
		}
		if p.MarketValue.Valid {
			m, err := conv.ConvertAsOf(p.MarketValue.Money, on, display)
			if err != nil {
				return Valuation{}, fmt.Errorf("valuing %s in %s: %w", p.Symbol, p.Account, err)
			}
			vp.MarketValueDisplay = m.Null()
		}

		key := by.Key(p)
		i, ok := index[key]
		if !ok {
			i = len(v.Groups)
			index[key] = i
			v.Groups = append(v.Groups, AssetGroup{
				Key:                 key,
				MarketValueNative:   make(map[string]Money),
				MarketValueDisplay:  M(0, display),
				CostBasisDisplay:    Unknown(display),
				UnrealizedPLDisplay: Unknown(display),
			})
		}
		g := &v.Groups[i]
		g.Members = append(g.Members, vp)
		if !vp.MarketValueDisplay.Valid {
			g.Unpriced++
		} else {
			g.MarketValueDisplay = g.MarketValueDisplay.Add(vp.MarketValueDisplay.Money)
			native, ok := g.MarketValueNative[p.Currency]
			if !ok {
				native = M(0, p.Currency)
			}
			g.MarketValueNative[p.Currency] = native.Add(p.MarketValue.Money)
		}
		g.CostBasisDisplay = sumKnown(g.CostBasisDisplay, vp.CostBasisDisplay)
		g.UnrealizedPLDisplay = sumKnown(g.UnrealizedPLDisplay, vp.UnrealizedPLDisplay)
	}

	slices.SortFunc(v.Groups, func(a, b AssetGroup) int { return strings.Compare(a.Key, b.Key) })
	for _, g := range v.Groups {
		v.Total = v.Total.Add(g.MarketValueDisplay)
	}
	return v, nil
}

// sumKnown adds the known values: it is unknown only when both are.
func sumKnown(acc, x NullMoney) NullMoney {
	switch {
	case !x.Valid:
		return acc
	case !acc.Valid:
		return x
	}
	return acc.Money.Add(x.Money).Null()
}

// SectorRow is the share of one resolved sector in a valuation.
type SectorRow struct {
	Sector     string  `json:"sector"`
	Value      Money   `json:"value_display"`
	Percentage float64 `json:"percentage"`
	Positions  int     `json:"positions"`
}

// Sectors buckets priced positions by their resolved sector. Rows are
// sorted by value, largest first, then by name. Percentages sum to 100 when
// the total is positive; an empty valuation yields no rows.
func Sectors(positions []Position, display string, on date.Date, conv Converter) ([]SectorRow, Money, error) {
	display = NormalizeCurrency(display)
	total := M(0, display)
	rows := []SectorRow{}
	index := make(map[string]int)
	for _, p := range positions {
		if !p.MarketValue.Valid {
			continue
		}
		m, err := conv.ConvertAsOf(p.MarketValue.Money, on, display)
		if err != nil {
			return nil, Money{}, fmt.Errorf("valuing %s in %s: %w", p.Symbol, p.Account, err)
		}
		sector := p.Sector
		if strings.TrimSpace(sector) == "" {
			sector = UnknownSector
		}
		i, ok := index[sector]
		if !ok {
			i = len(rows)
			index[sector] = i
			rows = append(rows, SectorRow{Sector: sector, Value: M(0, display)})
		}
		rows[i].Value = rows[i].Value.Add(m)
		rows[i].Positions++
		total = total.Add(m)
	}
	if total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i := range rows {
			rows[i].Percentage = rows[i].Value.Decimal().Div(total.Decimal()).Mul(hundred).InexactFloat64()
		}
	}
	slices.SortFunc(rows, func(a, b SectorRow) int {
		return cmp.Or(b.Value.Decimal().Cmp(a.Value.Decimal()), strings.Compare(a.Sector, b.Sector))
	})
	return rows, total, nil
}

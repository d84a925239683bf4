package tradehistory

import (
	"slices"
)

// DefaultTransferWindow is the maximum number of days between the outgoing
// and incoming legs of an account-to-account transfer.
const DefaultTransferWindow = 10

// transferQuantityTolerance is the relative difference allowed between the
// quantities of the two legs of a transfer.
const transferQuantityTolerance = 0.001

// LinkTransfers pairs incoming transfer legs with outgoing ones so the lots
// and their cost basis follow the shares between accounts.
//
// Two legs are linked when they have the same symbol and currency, belong to
// different accounts, are at most window days apart and carry the same
// quantity within 0.1%. Each outgoing leg is linked at most once, to the
// incoming leg closest in time.
//
// It returns a map from incoming event id to outgoing event id.
func LinkTransfers(events []TradeEvent, window int) map[string]string {
	var ins, outs []TradeEvent
	for _, e := range events {
		if e.Symbol == "" || !e.Quantity.Valid {
			continue
		}
		switch e.Side {
		case SideTransferOut:
			outs = append(outs, e)
		case SideTransferIn:
			ins = append(ins, e)
		}
	}
	slices.SortFunc(ins, CompareEvents)

	links := make(map[string]string)
	used := make(map[string]bool)
	for _, in := range ins {
		var best *TradeEvent
		bestDays := window + 1
		for i := range outs {
			out := &outs[i]
			if used[out.ID] || out.Account == in.Account ||
				out.Symbol != in.Symbol || out.Currency != in.Currency {
				continue
			}
			days := out.TradeDate.DaysBetween(in.TradeDate)
			if days < 0 {
				days = -days
			}
			if days > window {
				continue
			}
			if !out.Quantity.Abs().withinRel(in.Quantity.Abs(), transferQuantityTolerance) {
				continue
			}
			if days < bestDays || (days == bestDays && CompareEvents(*out, *best) < 0) {
				best, bestDays = out, days
			}
		}
		if best != nil {
			used[best.ID] = true
			links[in.ID] = best.ID
		}
	}
	return links
}

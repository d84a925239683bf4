package tradehistory

import "fmt"

// CostBasisMethod defines the method for calculating cost basis.
type CostBasisMethod int

const (
	// FIFO (First-In, First-Out) closes the oldest open lots first.
	FIFO CostBasisMethod = iota
	// AverageCost closes lots at the average cost of all open lots of the position.
	AverageCost
)

func (m CostBasisMethod) String() string {
	switch m {
	case AverageCost:
		return "average_cost"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseCostBasisMethod parses a string into a CostBasisMethod.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch s {
	case "average", "average_cost":
		return AverageCost, nil
	case "fifo", "":
		return FIFO, nil
	default:
		return 0, fmt.Errorf("unknown cost basis method: %q", s)
	}
}

// Set implements flag.Value.
func (m *CostBasisMethod) Set(s string) (err error) {
	*m, err = ParseCostBasisMethod(s)
	return err
}

// Decode implements envconfig.Decoder.
func (m *CostBasisMethod) Decode(s string) error { return m.Set(s) }

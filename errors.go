package tradehistory

import "errors"

var (
	// ErrRateUnavailable is returned when no exchange rate exists for a pair and date.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrDataIntegrity flags a closing quantity that exceeds the open quantity.
	// It is never returned by the matcher; it only qualifies a Warning.
	ErrDataIntegrity = errors.New("data integrity")

	// ErrMissingStatementMetric flags a statement metric absent for a reconciliation row.
	// MonthlyRow.Err wraps it for rows with the missing_snapshot status.
	ErrMissingStatementMetric = errors.New("missing statement metric")

	// ErrNotFound is returned by admin operations on an unknown symbol or account.
	ErrNotFound = errors.New("not found")

	// ErrNoData is returned when a request has no event data at all.
	ErrNoData = errors.New("no event data")
)

// Warning is a per-record anomaly: the record is degraded, the batch goes on.
type Warning struct {
	Kind    error  `json:"-"`
	EventID string `json:"event_id,omitempty"`
	Account string `json:"account_id,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}

func (w Warning) Error() string {
	if w.Kind == nil {
		return w.Message
	}
	return w.Kind.Error() + ": " + w.Message
}

// Unwrap makes errors.Is(w, ErrDataIntegrity) work.
func (w Warning) Unwrap() error { return w.Kind }

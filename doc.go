// Package tradehistory derives reporting views from a ledger of brokerage
// trade and cash events and from the facts parsed out of brokerage
// statements.
//
// The core functionalities include:
//   - Lot Matching: closing events consume previously opened lots in FIFO
//     (or average cost) order to compute realized profit and loss, with
//     transfers carrying lots and their cost between accounts.
//   - Valuation: open positions are priced, converted to a display currency
//     and grouped by account, institution or sector.
//   - Reconciliation: for each month, account and native currency the cash
//     derived from the ledger is compared with the cash reported by the
//     statement, keeping every contributing statement line for drill-down.
//   - Symbol Resolution: raw tickers resolve to a market symbol and a sector
//     along a configurable chain of sources, user overrides first.
//   - Currency Conversion: a versioned rate table converts amounts, and
//     unknown amounts stay unknown instead of turning into zeros.
//
// Every view is a pure function of an immutable Book, so views can be
// computed concurrently. This package is the foundational logic of the `th`
// command-line tool.
package tradehistory

package exchange

import "errors"

// Sentinel errors for the two failure classes callers care about.
// Market-data failures are transient and callers skip work until the
// next cycle; execution failures mean an order was rejected or never
// confirmed and the caller must not assume any fill happened.
var (
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrExecution       = errors.New("order execution failed")
)

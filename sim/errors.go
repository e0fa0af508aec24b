package sim

import "errors"

// Validation errors surface synchronously to the caller of a mutating
// operation and are never retried. Persistence failures are not errors at
// this level: the bridge retains the trade and retries on the next snapshot
// cycle.
var (
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrInstrumentDisabled = errors.New("instrument disabled for direction")
	ErrInvalidTarget      = errors.New("target amount must be positive")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeAlreadyClosed = errors.New("trade is already closed")
)

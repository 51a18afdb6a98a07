package trading

import "errors"

var (
	// ErrValidation rejects a command before sequencing, with no side
	// effects.
	ErrValidation = errors.New("order validation failed")

	// ErrInsufficientFunds means the pre-sequencing freeze failed; no
	// side effects were applied.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrQueueFull is returned by the non-blocking submit path after
	// the already-applied fund freeze has been compensated.
	ErrQueueFull = errors.New("command pipeline is full")

	// ErrOrderNotFound is returned by the query surface for unknown
	// order ids.
	ErrOrderNotFound = errors.New("order not found")
)

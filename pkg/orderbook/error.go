package orderbook

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
)

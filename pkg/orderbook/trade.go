package orderbook

import "github.com/shopspring/decimal"

// Trade is created once per match event and never mutated. Price is
// always the maker order's price.
type Trade struct {
	ID          int64
	Symbol      string
	BuyOrderID  int64
	SellOrderID int64
	BuyUserID   int64
	SellUserID  int64
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   int64
}

package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

type OrderType string

const (
	LIMIT     OrderType = "LIMIT"
	MARKET    OrderType = "MARKET"
	IOC       OrderType = "IOC"
	FOK       OrderType = "FOK"
	POST_ONLY OrderType = "POST_ONLY"
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Order is owned by the book it belongs to and mutated only by the
// matching consumer. Filled plus Remaining always equals Quantity.
type Order struct {
	ID        int64
	Symbol    string
	UserID    int64
	Side      Side
	Type      OrderType
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Status    OrderStatus
	Timestamp int64
	Sequence  int64
}

func NewOrder(id int64, symbol string, userID int64, side Side, orderType OrderType,
	price, quantity decimal.Decimal) *Order {
	return &Order{
		ID:        id,
		Symbol:    symbol,
		UserID:    userID,
		Side:      side,
		Type:      orderType,
		Price:     price,
		Quantity:  quantity,
		Filled:    decimal.Zero,
		Remaining: quantity,
		Status:    StatusNew,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Fill applies a trade quantity and derives the new status.
func (o *Order) Fill(quantity decimal.Decimal) {
	o.Filled = o.Filled.Add(quantity)
	o.Remaining = o.Quantity.Sub(o.Filled)

	if o.IsFullyFilled() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

func (o *Order) IsFullyFilled() bool {
	return o.Remaining.Sign() == 0
}

func (o *Order) Cancel() {
	o.Status = StatusCancelled
}

func (o *Order) Reject() {
	o.Status = StatusRejected
}

// IsActive reports whether the order can still rest in or mutate the book.
func (o *Order) IsActive() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// clone copies the order so readers outside the book lock never share
// fields the matching consumer keeps mutating.
func (o *Order) clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

package orderbook

import (
	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

// PriceLevel keeps the FIFO of resting orders at one price and their
// aggregate remaining quantity.
type PriceLevel struct {
	price         decimal.Decimal
	totalQuantity decimal.Decimal
	orders        deque.Deque[*Order]
}

func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		price:         price,
		totalQuantity: decimal.Zero,
	}
}

func (pl *PriceLevel) Price() decimal.Decimal {
	return pl.price
}

func (pl *PriceLevel) TotalQuantity() decimal.Decimal {
	return pl.totalQuantity
}

func (pl *PriceLevel) AddOrder(order *Order) {
	pl.orders.PushBack(order)
	pl.totalQuantity = pl.totalQuantity.Add(order.Remaining)
}

func (pl *PriceLevel) RemoveOrder(order *Order) bool {
	i := pl.orders.Index(func(o *Order) bool { return o.ID == order.ID })
	if i < 0 {
		return false
	}
	pl.orders.Remove(i)
	pl.totalQuantity = pl.totalQuantity.Sub(order.Remaining)
	return true
}

// PeekFirst returns the oldest order at this level without removing it.
func (pl *PriceLevel) PeekFirst() *Order {
	if pl.orders.Len() == 0 {
		return nil
	}
	return pl.orders.Front()
}

// PollFirst removes and returns the oldest order at this level.
func (pl *PriceLevel) PollFirst() *Order {
	if pl.orders.Len() == 0 {
		return nil
	}
	order := pl.orders.PopFront()
	pl.totalQuantity = pl.totalQuantity.Sub(order.Remaining)
	return order
}

// UpdateQuantity adjusts the aggregate after a member order's
// remaining quantity changed from old to new.
func (pl *PriceLevel) UpdateQuantity(old, new decimal.Decimal) {
	pl.totalQuantity = pl.totalQuantity.Sub(old).Add(new)
}

func (pl *PriceLevel) IsEmpty() bool {
	return pl.orders.Len() == 0
}

func (pl *PriceLevel) OrderCount() int {
	return pl.orders.Len()
}

// Orders returns the level's orders oldest first.
func (pl *PriceLevel) Orders() []*Order {
	out := make([]*Order, 0, pl.orders.Len())
	for i := 0; i < pl.orders.Len(); i++ {
		out = append(out, pl.orders.At(i))
	}
	return out
}

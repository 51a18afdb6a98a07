package engine

import (
	"context"

	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// OrderUpdate is the order-state change event published after the
// consumer mutates an order.
type OrderUpdate struct {
	OrderID   int64                 `json:"order_id"`
	Symbol    string                `json:"symbol"`
	UserID    int64                 `json:"user_id"`
	Status    orderbook.OrderStatus `json:"status"`
	Filled    decimal.Decimal       `json:"filled"`
	Remaining decimal.Decimal       `json:"remaining"`
}

// EventSink receives the engine's domain events. Implementations are
// wired in after construction; the engine never depends on them
// directly.
type EventSink interface {
	PublishOrderUpdate(ctx context.Context, update OrderUpdate)
	PublishTrade(ctx context.Context, trade *orderbook.Trade)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) PublishOrderUpdate(context.Context, OrderUpdate) {}

func (NoopSink) PublishTrade(context.Context, *orderbook.Trade) {}

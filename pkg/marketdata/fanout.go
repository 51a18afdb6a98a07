package marketdata

import (
	"context"

	"github.com/TaXueWWL/matchEngine-x/pkg/engine"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
)

// Fanout delivers each engine event to every configured sink.
type Fanout []engine.EventSink

func (f Fanout) PublishOrderUpdate(ctx context.Context, update engine.OrderUpdate) {
	for _, sink := range f {
		sink.PublishOrderUpdate(ctx, update)
	}
}

func (f Fanout) PublishTrade(ctx context.Context, trade *orderbook.Trade) {
	for _, sink := range f {
		sink.PublishTrade(ctx, trade)
	}
}

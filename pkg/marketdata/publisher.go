package marketdata

import (
	"context"
	"strconv"

	"github.com/TaXueWWL/matchEngine-x/config"
	"github.com/TaXueWWL/matchEngine-x/pkg/engine"
	"github.com/TaXueWWL/matchEngine-x/pkg/kafkawrapper"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"go.uber.org/zap"
)

// Publisher forwards the engine's domain events to Kafka topics for
// downstream consumers (candle aggregation, push fan-out, archival).
type Publisher struct {
	producer         *kafkawrapper.Producer
	tradeTopic       string
	orderUpdateTopic string
	log              *logging.Logger
}

func NewPublisher(cfg *config.KafkaConfig, log *logging.Logger) *Publisher {
	return &Publisher{
		producer: kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers: cfg.Brokers,
		}),
		tradeTopic:       cfg.TradeTopic,
		orderUpdateTopic: cfg.OrderUpdateTopic,
		log:              log,
	}
}

func (p *Publisher) PublishOrderUpdate(ctx context.Context, update engine.OrderUpdate) {
	key := strconv.FormatInt(update.OrderID, 10)
	if err := p.producer.PublishJSON(ctx, p.orderUpdateTopic, key, update); err != nil {
		p.log.Error(ctx, "failed to publish order update",
			zap.Int64("order_id", update.OrderID), zap.Error(err))
	}
}

func (p *Publisher) PublishTrade(ctx context.Context, trade *orderbook.Trade) {
	// Keyed by symbol so one partition preserves per-symbol trade order.
	if err := p.producer.PublishJSON(ctx, p.tradeTopic, trade.Symbol, trade); err != nil {
		p.log.Error(ctx, "failed to publish trade",
			zap.Int64("trade_id", trade.ID), zap.Error(err))
	}
}

func (p *Publisher) Close(ctx context.Context) error {
	return p.producer.Close(ctx)
}

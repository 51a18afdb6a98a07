package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TaXueWWL/matchEngine-x/pkg/archive"
	"github.com/TaXueWWL/matchEngine-x/pkg/archive/repo"
	"github.com/TaXueWWL/matchEngine-x/pkg/engine"
	"github.com/TaXueWWL/matchEngine-x/pkg/kafkawrapper"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Worker drains the engine's Kafka topics into the archive database.
// Malformed messages are logged and skipped so one bad record cannot
// stall the consumer group.
type Worker struct {
	trade       repo.ITrade
	orderUpdate repo.IOrderUpdate
	log         *logging.Logger
}

func NewWorker(repo repo.IRepo, log *logging.Logger) *Worker {
	return &Worker{
		trade:       repo.Trade(),
		orderUpdate: repo.OrderUpdate(),
		log:         log,
	}
}

// RunTradeConsumer blocks consuming trade messages until ctx is done.
func (w *Worker) RunTradeConsumer(ctx context.Context, cg *kafkawrapper.ConsumerGroup) error {
	return cg.Run(ctx, func(ctx context.Context, batch []kafkawrapper.Message) error {
		records := make([]*archive.TradeRecord, 0, len(batch))
		for _, msg := range batch {
			var trade orderbook.Trade
			if err := json.Unmarshal(msg.Value, &trade); err != nil {
				w.log.Warn(ctx, "archive: skip malformed trade message", zap.Error(err))
				continue
			}
			records = append(records, tradeToRecord(&trade))
		}
		_, err := w.trade.BulkCreate(ctx, records)
		return err
	})
}

// RunOrderUpdateConsumer blocks consuming order-update messages until
// ctx is done.
func (w *Worker) RunOrderUpdateConsumer(ctx context.Context, cg *kafkawrapper.ConsumerGroup) error {
	return cg.Run(ctx, func(ctx context.Context, batch []kafkawrapper.Message) error {
		records := make([]*archive.OrderUpdateRecord, 0, len(batch))
		for _, msg := range batch {
			var update engine.OrderUpdate
			if err := json.Unmarshal(msg.Value, &update); err != nil {
				w.log.Warn(ctx, "archive: skip malformed order update message", zap.Error(err))
				continue
			}
			records = append(records, updateToRecord(&update))
		}
		_, err := w.orderUpdate.BulkCreate(ctx, records)
		return err
	})
}

func tradeToRecord(trade *orderbook.Trade) *archive.TradeRecord {
	return &archive.TradeRecord{
		ID:          trade.ID,
		Symbol:      trade.Symbol,
		BuyOrderID:  trade.BuyOrderID,
		SellOrderID: trade.SellOrderID,
		BuyUserID:   trade.BuyUserID,
		SellUserID:  trade.SellUserID,
		Price:       trade.Price,
		Quantity:    trade.Quantity,
		ExecutedAt:  trade.Timestamp,
		CreatedAt:   time.Now(),
	}
}

func updateToRecord(update *engine.OrderUpdate) *archive.OrderUpdateRecord {
	return &archive.OrderUpdateRecord{
		OrderID:   update.OrderID,
		Symbol:    update.Symbol,
		UserID:    update.UserID,
		Status:    string(update.Status),
		Filled:    update.Filled,
		Remaining: update.Remaining,
		CreatedAt: time.Now(),
	}
}

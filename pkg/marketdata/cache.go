package marketdata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TaXueWWL/matchEngine-x/pkg/engine"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const depthLevels = 10

// Cache mirrors the last trade price and a shallow depth snapshot per
// symbol into Redis, where read-heavy collaborators (tickers, web
// pages) poll without touching the engine.
type Cache struct {
	rdb   *redis.Client
	books *orderbook.Manager
	log   *logging.Logger
}

func NewCache(rdb *redis.Client, books *orderbook.Manager, log *logging.Logger) *Cache {
	return &Cache{rdb: rdb, books: books, log: log}
}

func tickerKey(symbol string) string {
	return fmt.Sprintf("ticker:%s", symbol)
}

func depthKey(symbol string) string {
	return fmt.Sprintf("depth:%s", symbol)
}

func (c *Cache) PublishTrade(ctx context.Context, trade *orderbook.Trade) {
	if err := c.rdb.HSet(ctx, tickerKey(trade.Symbol),
		"last_price", trade.Price.String(),
		"last_quantity", trade.Quantity.String(),
		"last_trade_at", trade.Timestamp,
	).Err(); err != nil {
		c.log.Error(ctx, "failed to cache last trade price",
			zap.String("symbol", trade.Symbol), zap.Error(err))
	}

	c.refreshDepth(ctx, trade.Symbol)
}

func (c *Cache) PublishOrderUpdate(ctx context.Context, update engine.OrderUpdate) {
	c.refreshDepth(ctx, update.Symbol)
}

func (c *Cache) refreshDepth(ctx context.Context, symbol string) {
	depth := c.books.Book(symbol).Depth(depthLevels)
	payload, err := json.Marshal(depth)
	if err != nil {
		c.log.Error(ctx, "failed to marshal depth snapshot",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, depthKey(symbol), payload, 0).Err(); err != nil {
		c.log.Error(ctx, "failed to cache depth snapshot",
			zap.String("symbol", symbol), zap.Error(err))
	}
}

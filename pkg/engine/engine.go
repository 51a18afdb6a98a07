package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/TaXueWWL/matchEngine-x/config"
	"github.com/TaXueWWL/matchEngine-x/pkg/account"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/TaXueWWL/matchEngine-x/pkg/pipeline"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the single consumer of the command pipeline. It processes
// one command at a time, so book and order state need no internal
// locking against itself.
type Engine struct {
	books   *orderbook.Manager
	ledger  *account.Ledger
	trading *config.TradingConfig
	sink    EventSink
	log     *logging.Logger

	tradeID atomic.Int64
}

func NewEngine(books *orderbook.Manager, ledger *account.Ledger,
	trading *config.TradingConfig, sink EventSink, log *logging.Logger) *Engine {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Engine{
		books:   books,
		ledger:  ledger,
		trading: trading,
		sink:    sink,
		log:     log,
	}
}

// Handle dispatches one sequenced command. Errors are isolated per
// command: they are logged and never stop the consumer.
func (e *Engine) Handle(ctx context.Context, cmd *pipeline.Command) {
	switch cmd.Type {
	case pipeline.PlaceOrder:
		e.PlaceOrder(ctx, cmd)
	case pipeline.CancelOrder:
		e.CancelOrder(ctx, cmd)
	case pipeline.ModifyOrder:
		e.ModifyOrder(ctx, cmd)
	case pipeline.QueryOrder:
		e.QueryOrder(ctx, cmd)
	case pipeline.QueryOrderBook:
		e.QueryOrderBook(ctx, cmd)
	default:
		e.log.Warn(ctx, "unknown command type", zap.String("command_type", string(cmd.Type)))
	}
}

func (e *Engine) PlaceOrder(ctx context.Context, cmd *pipeline.Command) {
	order := orderbook.NewOrder(cmd.OrderID, cmd.Symbol, cmd.UserID, cmd.Side, cmd.OrderType, cmd.Price, cmd.Quantity)
	order.Sequence = cmd.Sequence
	book := e.books.Book(cmd.Symbol)

	e.log.Info(ctx, "placing order",
		zap.Int64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.String("price", order.Price.String()),
		zap.String("quantity", order.Quantity.String()))

	switch order.Type {
	case orderbook.LIMIT:
		e.processLimitOrder(ctx, book, order)
	case orderbook.MARKET:
		e.processMarketOrder(ctx, book, order)
	case orderbook.IOC:
		e.processIocOrder(ctx, book, order)
	case orderbook.FOK:
		e.processFokOrder(ctx, book, order)
	case orderbook.POST_ONLY:
		e.processPostOnlyOrder(ctx, book, order)
	default:
		e.log.Error(ctx, "unsupported order type", zap.String("type", string(order.Type)))
		order.Reject()
		book.AddHistoricalOrder(order)
	}

	e.emitOrderUpdate(ctx, order)
}

func (e *Engine) processLimitOrder(ctx context.Context, book *orderbook.OrderBook, order *orderbook.Order) {
	trades := e.match(ctx, book, order)

	if order.Remaining.Sign() > 0 && order.Status != orderbook.StatusCancelled {
		book.AddOrder(order)
	}

	e.settleTrades(ctx, trades)

	if order.Status == orderbook.StatusFilled {
		book.AddHistoricalOrder(order)
	}
}

func (e *Engine) processMarketOrder(ctx context.Context, book *orderbook.OrderBook, order *orderbook.Order) {
	trades := e.match(ctx, book, order)

	// Market orders never rest; the unmatched remainder is cancelled.
	if order.Remaining.Sign() > 0 {
		order.Cancel()
		e.releaseRemainderFunds(ctx, order)
		e.log.Warn(ctx, "market order partially filled and cancelled",
			zap.Int64("order_id", order.ID),
			zap.String("remaining", order.Remaining.String()))
	}

	e.settleTrades(ctx, trades)

	if order.Status == orderbook.StatusFilled || order.Status == orderbook.StatusCancelled {
		book.AddHistoricalOrder(order)
	}
}

func (e *Engine) processIocOrder(ctx context.Context, book *orderbook.OrderBook, order *orderbook.Order) {
	trades := e.match(ctx, book, order)

	if order.Remaining.Sign() > 0 {
		order.Cancel()
		e.releaseRemainderFunds(ctx, order)
	}

	e.settleTrades(ctx, trades)

	if order.Status == orderbook.StatusFilled || order.Status == orderbook.StatusCancelled {
		book.AddHistoricalOrder(order)
	}
}

func (e *Engine) processFokOrder(ctx context.Context, book *orderbook.OrderBook, order *orderbook.Order) {
	// All or nothing: match only when opposing liquidity fully covers
	// the requested quantity at acceptable prices.
	if book.CanFillEntirely(order) {
		trades := e.match(ctx, book, order)
		e.settleTrades(ctx, trades)
	} else {
		order.Cancel()
		e.releaseRemainderFunds(ctx, order)
		e.log.Info(ctx, "fok order cancelled, cannot fill entire quantity",
			zap.Int64("order_id", order.ID))
	}

	if order.Status == orderbook.StatusFilled || order.Status == orderbook.StatusCancelled {
		book.AddHistoricalOrder(order)
	}
}

func (e *Engine) processPostOnlyOrder(ctx context.Context, book *orderbook.OrderBook, order *orderbook.Order) {
	// Post-only never takes liquidity: an order that would cross is
	// rejected instead of resting.
	if book.WouldCross(order) {
		order.Reject()
		e.releaseRemainderFunds(ctx, order)
		book.AddHistoricalOrder(order)
		e.log.Info(ctx, "post-only order rejected, would immediately match",
			zap.Int64("order_id", order.ID))
	} else {
		book.AddOrder(order)
	}
}

// match runs the price-time priority loop: best opposing level, oldest
// order first, trade at the maker's price.
func (e *Engine) match(ctx context.Context, book *orderbook.OrderBook, taker *orderbook.Order) []*orderbook.Trade {
	var trades []*orderbook.Trade

	for taker.Remaining.Sign() > 0 {
		maker, quantity, ok := book.MatchBest(taker)
		if !ok {
			break
		}

		trade := e.newTrade(taker, maker, maker.Price, quantity)
		trades = append(trades, trade)
		book.AddTrade(trade)

		e.refundPriceImprovement(ctx, taker, maker, trade)
		e.emitOrderUpdate(ctx, maker)

		e.log.Debug(ctx, "trade executed",
			zap.Int64("trade_id", trade.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("price", trade.Price.String()),
			zap.String("quantity", trade.Quantity.String()))
	}

	return trades
}

func (e *Engine) newTrade(a, b *orderbook.Order, price, quantity decimal.Decimal) *orderbook.Trade {
	buy, sell := a, b
	if a.Side == orderbook.SELL {
		buy, sell = b, a
	}

	return &orderbook.Trade{
		ID:          e.tradeID.Add(1),
		Symbol:      a.Symbol,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyUserID:   buy.UserID,
		SellUserID:  sell.UserID,
		Price:       price,
		Quantity:    quantity,
		Timestamp:   time.Now().UnixMilli(),
	}
}

// refundPriceImprovement releases the slice of the buyer's quote
// freeze that the trade did not consume: the buyer reserved at its own
// limit price but traded at the maker's price.
func (e *Engine) refundPriceImprovement(ctx context.Context, taker, maker *orderbook.Order, trade *orderbook.Trade) {
	buy := taker
	if taker.Side == orderbook.SELL {
		buy = maker
	}
	if buy.Price.Sign() <= 0 {
		return
	}

	diff := buy.Price.Sub(trade.Price)
	if diff.Sign() <= 0 {
		return
	}

	quote := e.trading.QuoteCurrency(trade.Symbol)
	e.ledger.Unfreeze(ctx, buy.UserID, quote, diff.Mul(trade.Quantity))
}

// settleTrades performs per-trade fund settlement: quote notional from
// the buyer's frozen cell to the seller, base quantity from the
// seller's frozen cell to the buyer. A failed leg is logged and the
// trade stands.
func (e *Engine) settleTrades(ctx context.Context, trades []*orderbook.Trade) {
	for _, trade := range trades {
		e.log.Info(ctx, "trade settled",
			zap.Int64("trade_id", trade.ID),
			zap.String("symbol", trade.Symbol),
			zap.String("price", trade.Price.String()),
			zap.String("quantity", trade.Quantity.String()),
			zap.Int64("buy_order_id", trade.BuyOrderID),
			zap.Int64("sell_order_id", trade.SellOrderID))

		baseCurrency := e.trading.BaseCurrency(trade.Symbol)
		quoteCurrency := e.trading.QuoteCurrency(trade.Symbol)
		notional := trade.Price.Mul(trade.Quantity)

		if err := e.ledger.TransferFromFrozen(ctx, trade.BuyUserID, trade.SellUserID, quoteCurrency, notional); err != nil {
			e.log.Error(ctx, "failed to transfer quote leg",
				zap.Int64("trade_id", trade.ID),
				zap.String("currency", quoteCurrency),
				zap.String("amount", notional.String()),
				zap.Error(err))
		}

		if err := e.ledger.TransferFromFrozen(ctx, trade.SellUserID, trade.BuyUserID, baseCurrency, trade.Quantity); err != nil {
			e.log.Error(ctx, "failed to transfer base leg",
				zap.Int64("trade_id", trade.ID),
				zap.String("currency", baseCurrency),
				zap.String("amount", trade.Quantity.String()),
				zap.Error(err))
		}

		e.sink.PublishTrade(ctx, trade)
	}
}

func (e *Engine) CancelOrder(ctx context.Context, cmd *pipeline.Command) {
	book := e.books.Book(cmd.Symbol)

	// The status change, removal and archival happen inside the book
	// under its lock; concurrent queries see either the active order or
	// the cancelled one, never a half-cancelled state.
	order := book.CancelOrder(cmd.OrderID)
	if order == nil {
		e.log.Warn(ctx, "order not found for cancellation", zap.Int64("order_id", cmd.OrderID))
		return
	}

	e.releaseRemainderFunds(ctx, order)
	e.emitOrderUpdate(ctx, order)

	e.log.Info(ctx, "cancelled order and released frozen funds", zap.Int64("order_id", cmd.OrderID))
}

// ModifyOrder cancels the existing order and re-inserts a limit order
// with the same id, the new price and quantity, and reset fill state.
// Time priority is reset even when only the quantity changed. The
// replaced order is archived as CANCELLED, the same trace a plain
// cancel leaves.
func (e *Engine) ModifyOrder(ctx context.Context, cmd *pipeline.Command) {
	book := e.books.Book(cmd.Symbol)

	existing := book.CancelOrder(cmd.OrderID)
	if existing == nil {
		e.log.Warn(ctx, "order not found for modification", zap.Int64("order_id", cmd.OrderID))
		return
	}

	e.releaseRemainderFunds(ctx, existing)

	price := cmd.Price
	if price.Sign() <= 0 {
		price = existing.Price
	}
	quantity := cmd.Quantity
	if quantity.Sign() <= 0 {
		quantity = existing.Quantity
	}

	order := orderbook.NewOrder(cmd.OrderID, cmd.Symbol, existing.UserID, existing.Side, orderbook.LIMIT, price, quantity)
	order.Sequence = cmd.Sequence

	if err := e.freezeOrderFunds(ctx, order); err != nil {
		order.Reject()
		book.AddHistoricalOrder(order)
		e.emitOrderUpdate(ctx, order)
		e.log.Warn(ctx, "modify rejected, cannot reserve funds for new terms",
			zap.Int64("order_id", cmd.OrderID), zap.Error(err))
		return
	}

	e.log.Info(ctx, "modified order",
		zap.Int64("order_id", cmd.OrderID),
		zap.String("new_price", order.Price.String()),
		zap.String("new_quantity", order.Quantity.String()))

	e.processLimitOrder(ctx, book, order)
	e.emitOrderUpdate(ctx, order)
}

func (e *Engine) QueryOrder(ctx context.Context, cmd *pipeline.Command) {
	book := e.books.Book(cmd.Symbol)

	order := book.GetOrder(cmd.OrderID)
	if order == nil {
		order = book.GetHistoricalOrder(cmd.OrderID)
	}

	if order != nil {
		e.log.Info(ctx, "order query result",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("filled", order.Filled.String()),
			zap.String("remaining", order.Remaining.String()))
	} else {
		e.log.Info(ctx, "order not found", zap.Int64("order_id", cmd.OrderID))
	}
}

func (e *Engine) QueryOrderBook(ctx context.Context, cmd *pipeline.Command) {
	book := e.books.Book(cmd.Symbol)
	depth := book.Depth(10)
	e.log.Info(ctx, "order book query",
		zap.String("symbol", cmd.Symbol),
		zap.Int("bid_levels", len(depth.Bids)),
		zap.Int("ask_levels", len(depth.Asks)))
}

// releaseRemainderFunds moves an order's unconsumed reservation back
// to available: price times remaining in quote currency for buys, the
// remaining base quantity for sells.
func (e *Engine) releaseRemainderFunds(ctx context.Context, order *orderbook.Order) {
	if order.Remaining.Sign() <= 0 {
		return
	}

	if order.Side == orderbook.BUY {
		if order.Price.Sign() <= 0 {
			return
		}
		quoteCurrency := e.trading.QuoteCurrency(order.Symbol)
		amount := order.Price.Mul(order.Remaining)
		e.ledger.Unfreeze(ctx, order.UserID, quoteCurrency, amount)
		e.log.Info(ctx, "released frozen quote balance",
			zap.Int64("order_id", order.ID),
			zap.Int64("user_id", order.UserID),
			zap.String("currency", quoteCurrency),
			zap.String("amount", amount.String()))
	} else {
		baseCurrency := e.trading.BaseCurrency(order.Symbol)
		e.ledger.Unfreeze(ctx, order.UserID, baseCurrency, order.Remaining)
		e.log.Info(ctx, "released frozen base balance",
			zap.Int64("order_id", order.ID),
			zap.Int64("user_id", order.UserID),
			zap.String("currency", baseCurrency),
			zap.String("amount", order.Remaining.String()))
	}
}

func (e *Engine) freezeOrderFunds(ctx context.Context, order *orderbook.Order) error {
	if order.Side == orderbook.BUY {
		quoteCurrency := e.trading.QuoteCurrency(order.Symbol)
		return e.ledger.Freeze(ctx, order.UserID, quoteCurrency, order.Price.Mul(order.Quantity))
	}
	baseCurrency := e.trading.BaseCurrency(order.Symbol)
	return e.ledger.Freeze(ctx, order.UserID, baseCurrency, order.Quantity)
}

func (e *Engine) emitOrderUpdate(ctx context.Context, order *orderbook.Order) {
	e.sink.PublishOrderUpdate(ctx, OrderUpdate{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		UserID:    order.UserID,
		Status:    order.Status,
		Filled:    order.Filled,
		Remaining: order.Remaining,
	})
}

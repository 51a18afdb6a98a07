package orderbook

import (
	"sort"
	"sync"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

// maxRecentTrades bounds the per-book trade history; the oldest entry
// is evicted on overflow.
const maxRecentTrades = 30

// OrderBook is the two-sided price-ordered index of resting orders
// for one symbol. The matching consumer is the only writer; producer
// threads read the query surface concurrently, so every method locks.
type OrderBook struct {
	symbol string

	mu   sync.RWMutex
	bids *bookSide
	asks *bookSide

	// Every active order is indexed here and in exactly one price level.
	orders       map[int64]*Order
	levelByOrder map[int64]*PriceLevel

	// Terminal orders (FILLED, CANCELLED, REJECTED).
	history map[int64]*Order

	recentTrades deque.Deque[*Trade]
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol:       symbol,
		bids:         newBidSide(),
		asks:         newAskSide(),
		orders:       make(map[int64]*Order),
		levelByOrder: make(map[int64]*PriceLevel),
		history:      make(map[int64]*Order),
	}
}

func (b *OrderBook) Symbol() string {
	return b.symbol
}

func (b *OrderBook) side(s Side) *bookSide {
	if s == BUY {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) opposite(s Side) *bookSide {
	if s == BUY {
		return b.asks
	}
	return b.bids
}

// crosses reports whether a taker on side with the given limit price
// accepts the opposing level price.
func crosses(side Side, limit, levelPrice decimal.Decimal) bool {
	if side == BUY {
		return limit.Cmp(levelPrice) >= 0
	}
	return limit.Cmp(levelPrice) <= 0
}

// AddOrder rests an order at the tail of its price level, creating
// the level when absent.
func (b *OrderBook) AddOrder(order *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	level := b.side(order.Side).getOrCreate(order.Price)
	level.AddOrder(order)
	b.orders[order.ID] = order
	b.levelByOrder[order.ID] = level
}

// RemoveOrder removes an active order from its level and both id
// indexes. It does not archive the order.
func (b *OrderBook) RemoveOrder(orderID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(orderID) != nil
}

// removeLocked is called with the book lock held.
func (b *OrderBook) removeLocked(orderID int64) *Order {
	order, ok := b.orders[orderID]
	if !ok {
		return nil
	}
	delete(b.orders, orderID)

	level := b.levelByOrder[orderID]
	delete(b.levelByOrder, orderID)
	if level != nil {
		level.RemoveOrder(order)
		if level.IsEmpty() {
			b.side(order.Side).remove(level.price)
		}
	}
	return order
}

// CancelOrder marks an active order CANCELLED, removes it from the
// book and archives it, all under one lock. It returns a copy of the
// cancelled order, or nil when the id is not active.
func (b *OrderBook) CancelOrder(orderID int64) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	order := b.removeLocked(orderID)
	if order == nil {
		return nil
	}
	order.Cancel()
	b.history[order.ID] = order
	return order.clone()
}

// GetOrder returns a copy of an active order. The matching consumer
// keeps mutating the original, so callers never see a live pointer.
func (b *OrderBook) GetOrder(orderID int64) *Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orders[orderID].clone()
}

func (b *OrderBook) GetHistoricalOrder(orderID int64) *Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history[orderID].clone()
}

func (b *OrderBook) AddHistoricalOrder(order *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[order.ID] = order
}

// MatchBest executes one price-time priority match step for the taker
// against the best opposing level: the oldest order at the best price
// fills for min(remaining, remaining) at the maker's price. A fully
// filled maker is unindexed and archived; an emptied level is dropped.
// Returns false when no opposing level crosses the taker.
func (b *OrderBook) MatchBest(taker *Order) (*Order, decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	opp := b.opposite(taker.Side)
	level := opp.best()
	if level == nil {
		return nil, decimal.Zero, false
	}
	if taker.Type != MARKET && !crosses(taker.Side, taker.Price, level.price) {
		return nil, decimal.Zero, false
	}

	maker := level.PeekFirst()
	if maker == nil {
		opp.remove(level.price)
		return nil, decimal.Zero, false
	}

	quantity := decimal.Min(taker.Remaining, maker.Remaining)
	oldRemaining := maker.Remaining
	taker.Fill(quantity)
	maker.Fill(quantity)
	level.UpdateQuantity(oldRemaining, maker.Remaining)

	if maker.IsFullyFilled() {
		level.PollFirst()
		delete(b.orders, maker.ID)
		delete(b.levelByOrder, maker.ID)
		b.history[maker.ID] = maker
		if level.IsEmpty() {
			opp.remove(level.price)
		}
	}

	return maker, quantity, true
}

// CanFillEntirely walks opposing levels best first and reports whether
// acceptable liquidity covers the taker's full quantity.
func (b *OrderBook) CanFillEntirely(taker *Order) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	opp := b.opposite(taker.Side)
	remaining := taker.Quantity
	level := opp.best()

	for level != nil && remaining.Sign() > 0 {
		if taker.Type != MARKET && !crosses(taker.Side, taker.Price, level.price) {
			break
		}
		remaining = remaining.Sub(decimal.Min(level.totalQuantity, remaining))
		level = opp.next(level.price)
	}

	return remaining.Sign() == 0
}

// WouldCross reports whether the taker would match immediately
// against the current best opposing level.
func (b *OrderBook) WouldCross(taker *Order) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	level := b.opposite(taker.Side).best()
	return level != nil && crosses(taker.Side, taker.Price, level.price)
}

func (b *OrderBook) BestBidPrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	level := b.bids.best()
	if level == nil {
		return decimal.Zero, false
	}
	return level.price, true
}

func (b *OrderBook) BestAskPrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	level := b.asks.best()
	if level == nil {
		return decimal.Zero, false
	}
	return level.price, true
}

// MidPrice is (bestBid+bestAsk)/2; undefined when either side is empty.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, ask := b.bids.best(), b.asks.best()
	if bid == nil || ask == nil {
		return decimal.Zero, false
	}
	return bid.price.Add(ask.price).Div(decimal.NewFromInt(2)), true
}

// Spread is bestAsk-bestBid; undefined when either side is empty.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, ask := b.bids.best(), b.asks.best()
	if bid == nil || ask == nil {
		return decimal.Zero, false
	}
	return ask.price.Sub(bid.price), true
}

func (b *OrderBook) TotalOrders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

func (b *OrderBook) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.isEmpty() && b.asks.isEmpty()
}

// UserOrders returns copies of the user's active and historical
// orders, newest first.
func (b *OrderBook) UserOrders(userID int64) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Order
	for _, order := range b.orders {
		if order.UserID == userID {
			out = append(out, order.clone())
		}
	}
	for _, order := range b.history {
		if order.UserID == userID {
			out = append(out, order.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// UserHistoricalOrders returns copies of the user's terminal orders,
// newest first.
func (b *OrderBook) UserHistoricalOrders(userID int64) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Order
	for _, order := range b.history {
		if order.UserID == userID {
			out = append(out, order.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// AddTrade records a trade in the bounded recent-trade history.
func (b *OrderBook) AddTrade(trade *Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentTrades.PushFront(trade)
	for b.recentTrades.Len() > maxRecentTrades {
		b.recentTrades.PopBack()
	}
}

// RecentTrades returns up to limit trades, newest first. limit <= 0
// returns all retained trades.
func (b *OrderBook) RecentTrades(limit int) []*Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.recentTrades.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Trade, n)
	for i := 0; i < n; i++ {
		out[i] = b.recentTrades.At(i)
	}
	return out
}

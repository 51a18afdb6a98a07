package orderbook

import "github.com/shopspring/decimal"

// LevelSnapshot carries a level's price, aggregate quantity and order
// count without exposing the order objects themselves.
type LevelSnapshot struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// DepthSnapshot is a point-in-time copy of the top N levels per side,
// bids highest first, asks lowest first.
type DepthSnapshot struct {
	Symbol string          `json:"symbol"`
	Bids   []LevelSnapshot `json:"bids"`
	Asks   []LevelSnapshot `json:"asks"`
}

func snapshotLevels(levels []*PriceLevel) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, len(levels))
	for _, level := range levels {
		out = append(out, LevelSnapshot{
			Price:         level.price,
			TotalQuantity: level.totalQuantity,
			OrderCount:    level.OrderCount(),
		})
	}
	return out
}

// Depth copies the top maxLevels levels of each side under the book lock.
func (b *OrderBook) Depth(maxLevels int) DepthSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return DepthSnapshot{
		Symbol: b.symbol,
		Bids:   snapshotLevels(b.bids.top(maxLevels)),
		Asks:   snapshotLevels(b.asks.top(maxLevels)),
	}
}

package orderbook

import "sync"

// Manager owns the per-symbol books. It is created at startup and
// passed by reference; books are created lazily per symbol.
type Manager struct {
	books sync.Map
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Book(symbol string) *OrderBook {
	if val, ok := m.books.Load(symbol); ok {
		return val.(*OrderBook)
	}

	book := NewOrderBook(symbol)
	actual, _ := m.books.LoadOrStore(symbol, book)
	return actual.(*OrderBook)
}

func (m *Manager) Symbols() []string {
	var symbols []string
	m.books.Range(func(k, _ any) bool {
		symbols = append(symbols, k.(string))
		return true
	})
	return symbols
}

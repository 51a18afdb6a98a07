package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// bookSide keeps one side's price levels sorted best first: bids
// descending, asks ascending. Lookup and insertion are binary
// searches over exact decimal prices.
type bookSide struct {
	levels []*PriceLevel

	// before reports whether price a sorts strictly before price b
	// on this side.
	before func(a, b decimal.Decimal) bool
}

func newBidSide() *bookSide {
	return &bookSide{
		before: func(a, b decimal.Decimal) bool { return a.Cmp(b) > 0 },
	}
}

func newAskSide() *bookSide {
	return &bookSide{
		before: func(a, b decimal.Decimal) bool { return a.Cmp(b) < 0 },
	}
}

// search returns the index of the first level not sorting strictly
// before price; the level at that index has the exact price or price
// belongs there.
func (s *bookSide) search(price decimal.Decimal) int {
	return sort.Search(len(s.levels), func(i int) bool {
		return !s.before(s.levels[i].price, price)
	})
}

func (s *bookSide) get(price decimal.Decimal) *PriceLevel {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		return s.levels[i]
	}
	return nil
}

func (s *bookSide) getOrCreate(price decimal.Decimal) *PriceLevel {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		return s.levels[i]
	}
	level := NewPriceLevel(price)
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level
	return level
}

func (s *bookSide) remove(price decimal.Decimal) {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		s.levels = append(s.levels[:i], s.levels[i+1:]...)
	}
}

func (s *bookSide) best() *PriceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// next returns the level immediately worse than price, or nil.
func (s *bookSide) next(price decimal.Decimal) *PriceLevel {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		i++
	}
	if i >= len(s.levels) {
		return nil
	}
	return s.levels[i]
}

func (s *bookSide) top(maxLevels int) []*PriceLevel {
	if maxLevels < 0 {
		maxLevels = 0
	}
	if maxLevels > len(s.levels) {
		maxLevels = len(s.levels)
	}
	out := make([]*PriceLevel, maxLevels)
	copy(out, s.levels[:maxLevels])
	return out
}

func (s *bookSide) isEmpty() bool {
	return len(s.levels) == 0
}

package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/TaXueWWL/matchEngine-x/config"
	"github.com/TaXueWWL/matchEngine-x/pkg/account"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/TaXueWWL/matchEngine-x/pkg/pipeline"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is the producer-side order entry and query surface. It
// validates a command, freezes the funds backing it, and only then
// publishes it into the pipeline, so the consumer can never oversell.
type Service struct {
	pipe    *pipeline.Pipeline
	books   *orderbook.Manager
	ledger  *account.Ledger
	trading *config.TradingConfig
	log     *logging.Logger

	orderID atomic.Int64
}

func NewService(pipe *pipeline.Pipeline, books *orderbook.Manager, ledger *account.Ledger,
	trading *config.TradingConfig, log *logging.Logger) *Service {
	return &Service{
		pipe:    pipe,
		books:   books,
		ledger:  ledger,
		trading: trading,
		log:     log,
	}
}

// PlaceOrder validates, freezes funds and publishes a place command,
// blocking while the pipeline is full. It returns the assigned order id.
func (s *Service) PlaceOrder(ctx context.Context, symbol string, userID int64, side orderbook.Side,
	orderType orderbook.OrderType, price, quantity decimal.Decimal) (int64, error) {
	if err := s.ValidateOrder(ctx, symbol, userID, side, orderType, price, quantity); err != nil {
		return 0, err
	}

	orderID := s.orderID.Add(1)

	freezeBasis := s.freezeBasisPrice(symbol, orderType, price)
	if err := s.freezeOrderFunds(ctx, symbol, userID, side, freezeBasis, quantity); err != nil {
		return 0, err
	}

	cmd := pipeline.NewPlaceCommand(orderID, symbol, userID, side, orderType, freezeBasis, quantity)
	if _, err := s.pipe.Publish(cmd); err != nil {
		s.unfreezeOrderFunds(ctx, symbol, userID, side, freezeBasis, quantity)
		return 0, err
	}

	s.log.Info(ctx, "submitted place order",
		zap.Int64("order_id", orderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()))

	return orderID, nil
}

// TryPlaceOrder is the non-blocking variant. When the pipeline is
// full it unfreezes the funds it just reserved and returns
// ErrQueueFull; no reservation may outlive a rejected submit.
func (s *Service) TryPlaceOrder(ctx context.Context, symbol string, userID int64, side orderbook.Side,
	orderType orderbook.OrderType, price, quantity decimal.Decimal) (int64, error) {
	if err := s.ValidateOrder(ctx, symbol, userID, side, orderType, price, quantity); err != nil {
		return 0, err
	}

	orderID := s.orderID.Add(1)

	freezeBasis := s.freezeBasisPrice(symbol, orderType, price)
	if err := s.freezeOrderFunds(ctx, symbol, userID, side, freezeBasis, quantity); err != nil {
		return 0, err
	}

	cmd := pipeline.NewPlaceCommand(orderID, symbol, userID, side, orderType, freezeBasis, quantity)
	if _, err := s.pipe.TryPublish(cmd); err != nil {
		s.unfreezeOrderFunds(ctx, symbol, userID, side, freezeBasis, quantity)
		s.log.Warn(ctx, "failed to submit place order, funds unfrozen", zap.Error(err))
		if errors.Is(err, pipeline.ErrFull) {
			return 0, ErrQueueFull
		}
		return 0, err
	}

	s.log.Info(ctx, "submitted place order",
		zap.Int64("order_id", orderID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)))

	return orderID, nil
}

// CancelOrder publishes a cancel command. Cancellation is best
// effort: the target may already have matched by the time the command
// is consumed.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, symbol string, userID int64) error {
	cmd := pipeline.NewCancelCommand(orderID, symbol, userID)
	if _, err := s.pipe.Publish(cmd); err != nil {
		return err
	}

	s.log.Info(ctx, "submitted cancel order", zap.Int64("order_id", orderID))
	return nil
}

func (s *Service) ModifyOrder(ctx context.Context, orderID int64, symbol string, userID int64,
	newPrice, newQuantity decimal.Decimal) error {
	cmd := pipeline.NewModifyCommand(orderID, symbol, userID, newPrice, newQuantity)
	if _, err := s.pipe.Publish(cmd); err != nil {
		return err
	}

	s.log.Info(ctx, "submitted modify order",
		zap.Int64("order_id", orderID),
		zap.String("new_price", newPrice.String()),
		zap.String("new_quantity", newQuantity.String()))
	return nil
}

// QueryOrder looks up an order by id, active first then historical.
func (s *Service) QueryOrder(orderID int64, symbol string) (*orderbook.Order, error) {
	book := s.books.Book(symbol)
	if order := book.GetOrder(orderID); order != nil {
		return order, nil
	}
	if order := book.GetHistoricalOrder(orderID); order != nil {
		return order, nil
	}
	return nil, ErrOrderNotFound
}

func (s *Service) Depth(symbol string, maxLevels int) orderbook.DepthSnapshot {
	return s.books.Book(symbol).Depth(maxLevels)
}

func (s *Service) RecentTrades(symbol string, limit int) []*orderbook.Trade {
	return s.books.Book(symbol).RecentTrades(limit)
}

// UserOrders returns the user's active and historical orders for one
// symbol, newest first.
func (s *Service) UserOrders(userID int64, symbol string) []*orderbook.Order {
	return s.books.Book(symbol).UserOrders(userID)
}

// UserCurrentOrders returns the user's still-active orders for one symbol.
func (s *Service) UserCurrentOrders(userID int64, symbol string) []*orderbook.Order {
	var out []*orderbook.Order
	for _, order := range s.books.Book(symbol).UserOrders(userID) {
		if order.IsActive() {
			out = append(out, order)
		}
	}
	return out
}

// UserHistoryOrders returns the user's terminal orders for one symbol.
func (s *Service) UserHistoryOrders(userID int64, symbol string) []*orderbook.Order {
	return s.books.Book(symbol).UserHistoricalOrders(userID)
}

// AllUserOrders returns the user's orders across every enabled symbol.
func (s *Service) AllUserOrders(userID int64) []*orderbook.Order {
	var out []*orderbook.Order
	for _, symbol := range s.trading.EnabledSymbols() {
		out = append(out, s.UserOrders(userID, symbol)...)
	}
	return out
}

func (s *Service) AllUserCurrentOrders(userID int64) []*orderbook.Order {
	var out []*orderbook.Order
	for _, symbol := range s.trading.EnabledSymbols() {
		out = append(out, s.UserCurrentOrders(userID, symbol)...)
	}
	return out
}

func (s *Service) AllUserHistoryOrders(userID int64) []*orderbook.Order {
	var out []*orderbook.Order
	for _, symbol := range s.trading.EnabledSymbols() {
		out = append(out, s.UserHistoryOrders(userID, symbol)...)
	}
	return out
}

func (s *Service) SupportedSymbols() []string {
	return s.trading.EnabledSymbols()
}

func (s *Service) PairInfo(symbol string) *config.TradingPair {
	return s.trading.Pair(symbol)
}

// ValidateOrder checks symbol, side, type, price/quantity bounds and
// the user's balance. It has no side effects.
func (s *Service) ValidateOrder(ctx context.Context, symbol string, userID int64, side orderbook.Side,
	orderType orderbook.OrderType, price, quantity decimal.Decimal) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrValidation)
	}
	if !s.trading.IsValidSymbol(symbol) {
		return fmt.Errorf("%w: unsupported trading pair %s", ErrValidation, symbol)
	}
	if side != orderbook.BUY && side != orderbook.SELL {
		return fmt.Errorf("%w: invalid side %q", ErrValidation, side)
	}

	switch orderType {
	case orderbook.LIMIT, orderbook.MARKET, orderbook.IOC, orderbook.FOK, orderbook.POST_ONLY:
	default:
		return fmt.Errorf("%w: invalid order type %q", ErrValidation, orderType)
	}

	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if orderType != orderbook.MARKET && price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive for non-market orders", ErrValidation)
	}

	if pair := s.trading.Pair(symbol); pair != nil {
		if err := validatePairConstraints(pair, price, quantity, orderType); err != nil {
			return err
		}
	}

	return s.validateUserBalance(symbol, userID, side, orderType, price, quantity)
}

func validatePairConstraints(pair *config.TradingPair, price, quantity decimal.Decimal, orderType orderbook.OrderType) error {
	if orderType != orderbook.MARKET {
		if price.Cmp(pair.MinPrice.Decimal) < 0 {
			return fmt.Errorf("%w: price %s is below minimum %s for %s",
				ErrValidation, price, pair.MinPrice, pair.Symbol)
		}
		if price.Cmp(pair.MaxPrice.Decimal) > 0 {
			return fmt.Errorf("%w: price %s is above maximum %s for %s",
				ErrValidation, price, pair.MaxPrice, pair.Symbol)
		}
	}

	if quantity.Cmp(pair.MinQuantity.Decimal) < 0 {
		return fmt.Errorf("%w: quantity %s is below minimum %s for %s",
			ErrValidation, quantity, pair.MinQuantity, pair.Symbol)
	}
	if quantity.Cmp(pair.MaxQuantity.Decimal) > 0 {
		return fmt.Errorf("%w: quantity %s is above maximum %s for %s",
			ErrValidation, quantity, pair.MaxQuantity, pair.Symbol)
	}
	return nil
}

func (s *Service) validateUserBalance(symbol string, userID int64, side orderbook.Side,
	orderType orderbook.OrderType, price, quantity decimal.Decimal) error {
	if side == orderbook.BUY {
		quoteCurrency := s.trading.QuoteCurrency(symbol)
		required := s.freezeBasisPrice(symbol, orderType, price).Mul(quantity)
		if !s.ledger.HasEnoughBalance(userID, quoteCurrency, required) {
			return fmt.Errorf("%w: required %s %s, available %s %s", ErrInsufficientFunds,
				required, quoteCurrency, s.ledger.GetAvailable(userID, quoteCurrency), quoteCurrency)
		}
		return nil
	}

	baseCurrency := s.trading.BaseCurrency(symbol)
	if !s.ledger.HasEnoughBalance(userID, baseCurrency, quantity) {
		return fmt.Errorf("%w: required %s %s, available %s %s", ErrInsufficientFunds,
			quantity, baseCurrency, s.ledger.GetAvailable(userID, baseCurrency), baseCurrency)
	}
	return nil
}

// freezeBasisPrice is the price the quote-side reservation is computed
// from. A market buy has no limit price, so its cost is estimated from
// the best ask, falling back to the configured price when the book is
// empty; the estimate is carried on the command so the consumer can
// release exactly what was reserved.
func (s *Service) freezeBasisPrice(symbol string, orderType orderbook.OrderType, price decimal.Decimal) decimal.Decimal {
	if orderType != orderbook.MARKET {
		return price
	}
	if bestAsk, ok := s.books.Book(symbol).BestAskPrice(); ok {
		return bestAsk
	}
	if price.Sign() > 0 {
		return price
	}
	return s.trading.MarketPriceFallback.Decimal
}

func (s *Service) freezeOrderFunds(ctx context.Context, symbol string, userID int64, side orderbook.Side,
	basisPrice, quantity decimal.Decimal) error {
	if side == orderbook.BUY {
		quoteCurrency := s.trading.QuoteCurrency(symbol)
		required := basisPrice.Mul(quantity)
		if err := s.ledger.Freeze(ctx, userID, quoteCurrency, required); err != nil {
			return fmt.Errorf("%w: required %s %s", ErrInsufficientFunds, required, quoteCurrency)
		}
		return nil
	}

	baseCurrency := s.trading.BaseCurrency(symbol)
	if err := s.ledger.Freeze(ctx, userID, baseCurrency, quantity); err != nil {
		return fmt.Errorf("%w: required %s %s", ErrInsufficientFunds, quantity, baseCurrency)
	}
	return nil
}

func (s *Service) unfreezeOrderFunds(ctx context.Context, symbol string, userID int64, side orderbook.Side,
	basisPrice, quantity decimal.Decimal) {
	if side == orderbook.BUY {
		s.ledger.Unfreeze(ctx, userID, s.trading.QuoteCurrency(symbol), basisPrice.Mul(quantity))
		return
	}
	s.ledger.Unfreeze(ctx, userID, s.trading.BaseCurrency(symbol), quantity)
}

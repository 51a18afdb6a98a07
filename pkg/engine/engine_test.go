package engine

import (
	"context"
	"testing"

	"github.com/TaXueWWL/matchEngine-x/config"
	"github.com/TaXueWWL/matchEngine-x/pkg/account"
	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/TaXueWWL/matchEngine-x/pkg/pipeline"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func cd(s string) config.Decimal {
	return config.Decimal{Decimal: d(s)}
}

func testTradingConfig() *config.TradingConfig {
	return &config.TradingConfig{
		Pairs: map[string]*config.TradingPair{
			"BTCUSDT": {
				Symbol:       "BTCUSDT",
				BaseAsset:    "BTC",
				QuoteAsset:   "USDT",
				MinPrice:     cd("0.01"),
				MaxPrice:     cd("1000000"),
				PriceStep:    cd("0.01"),
				MinQuantity:  cd("0.0001"),
				MaxQuantity:  cd("1000"),
				QuantityStep: cd("0.0001"),
				Enabled:      true,
			},
		},
		MarketPriceFallback: cd("100"),
	}
}

type testFixture struct {
	engine *Engine
	books  *orderbook.Manager
	ledger *account.Ledger
	sink   *recordingSink
	ctx    context.Context
}

// recordingSink captures every emitted event for assertions.
type recordingSink struct {
	updates []OrderUpdate
	trades  []*orderbook.Trade
}

func (s *recordingSink) PublishOrderUpdate(_ context.Context, update OrderUpdate) {
	s.updates = append(s.updates, update)
}

func (s *recordingSink) PublishTrade(_ context.Context, trade *orderbook.Trade) {
	s.trades = append(s.trades, trade)
}

func newFixture() *testFixture {
	log := logging.NewLogger(logging.ERROR)
	books := orderbook.NewManager()
	ledger := account.NewLedger(log)
	sink := &recordingSink{}
	return &testFixture{
		engine: NewEngine(books, ledger, testTradingConfig(), sink, log),
		books:  books,
		ledger: ledger,
		sink:   sink,
		ctx:    context.Background(),
	}
}

func (f *testFixture) fund(t *testing.T, userID int64, currency, amount string) {
	t.Helper()
	if err := f.ledger.AddBalance(f.ctx, userID, currency, d(amount)); err != nil {
		t.Fatalf("AddBalance failed: %v", err)
	}
}

func (f *testFixture) place(t *testing.T, orderID int64, userID int64, side orderbook.Side,
	orderType orderbook.OrderType, price, quantity string) {
	t.Helper()

	p, q := d(price), d(quantity)
	if side == orderbook.BUY {
		if err := f.ledger.Freeze(f.ctx, userID, "USDT", p.Mul(q)); err != nil {
			t.Fatalf("freeze quote for order %d failed: %v", orderID, err)
		}
	} else {
		if err := f.ledger.Freeze(f.ctx, userID, "BTC", q); err != nil {
			t.Fatalf("freeze base for order %d failed: %v", orderID, err)
		}
	}

	cmd := pipeline.NewPlaceCommand(orderID, "BTCUSDT", userID, side, orderType, p, q)
	f.engine.Handle(f.ctx, cmd)
}

func (f *testFixture) book() *orderbook.OrderBook {
	return f.books.Book("BTCUSDT")
}

func TestLimitOrdersMatchAtMakerPrice(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USDT", "50100")

	// Seller rests at 50000, buyer crosses at 50100.
	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.BUY, orderbook.LIMIT, "50100", "1")

	if len(f.sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(f.sink.trades))
	}
	trade := f.sink.trades[0]
	if !trade.Price.Equal(d("50000")) {
		t.Errorf("expected trade at maker price 50000, got %s", trade.Price)
	}
	if trade.BuyUserID != 2 || trade.SellUserID != 1 {
		t.Errorf("unexpected trade parties: %+v", trade)
	}

	// Settlement: seller receives the notional, buyer the base.
	if got := f.ledger.GetAvailable(1, "USDT"); !got.Equal(d("50000")) {
		t.Errorf("seller USDT: expected 50000, got %s", got)
	}
	if got := f.ledger.GetAvailable(2, "BTC"); !got.Equal(d("1")) {
		t.Errorf("buyer BTC: expected 1, got %s", got)
	}
	// Price improvement: buyer reserved at 50100, paid 50000.
	if got := f.ledger.GetAvailable(2, "USDT"); !got.Equal(d("100")) {
		t.Errorf("buyer USDT refund: expected 100, got %s", got)
	}
	if got := f.ledger.GetFrozen(2, "USDT"); !got.Equal(decimal.Zero) {
		t.Errorf("buyer frozen USDT: expected 0, got %s", got)
	}
	if got := f.ledger.GetFrozen(1, "BTC"); !got.Equal(decimal.Zero) {
		t.Errorf("seller frozen BTC: expected 0, got %s", got)
	}
}

func TestRestingBuyIsMakerForIncomingSell(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "USDT", "5000")
	f.fund(t, 2, "BTC", "0.05")

	// Buy rests first; the cheaper sell takes at the buy's price.
	f.place(t, 1, 1, orderbook.BUY, orderbook.LIMIT, "50000", "0.1")
	f.place(t, 2, 2, orderbook.SELL, orderbook.LIMIT, "49999", "0.05")

	if len(f.sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(f.sink.trades))
	}
	trade := f.sink.trades[0]
	if !trade.Price.Equal(d("50000")) || !trade.Quantity.Equal(d("0.05")) {
		t.Errorf("expected 0.05 @ 50000, got %s @ %s", trade.Quantity, trade.Price)
	}

	buy := f.book().GetOrder(1)
	if buy == nil || !buy.Remaining.Equal(d("0.05")) {
		t.Fatalf("expected buy resting with 0.05 remaining, got %+v", buy)
	}
	sell := f.book().GetHistoricalOrder(2)
	if sell == nil || sell.Status != orderbook.StatusFilled {
		t.Fatalf("expected sell filled and archived, got %+v", sell)
	}
	// Seller is paid the maker's (higher) price.
	if got := f.ledger.GetAvailable(2, "USDT"); !got.Equal(d("2500")) {
		t.Errorf("expected seller to receive 2500, got %s", got)
	}
}

func TestIocOnEmptyBookCancelsOutright(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "USDT", "3000")

	f.place(t, 1, 1, orderbook.BUY, orderbook.IOC, "3000", "1")

	if len(f.sink.trades) != 0 {
		t.Fatalf("expected zero trades, got %d", len(f.sink.trades))
	}
	order := f.book().GetHistoricalOrder(1)
	if order == nil || order.Status != orderbook.StatusCancelled {
		t.Fatalf("expected CANCELLED and archived, got %+v", order)
	}
	if !f.book().IsEmpty() {
		t.Error("nothing may rest after an IOC on an empty book")
	}
	if got := f.ledger.GetAvailable(1, "USDT"); !got.Equal(d("3000")) {
		t.Errorf("expected full balance back, got %s", got)
	}
}

func TestPartialFillRestsRemainder(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "2")
	f.fund(t, 2, "USDT", "500000")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "2")
	f.place(t, 2, 2, orderbook.BUY, orderbook.LIMIT, "50000", "5")

	buy := f.book().GetOrder(2)
	if buy == nil {
		t.Fatal("expected buy remainder to rest")
	}
	if buy.Status != orderbook.StatusPartiallyFilled {
		t.Errorf("expected PARTIALLY_FILLED, got %s", buy.Status)
	}
	if !buy.Filled.Equal(d("2")) || !buy.Remaining.Equal(d("3")) {
		t.Errorf("expected filled 2 remaining 3, got %s/%s", buy.Filled, buy.Remaining)
	}

	// The remainder's reservation stays frozen.
	if got := f.ledger.GetFrozen(2, "USDT"); !got.Equal(d("150000")) {
		t.Errorf("expected 150000 still frozen, got %s", got)
	}

	if bid, ok := f.book().BestBidPrice(); !ok || !bid.Equal(d("50000")) {
		t.Errorf("expected remainder as best bid 50000, got %s ok=%v", bid, ok)
	}
}

func TestMarketOrderSweepsLevelsAndCancelsRemainder(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "BTC", "1")
	f.fund(t, 3, "USDT", "151500")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.SELL, orderbook.LIMIT, "50500", "1")

	// Market buy for 3, only 2 available. The command carries the price
	// the reservation was computed from.
	f.place(t, 3, 3, orderbook.BUY, orderbook.MARKET, "50500", "3")

	if len(f.sink.trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(f.sink.trades))
	}
	if !f.sink.trades[0].Price.Equal(d("50000")) || !f.sink.trades[1].Price.Equal(d("50500")) {
		t.Errorf("expected sweep 50000 then 50500, got %s/%s",
			f.sink.trades[0].Price, f.sink.trades[1].Price)
	}

	order := f.book().GetHistoricalOrder(3)
	if order == nil {
		t.Fatal("expected market order archived")
	}
	if order.Status != orderbook.StatusCancelled {
		t.Errorf("expected remainder CANCELLED, got %s", order.Status)
	}
	if !order.Filled.Equal(d("2")) {
		t.Errorf("expected filled 2, got %s", order.Filled)
	}

	// Market orders never rest.
	if _, ok := f.book().BestBidPrice(); ok {
		t.Error("market order must not rest on the book")
	}
	// Everything reserved was either settled or released.
	if got := f.ledger.GetFrozen(3, "USDT"); !got.Equal(decimal.Zero) {
		t.Errorf("expected no USDT left frozen, got %s", got)
	}
}

func TestIocFillsWhatItCanAndCancelsRest(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USDT", "250000")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.BUY, orderbook.IOC, "50000", "5")

	if len(f.sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(f.sink.trades))
	}

	order := f.book().GetHistoricalOrder(2)
	if order == nil || order.Status != orderbook.StatusCancelled {
		t.Fatalf("expected IOC remainder cancelled and archived, got %+v", order)
	}
	// 4 unfilled at 50000 released back to available.
	if got := f.ledger.GetFrozen(2, "USDT"); !got.Equal(decimal.Zero) {
		t.Errorf("expected no USDT frozen after IOC, got %s", got)
	}
	if got := f.ledger.GetAvailable(2, "USDT"); !got.Equal(d("200000")) {
		t.Errorf("expected 200000 USDT released, got %s", got)
	}
}

func TestFokRejectsWhenLiquidityInsufficient(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USDT", "250000")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.BUY, orderbook.FOK, "50000", "5")

	// All or nothing: no partial execution happened.
	if len(f.sink.trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(f.sink.trades))
	}
	maker := f.book().GetOrder(1)
	if maker == nil || !maker.Remaining.Equal(d("1")) {
		t.Errorf("maker must be untouched, got %+v", maker)
	}

	order := f.book().GetHistoricalOrder(2)
	if order == nil || order.Status != orderbook.StatusCancelled {
		t.Fatalf("expected FOK cancelled and archived, got %+v", order)
	}
	if got := f.ledger.GetFrozen(2, "USDT"); !got.Equal(decimal.Zero) {
		t.Errorf("expected full reservation released, got %s", got)
	}
}

func TestFokFillsWhenLiquiditySuffices(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "3")
	f.fund(t, 2, "BTC", "3")
	f.fund(t, 3, "USDT", "300000")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "3")
	f.place(t, 2, 2, orderbook.SELL, orderbook.LIMIT, "50100", "3")
	f.place(t, 3, 3, orderbook.BUY, orderbook.FOK, "50100", "5")

	if len(f.sink.trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(f.sink.trades))
	}

	order := f.book().GetHistoricalOrder(3)
	if order == nil || order.Status != orderbook.StatusFilled {
		t.Fatalf("expected FOK filled, got %+v", order)
	}
	if got := f.ledger.GetAvailable(3, "BTC"); !got.Equal(d("5")) {
		t.Errorf("expected buyer to hold 5 BTC, got %s", got)
	}
}

func TestPostOnlyRejectsWhenCrossing(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USDT", "50000")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.BUY, orderbook.POST_ONLY, "50000", "1")

	if len(f.sink.trades) != 0 {
		t.Fatalf("post-only must never take liquidity, got %d trades", len(f.sink.trades))
	}

	order := f.book().GetHistoricalOrder(2)
	if order == nil || order.Status != orderbook.StatusRejected {
		t.Fatalf("expected REJECTED, got %+v", order)
	}
	if got := f.ledger.GetFrozen(2, "USDT"); !got.Equal(decimal.Zero) {
		t.Errorf("expected reservation released on reject, got %s", got)
	}
}

func TestPostOnlyRestsWhenNotCrossing(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USDT", "49900")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.BUY, orderbook.POST_ONLY, "49900", "1")

	order := f.book().GetOrder(2)
	if order == nil || order.Status != orderbook.StatusNew {
		t.Fatalf("expected post-only order resting as NEW, got %+v", order)
	}
	if got := f.ledger.GetFrozen(2, "USDT"); !got.Equal(d("49900")) {
		t.Errorf("expected reservation kept while resting, got %s", got)
	}
}

func TestCancelReleasesRemainderAndArchives(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "USDT", "100000")

	f.place(t, 1, 1, orderbook.BUY, orderbook.LIMIT, "50000", "2")
	f.engine.Handle(f.ctx, pipeline.NewCancelCommand(1, "BTCUSDT", 1))

	if f.book().GetOrder(1) != nil {
		t.Error("cancelled order must leave the active book")
	}
	order := f.book().GetHistoricalOrder(1)
	if order == nil || order.Status != orderbook.StatusCancelled {
		t.Fatalf("expected CANCELLED in history, got %+v", order)
	}
	if got := f.ledger.GetAvailable(1, "USDT"); !got.Equal(d("100000")) {
		t.Errorf("expected full reservation back, got %s", got)
	}
}

func TestCancelUnknownOrderIsNoop(t *testing.T) {
	f := newFixture()
	f.engine.Handle(f.ctx, pipeline.NewCancelCommand(42, "BTCUSDT", 1))

	if f.book().GetHistoricalOrder(42) != nil {
		t.Error("unknown cancel must not create history")
	}
}

func TestModifyReplacesTermsAndAdjustsFreeze(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "USDT", "200000")

	f.place(t, 1, 1, orderbook.BUY, orderbook.LIMIT, "50000", "2")
	f.engine.Handle(f.ctx, pipeline.NewModifyCommand(1, "BTCUSDT", 1, d("49000"), d("3")))

	order := f.book().GetOrder(1)
	if order == nil {
		t.Fatal("expected modified order on the book")
	}
	if !order.Price.Equal(d("49000")) || !order.Quantity.Equal(d("3")) {
		t.Errorf("expected price 49000 qty 3, got %s/%s", order.Price, order.Quantity)
	}
	if order.Status != orderbook.StatusNew {
		t.Errorf("modify resets fill state, got %s", order.Status)
	}
	// Old 100000 released, new 147000 frozen.
	if got := f.ledger.GetFrozen(1, "USDT"); !got.Equal(d("147000")) {
		t.Errorf("expected frozen 147000, got %s", got)
	}
	// The replaced order leaves the same trace a cancel would.
	replaced := f.book().GetHistoricalOrder(1)
	if replaced == nil || replaced.Status != orderbook.StatusCancelled {
		t.Errorf("expected replaced order archived as CANCELLED, got %+v", replaced)
	}
	if !replaced.Price.Equal(d("50000")) || !replaced.Quantity.Equal(d("2")) {
		t.Errorf("archived trace must keep the old terms, got %s/%s", replaced.Price, replaced.Quantity)
	}
}

func TestModifyResetsTimePriority(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "USDT", "100000")
	f.fund(t, 2, "USDT", "100000")
	f.fund(t, 3, "BTC", "1")

	f.place(t, 1, 1, orderbook.BUY, orderbook.LIMIT, "50000", "1")
	f.place(t, 2, 2, orderbook.BUY, orderbook.LIMIT, "50000", "1")

	// Order 1 modifies quantity only; it moves behind order 2.
	f.engine.Handle(f.ctx, pipeline.NewModifyCommand(1, "BTCUSDT", 1, decimal.Zero, d("2")))

	f.place(t, 3, 3, orderbook.SELL, orderbook.LIMIT, "50000", "1")

	if len(f.sink.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(f.sink.trades))
	}
	if f.sink.trades[0].BuyOrderID != 2 {
		t.Errorf("expected order 2 to match first after modify, got buy order %d", f.sink.trades[0].BuyOrderID)
	}
}

func TestModifyRejectedWhenFundsShort(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "USDT", "100000")

	f.place(t, 1, 1, orderbook.BUY, orderbook.LIMIT, "50000", "2")
	// New terms need 300000 but only 100000 exists in total.
	f.engine.Handle(f.ctx, pipeline.NewModifyCommand(1, "BTCUSDT", 1, d("50000"), d("6")))

	order := f.book().GetHistoricalOrder(1)
	if order == nil || order.Status != orderbook.StatusRejected {
		t.Fatalf("expected modify rejected, got %+v", order)
	}
	if f.book().GetOrder(1) != nil {
		t.Error("rejected modify must not leave an active order")
	}
	// The original reservation was released before the failed refreeze.
	if got := f.ledger.GetAvailable(1, "USDT"); !got.Equal(d("100000")) {
		t.Errorf("expected 100000 available, got %s", got)
	}
}

func TestUnknownCommandTypeIsIgnored(t *testing.T) {
	f := newFixture()
	f.engine.Handle(f.ctx, &pipeline.Command{Type: "NO_SUCH_TYPE", Symbol: "BTCUSDT"})

	if len(f.sink.updates) != 0 || len(f.sink.trades) != 0 {
		t.Error("unknown command must emit nothing")
	}
}

func TestSystemBalancesConservedThroughMatching(t *testing.T) {
	f := newFixture()
	f.fund(t, 1, "BTC", "5")
	f.fund(t, 2, "USDT", "500000")

	f.place(t, 1, 1, orderbook.SELL, orderbook.LIMIT, "50000", "3")
	f.place(t, 2, 2, orderbook.BUY, orderbook.LIMIT, "50000", "5")
	f.engine.Handle(f.ctx, pipeline.NewCancelCommand(2, "BTCUSDT", 2))

	btc := f.ledger.GetTotal(1, "BTC").Add(f.ledger.GetTotal(2, "BTC"))
	usdt := f.ledger.GetTotal(1, "USDT").Add(f.ledger.GetTotal(2, "USDT"))
	if !btc.Equal(d("5")) {
		t.Errorf("BTC not conserved: %s", btc)
	}
	if !usdt.Equal(d("500000")) {
		t.Errorf("USDT not conserved: %s", usdt)
	}
}

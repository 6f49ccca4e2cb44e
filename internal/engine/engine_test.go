package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-strategy-engine/internal/exchange"
	"crypto-strategy-engine/internal/risk"
	"crypto-strategy-engine/internal/strategy"
)

type placedOrder struct {
	symbol   string
	side     string
	quantity float64
}

// stubClient is a scriptable exchange for lifecycle tests
type stubClient struct {
	price     float64
	balance   float64
	lotStep   float64
	klinesErr error
	priceErr  error
	orderErr  error
	orders    []placedOrder
}

func (c *stubClient) GetKlines(symbol, interval string, limit int) ([]exchange.Kline, error) {
	if c.klinesErr != nil {
		return nil, c.klinesErr
	}
	return make([]exchange.Kline, limit), nil
}

func (c *stubClient) GetCurrentPrice(symbol string) (float64, error) {
	if c.priceErr != nil {
		return 0, c.priceErr
	}
	return c.price, nil
}

func (c *stubClient) GetBalances() (map[string]float64, error) {
	return map[string]float64{"USDT": c.balance}, nil
}

func (c *stubClient) GetLotStep(symbol string) (float64, error) {
	return c.lotStep, nil
}

func (c *stubClient) PlaceMarketOrder(symbol, side string, quantity float64) (*exchange.OrderResponse, error) {
	if c.orderErr != nil {
		return nil, c.orderErr
	}
	c.orders = append(c.orders, placedOrder{symbol, side, quantity})
	return &exchange.OrderResponse{
		Symbol:      symbol,
		OrderID:     int64(len(c.orders)),
		Side:        side,
		Status:      "FILLED",
		Price:       c.price,
		OrigQty:     quantity,
		ExecutedQty: quantity,
	}, nil
}

// stubStrategy emits a fixed signal and exit decision
type stubStrategy struct {
	signal strategy.Signal
	params strategy.Params
	exit   bool
}

func (s *stubStrategy) Name() string            { return "Stub-BTCUSDT-1m" }
func (s *stubStrategy) Symbol() string          { return "BTCUSDT" }
func (s *stubStrategy) Interval() string        { return "1m" }
func (s *stubStrategy) Params() strategy.Params { return s.params }
func (s *stubStrategy) Evaluate(klines []exchange.Kline, price float64) strategy.Signal {
	return s.signal
}
func (s *stubStrategy) ShouldExit(klines []exchange.Kline, price float64, side string) (bool, string) {
	return s.exit, "stub exit"
}

type stubStore struct {
	records []*TradeRecord
}

func (s *stubStore) SaveTradeRecord(ctx context.Context, record *TradeRecord) error {
	s.records = append(s.records, record)
	return nil
}

func longSignal() strategy.Signal {
	return strategy.Signal{Type: strategy.SignalLong, Symbol: "BTCUSDT", Price: 100}
}

func newTestEngine(client *stubClient, strat *stubStrategy, store *stubStore) *Engine {
	sizer := risk.NewSizer(risk.SizerConfig{
		RiskFraction:     0.02,
		StopLossFraction: 0.02,
		MinBalance:       10,
	}, zerolog.Nop())
	var ts TradeStore
	if store != nil {
		ts = store
	}
	return New(Config{
		Strategy: strat,
		Client:   client,
		Sizer:    sizer,
		Store:    ts,
		Logger:   zerolog.Nop(),
	})
}

func TestTickOpensPosition(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{signal: longSignal()}
	e := newTestEngine(client, strat, nil)

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	pos := e.Position("BTCUSDT")
	if pos == nil {
		t.Fatal("expected an open position")
	}
	if pos.Side != exchange.SideBuy {
		t.Errorf("side = %s, want BUY", pos.Side)
	}
	// Notional is min(1000*0.02/0.02, 10% of balance) = 100, so 1 unit at 100
	if pos.Quantity != 1 {
		t.Errorf("quantity = %f, want 1", pos.Quantity)
	}
	if pos.EntryPrice != 100 {
		t.Errorf("entry price = %f, want 100", pos.EntryPrice)
	}
	if len(client.orders) != 1 {
		t.Errorf("orders placed = %d, want 1", len(client.orders))
	}
}

func TestAtMostOnePositionPerSymbol(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{signal: longSignal()}
	e := newTestEngine(client, strat, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := e.Tick(ctx); err != nil {
			t.Fatalf("tick %d failed: %v", i, err)
		}
	}

	if len(client.orders) != 1 {
		t.Fatalf("orders placed = %d, want 1 while a position is open", len(client.orders))
	}
	if len(e.OpenPositions()) != 1 {
		t.Fatalf("open positions = %d, want 1", len(e.OpenPositions()))
	}
}

func TestOpenRejectsSecondPosition(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{signal: longSignal()}
	e := newTestEngine(client, strat, nil)

	ctx := context.Background()
	if err := e.open(ctx, longSignal(), 1, 100); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	err := e.open(ctx, longSignal(), 1, 100)
	if !errors.Is(err, ErrPositionExists) {
		t.Fatalf("expected ErrPositionExists, got %v", err)
	}
}

func TestMaxHoldBeatsTakeProfit(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{
		signal: longSignal(),
		params: strategy.Params{
			TakeProfit:  0.04,
			StopLoss:    0.025,
			MaxHoldTime: time.Hour,
		},
	}
	store := &stubStore{}
	e := newTestEngine(client, strat, store)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	// Position is stale and in profit at the same time
	e.positions["BTCUSDT"].EntryTime = time.Now().Add(-2 * time.Hour)
	client.price = 110

	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if e.Position("BTCUSDT") != nil {
		t.Fatal("expected position closed")
	}
	if len(store.records) != 1 {
		t.Fatalf("trade records = %d, want 1", len(store.records))
	}
	if store.records[0].Reason != CloseMaxHold {
		t.Errorf("close reason = %s, want %s", store.records[0].Reason, CloseMaxHold)
	}
}

func TestTakeProfitBoundary(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{
		signal: longSignal(),
		params: strategy.Params{
			TakeProfit:  0.04,
			StopLoss:    0.025,
			MaxHoldTime: time.Hour,
		},
	}
	store := &stubStore{}
	e := newTestEngine(client, strat, store)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	// Just short of the take-profit boundary: position rides
	client.price = 103.9
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if e.Position("BTCUSDT") == nil {
		t.Fatal("position closed below the take-profit boundary")
	}

	// Exactly on the boundary: position closes
	client.price = 104
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if e.Position("BTCUSDT") != nil {
		t.Fatal("position still open at the take-profit boundary")
	}

	if len(store.records) != 1 || store.records[0].Reason != CloseTakeProfit {
		t.Fatalf("expected one take_profit record, got %+v", store.records)
	}
	// 1 unit bought at 100, sold at 104
	if store.records[0].PnL != 4 {
		t.Errorf("pnl = %f, want 4", store.records[0].PnL)
	}

	summary := e.Summary()
	if summary.TotalTrades != 1 || summary.WinningTrades != 1 || summary.WinRate != 1 {
		t.Errorf("summary = %+v, want one winning trade", summary)
	}
}

func TestStopLossClosesAtLoss(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{
		signal: longSignal(),
		params: strategy.Params{TakeProfit: 0.04, StopLoss: 0.025},
	}
	store := &stubStore{}
	e := newTestEngine(client, strat, store)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	client.price = 97
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.records) != 1 || store.records[0].Reason != CloseStopLoss {
		t.Fatalf("expected one stop_loss record, got %+v", store.records)
	}
	if store.records[0].PnL != -3 {
		t.Errorf("pnl = %f, want -3", store.records[0].PnL)
	}
	if e.Summary().WinRate != 0 {
		t.Errorf("win rate = %f, want 0", e.Summary().WinRate)
	}
}

func TestShortPositionPnL(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{
		signal: strategy.Signal{Type: strategy.SignalShort, Symbol: "BTCUSDT", Price: 100},
		params: strategy.Params{TakeProfit: 0.04, StopLoss: 0.025},
	}
	store := &stubStore{}
	e := newTestEngine(client, strat, store)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	pos := e.Position("BTCUSDT")
	if pos == nil || pos.Side != exchange.SideSell {
		t.Fatalf("expected open short, got %+v", pos)
	}

	// Price falls 5%: a short is in profit past the 4% target
	client.price = 95
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.records) != 1 || store.records[0].Reason != CloseTakeProfit {
		t.Fatalf("expected take_profit record, got %+v", store.records)
	}
	if store.records[0].PnL != 5 {
		t.Errorf("pnl = %f, want 5", store.records[0].PnL)
	}
	// Closing a short means buying back
	if got := client.orders[1].side; got != exchange.SideBuy {
		t.Errorf("close side = %s, want BUY", got)
	}
}

func TestReversalExit(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{
		signal: longSignal(),
		params: strategy.Params{TakeProfit: 0.04, StopLoss: 0.025},
	}
	store := &stubStore{}
	e := newTestEngine(client, strat, store)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	// Price barely moved, but the strategy wants out
	strat.exit = true
	client.price = 100.5
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.records) != 1 || store.records[0].Reason != CloseReversal {
		t.Fatalf("expected signal_reversal record, got %+v", store.records)
	}
}

func TestExitOrderFailureKeepsPosition(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{
		signal: longSignal(),
		params: strategy.Params{TakeProfit: 0.04, StopLoss: 0.025},
	}
	e := newTestEngine(client, strat, nil)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	client.price = 110
	client.orderErr = exchange.ErrExecution
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if e.Position("BTCUSDT") == nil {
		t.Fatal("position dropped even though the exit order failed")
	}
	if e.Summary().TotalTrades != 0 {
		t.Error("stats recorded a trade that never closed")
	}

	// Next tick the order goes through
	client.orderErr = nil
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if e.Position("BTCUSDT") != nil {
		t.Fatal("expected position closed once the exchange recovered")
	}
}

func TestDataUnavailableSkipsTick(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000, klinesErr: exchange.ErrDataUnavailable}
	strat := &stubStrategy{signal: longSignal()}
	e := newTestEngine(client, strat, nil)

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("tick returned error on data failure: %v", err)
	}
	if len(client.orders) != 0 {
		t.Error("order placed without market data")
	}
}

func TestSizingRejectionIsNoOp(t *testing.T) {
	client := &stubClient{price: 100, balance: 5} // below the 10 minimum
	strat := &stubStrategy{signal: longSignal()}
	e := newTestEngine(client, strat, nil)

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(client.orders) != 0 {
		t.Error("order placed despite sizing rejection")
	}
}

func TestShutdownFlattensPositions(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{signal: longSignal()}
	store := &stubStore{}
	e := newTestEngine(client, strat, store)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	e.Shutdown(ctx)

	if len(e.OpenPositions()) != 0 {
		t.Fatal("expected all positions flattened")
	}
	if len(store.records) != 1 || store.records[0].Reason != CloseShutdown {
		t.Fatalf("expected shutdown record, got %+v", store.records)
	}
}

func TestShutdownLeavesUnpricedPositionOpen(t *testing.T) {
	client := &stubClient{price: 100, balance: 1000}
	strat := &stubStrategy{signal: longSignal()}
	e := newTestEngine(client, strat, nil)

	ctx := context.Background()
	if err := e.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	client.priceErr = exchange.ErrDataUnavailable
	e.Shutdown(ctx)

	if len(e.OpenPositions()) != 1 {
		t.Fatal("position should stay open when it cannot be priced")
	}
}

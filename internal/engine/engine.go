package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-strategy-engine/internal/events"
	"crypto-strategy-engine/internal/exchange"
	"crypto-strategy-engine/internal/risk"
	"crypto-strategy-engine/internal/strategy"
)

// ErrPositionExists is returned when an entry is attempted for a
// symbol that already has an open position. The engine checks before
// every entry, so seeing this error means a caller bypassed Tick.
var ErrPositionExists = errors.New("position already open for symbol")

// Close reasons, in the order the engine checks them. Max hold is
// always evaluated first so a stale position leaves the book even when
// take profit or stop loss would also fire on the same tick.
const (
	CloseMaxHold    = "max_hold"
	CloseTakeProfit = "take_profit"
	CloseStopLoss   = "stop_loss"
	CloseReversal   = "signal_reversal"
	CloseManual     = "manual"
	CloseShutdown   = "shutdown"
)

// Position is an open exposure the engine is managing
type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTime    time.Time `json:"entry_time"`
	OrderID      int64     `json:"order_id"`
	StrategyName string    `json:"strategy_name"`
}

// PnLFraction returns the unrealized gain or loss as a fraction of the
// entry price, sign-adjusted for the position side.
func (p *Position) PnLFraction(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == exchange.SideBuy {
		return (currentPrice - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - currentPrice) / p.EntryPrice
}

// RealizedPnL returns the quote-currency profit at the given exit price
func (p *Position) RealizedPnL(exitPrice float64) float64 {
	pnl := (exitPrice - p.EntryPrice) * p.Quantity
	if p.Side == exchange.SideSell {
		pnl = -pnl
	}
	return pnl
}

// TradeRecord is the immutable record written when a position closes
type TradeRecord struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	PnL          float64   `json:"pnl"`
	PnLPercent   float64   `json:"pnl_percent"`
	StrategyName string    `json:"strategy_name"`
	Reason       string    `json:"reason"`
}

// TradeStore persists closed trades. A nil store disables persistence
// without changing engine behavior.
type TradeStore interface {
	SaveTradeRecord(ctx context.Context, record *TradeRecord) error
}

// Config wires an engine's collaborators
type Config struct {
	Strategy   strategy.Strategy
	Client     exchange.ExchangeClient
	Sizer      *risk.Sizer
	Store      TradeStore        // optional
	Bus        *events.EventBus  // optional
	Logger     zerolog.Logger
	QuoteAsset string // defaults to USDT
}

// Engine drives one strategy through the position lifecycle: evaluate,
// size, enter, monitor exits in priority order, close, record. Tick is
// meant to be called from a single goroutine; the mutex only protects
// concurrent readers like the API layer.
type Engine struct {
	id         string
	strat      strategy.Strategy
	client     exchange.ExchangeClient
	sizer      *risk.Sizer
	store      TradeStore
	bus        *events.EventBus
	logger     zerolog.Logger
	quoteAsset string

	mu        sync.RWMutex
	positions map[string]*Position
	stats     Stats
}

func New(cfg Config) *Engine {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &Engine{
		id:         uuid.New().String(),
		strat:      cfg.Strategy,
		client:     cfg.Client,
		sizer:      cfg.Sizer,
		store:      cfg.Store,
		bus:        cfg.Bus,
		quoteAsset: cfg.QuoteAsset,
		logger: cfg.Logger.With().
			Str("component", "engine").
			Str("strategy", cfg.Strategy.Name()).
			Logger(),
		positions: make(map[string]*Position),
	}
}

// ID returns the engine's unique identifier
func (e *Engine) ID() string {
	return e.id
}

// Strategy returns the strategy this engine drives
func (e *Engine) Strategy() strategy.Strategy {
	return e.strat
}

// Tick runs one evaluation cycle. Market-data and execution failures
// are logged and skipped; the position simply carries over to the next
// tick. The only error returned is ErrPositionExists, which signals a
// broken invariant rather than a market condition.
func (e *Engine) Tick(ctx context.Context) error {
	symbol := e.strat.Symbol()
	params := e.strat.Params()

	limit := params.CandleLimit
	if limit == 0 {
		limit = 100
	}

	klines, err := e.client.GetKlines(symbol, e.strat.Interval(), limit)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Market data unavailable, skipping tick")
		return nil
	}
	price, err := e.client.GetCurrentPrice(symbol)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Price unavailable, skipping tick")
		return nil
	}

	if pos := e.Position(symbol); pos != nil {
		e.checkExits(ctx, pos, klines, price)
		return nil
	}

	sig := e.strat.Evaluate(klines, price)
	if sig.Type == strategy.SignalHold {
		e.logger.Debug().Str("symbol", symbol).Str("reason", sig.Reason).Msg("Holding")
		return nil
	}

	if e.bus != nil {
		e.bus.PublishSignal(e.strat.Name(), symbol, string(sig.Type), sig.Reason, price)
	}

	balances, err := e.client.GetBalances()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Balance unavailable, skipping entry")
		return nil
	}

	qty := e.sizer.Quantity(balances[e.quoteAsset], price, e.lotStep(symbol))
	if qty <= 0 {
		e.logger.Debug().
			Str("symbol", symbol).
			Float64("balance", balances[e.quoteAsset]).
			Msg("Sizing rejected entry")
		return nil
	}

	return e.open(ctx, sig, qty, price)
}

// Position returns the open position for a symbol, or nil
func (e *Engine) Position(symbol string) *Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.positions[symbol]
}

// OpenPositions returns a snapshot of all open positions
func (e *Engine) OpenPositions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	return out
}

// ClosePosition closes the position for a symbol at the current market
// price, if one is open. Used by the API for operator-initiated exits.
func (e *Engine) ClosePosition(ctx context.Context, symbol string) error {
	pos := e.Position(symbol)
	if pos == nil {
		return fmt.Errorf("no open position for %s", symbol)
	}
	price, err := e.client.GetCurrentPrice(symbol)
	if err != nil {
		return err
	}
	return e.close(ctx, pos, price, CloseManual)
}

// Shutdown flattens every open position at the latest price. Positions
// whose price cannot be fetched are left open and logged, never
// silently dropped.
func (e *Engine) Shutdown(ctx context.Context) {
	for _, pos := range e.OpenPositions() {
		pos := pos
		price, err := e.client.GetCurrentPrice(pos.Symbol)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("symbol", pos.Symbol).
				Msg("Cannot price position during shutdown, leaving it open")
			continue
		}
		if err := e.close(ctx, &pos, price, CloseShutdown); err != nil {
			e.logger.Error().Err(err).
				Str("symbol", pos.Symbol).
				Msg("Failed to flatten position during shutdown")
		}
	}
}

func (e *Engine) lotStep(symbol string) float64 {
	step, err := e.client.GetLotStep(symbol)
	if err != nil {
		e.logger.Debug().Err(err).Str("symbol", symbol).Msg("Lot step unavailable, skipping rounding")
		return 0
	}
	return step
}

func (e *Engine) open(ctx context.Context, sig strategy.Signal, quantity, price float64) error {
	e.mu.Lock()
	if _, exists := e.positions[sig.Symbol]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", sig.Symbol, ErrPositionExists)
	}
	e.mu.Unlock()

	side := sig.Type.Side()
	order, err := e.client.PlaceMarketOrder(sig.Symbol, side, quantity)
	if err != nil {
		e.logger.Error().Err(err).
			Str("symbol", sig.Symbol).
			Str("side", side).
			Float64("quantity", quantity).
			Msg("Entry order failed")
		if e.bus != nil {
			e.bus.PublishError("engine", "entry order failed", err)
		}
		return nil
	}

	entryPrice := order.Price
	if entryPrice == 0 {
		entryPrice = price
	}

	pos := &Position{
		ID:           uuid.New().String(),
		Symbol:       sig.Symbol,
		Side:         side,
		Quantity:     order.ExecutedQty,
		EntryPrice:   entryPrice,
		EntryTime:    time.Now(),
		OrderID:      order.OrderID,
		StrategyName: e.strat.Name(),
	}
	if pos.Quantity == 0 {
		pos.Quantity = quantity
	}

	e.mu.Lock()
	e.positions[sig.Symbol] = pos
	e.mu.Unlock()

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", pos.Side).
		Float64("entry_price", pos.EntryPrice).
		Float64("quantity", pos.Quantity).
		Str("reason", sig.Reason).
		Msg("Position opened")

	if e.bus != nil {
		e.bus.PublishPositionOpened(e.strat.Name(), pos.Symbol, pos.Side, pos.EntryPrice, pos.Quantity)
	}
	return nil
}

func (e *Engine) checkExits(ctx context.Context, pos *Position, klines []exchange.Kline, price float64) {
	params := e.strat.Params()
	held := time.Since(pos.EntryTime)
	pnl := pos.PnLFraction(price)

	var reason string
	switch {
	case params.MaxHoldTime > 0 && held >= params.MaxHoldTime:
		reason = CloseMaxHold
	case params.TakeProfit > 0 && pnl >= params.TakeProfit:
		reason = CloseTakeProfit
	case params.StopLoss > 0 && pnl <= -params.StopLoss:
		reason = CloseStopLoss
	default:
		if exit, why := e.strat.ShouldExit(klines, price, pos.Side); exit {
			reason = CloseReversal
			e.logger.Debug().Str("symbol", pos.Symbol).Str("why", why).Msg("Strategy requested exit")
		}
	}

	if reason == "" {
		return
	}
	if err := e.close(ctx, pos, price, reason); err != nil {
		e.logger.Error().Err(err).
			Str("symbol", pos.Symbol).
			Str("reason", reason).
			Msg("Exit order failed, position stays open")
	}
}

func (e *Engine) close(ctx context.Context, pos *Position, price float64, reason string) error {
	order, err := e.client.PlaceMarketOrder(pos.Symbol, exchange.OppositeSide(pos.Side), pos.Quantity)
	if err != nil {
		if e.bus != nil {
			e.bus.PublishError("engine", "exit order failed", err)
		}
		return err
	}

	exitPrice := order.Price
	if exitPrice == 0 {
		exitPrice = price
	}
	pnl := pos.RealizedPnL(exitPrice)

	e.mu.Lock()
	delete(e.positions, pos.Symbol)
	e.stats.record(pnl)
	e.mu.Unlock()

	record := &TradeRecord{
		ID:           uuid.New().String(),
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		Quantity:     pos.Quantity,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		EntryTime:    pos.EntryTime,
		ExitTime:     time.Now(),
		PnL:          pnl,
		PnLPercent:   pos.PnLFraction(exitPrice) * 100,
		StrategyName: pos.StrategyName,
		Reason:       reason,
	}
	if e.store != nil {
		if err := e.store.SaveTradeRecord(ctx, record); err != nil {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Failed to persist trade record")
		}
	}

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", pos.Side).
		Str("reason", reason).
		Float64("entry_price", pos.EntryPrice).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnl).
		Msg("Position closed")

	if e.bus != nil {
		e.bus.PublishPositionClosed(pos.StrategyName, pos.Symbol, reason,
			pos.EntryPrice, exitPrice, pos.Quantity, pnl, record.PnLPercent)
	}
	return nil
}

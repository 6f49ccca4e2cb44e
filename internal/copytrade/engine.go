package copytrade

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-strategy-engine/internal/engine"
	"crypto-strategy-engine/internal/events"
	"crypto-strategy-engine/internal/exchange"
)

// Close reasons for replicated positions, checked in this order
const (
	CloseMaxHold    = "max_hold"
	CloseTakeProfit = "take_profit"
	CloseStopLoss   = "stop_loss"
	CloseShutdown   = "shutdown"
)

// Config wires the replication engine's collaborators and policy
type Config struct {
	Client    exchange.ExchangeClient
	Feed      LeaderFeed
	Tracker   CopyTracker       // optional
	Store     CopyStore         // optional
	Trades    engine.TradeStore // optional
	Bus       *events.EventBus  // optional
	Logger    zerolog.Logger
	Leaders   []Leader
	Followers []Follower

	// ScoreFloor is the minimum leader score for replication
	ScoreFloor float64

	// TakeProfit and StopLoss are exit fractions for copied positions
	TakeProfit float64
	StopLoss   float64

	// MaxHoldTime bounds how long a copy stays open
	MaxHoldTime time.Duration

	// CopyWindow is how far back fresh fills are considered for copying
	CopyWindow time.Duration

	// ScoreWindow is the history span leader scores are computed over
	ScoreWindow time.Duration
}

// Engine mirrors admissible leader fills onto follower accounts and
// manages the resulting positions through the same exit discipline as
// the strategy engines. Each leader order is copied at most once,
// whichever follower ends up taking it.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.RWMutex
	copies map[string]*CopyRecord
	copied map[string]bool
	daily  map[string]*dailyCount
	stats  copyStats
}

type dailyCount struct {
	day   string
	count int
}

type copyStats struct {
	total  int
	wins   int
	profit float64
}

// Summary is a point-in-time view of the replication engine
type Summary struct {
	TotalCopies   int          `json:"total_copies"`
	WinningCopies int          `json:"winning_copies"`
	WinRate       float64      `json:"win_rate"`
	TotalProfit   float64      `json:"total_profit"`
	OpenCopies    []CopyRecord `json:"open_copies"`
}

func New(cfg Config) *Engine {
	if cfg.ScoreFloor == 0 {
		cfg.ScoreFloor = 0.6
	}
	if cfg.TakeProfit == 0 {
		cfg.TakeProfit = 0.03
	}
	if cfg.StopLoss == 0 {
		cfg.StopLoss = 0.02
	}
	if cfg.MaxHoldTime == 0 {
		cfg.MaxHoldTime = 2 * time.Hour
	}
	if cfg.CopyWindow == 0 {
		cfg.CopyWindow = 5 * time.Minute
	}
	if cfg.ScoreWindow == 0 {
		cfg.ScoreWindow = 7 * 24 * time.Hour
	}
	return &Engine{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "copytrade").Logger(),
		copies: make(map[string]*CopyRecord),
		copied: make(map[string]bool),
		daily:  make(map[string]*dailyCount),
	}
}

// Tick runs one replication cycle: manage open copies first, then look
// for fresh leader fills to mirror. Feed and data failures are logged
// and retried next cycle.
func (e *Engine) Tick(ctx context.Context) {
	e.checkExits(ctx)
	e.replicate(ctx)
}

// OpenCopies returns a snapshot of the open replicated positions
func (e *Engine) OpenCopies() []CopyRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]CopyRecord, 0, len(e.copies))
	for _, c := range e.copies {
		out = append(out, *c)
	}
	return out
}

// Summary snapshots statistics and open copies
func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	winRate := 0.0
	if e.stats.total > 0 {
		winRate = float64(e.stats.wins) / float64(e.stats.total)
	}
	open := make([]CopyRecord, 0, len(e.copies))
	for _, c := range e.copies {
		open = append(open, *c)
	}
	return Summary{
		TotalCopies:   e.stats.total,
		WinningCopies: e.stats.wins,
		WinRate:       winRate,
		TotalProfit:   e.stats.profit,
		OpenCopies:    open,
	}
}

// Shutdown flattens every open copy at the latest price. Copies that
// cannot be priced stay open and are logged.
func (e *Engine) Shutdown(ctx context.Context) {
	for _, rec := range e.OpenCopies() {
		rec := rec
		price, err := e.cfg.Client.GetCurrentPrice(rec.Symbol)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("copy_id", rec.CopyID).
				Msg("Cannot price copy during shutdown, leaving it open")
			continue
		}
		e.closeCopy(ctx, &rec, price, CloseShutdown)
	}
}

func (e *Engine) replicate(ctx context.Context) {
	now := time.Now()
	for _, leader := range e.cfg.Leaders {
		fills, err := e.cfg.Feed.RecentFills(leader.ID, now.Add(-e.cfg.ScoreWindow))
		if err != nil {
			e.logger.Warn().Err(err).Str("leader_id", leader.ID).Msg("Leader feed unavailable")
			continue
		}

		score := Score(fills)
		if score < e.cfg.ScoreFloor {
			e.logger.Debug().
				Str("leader_id", leader.ID).
				Float64("score", score).
				Msg("Leader below score floor")
			continue
		}

		cutoff := now.Add(-e.cfg.CopyWindow)
		for _, fill := range fills {
			if fill.Time.Before(cutoff) {
				continue
			}
			e.maybeCopy(ctx, leader, fill, score)
		}
	}
}

func (e *Engine) maybeCopy(ctx context.Context, leader Leader, fill LeaderFill, score float64) {
	id := fill.CopyID()
	if e.alreadyCopied(ctx, id) {
		return
	}

	notional := fill.Price * fill.Quantity
	if notional < leader.MinNotional {
		return
	}
	if leader.MaxNotional > 0 && notional > leader.MaxNotional {
		return
	}

	price, err := e.cfg.Client.GetCurrentPrice(fill.Symbol)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", fill.Symbol).Msg("Cannot price copy candidate")
		return
	}
	step, err := e.cfg.Client.GetLotStep(fill.Symbol)
	if err != nil {
		step = 0
	}

	// First follower that can take the copy wins it
	for _, follower := range e.cfg.Followers {
		if e.copiesToday(ctx, follower.ID) >= follower.MaxDailyCopies {
			continue
		}

		qty := scaleQuantity(notional, follower.CopyRatio, fill.Price, step)
		if qty <= 0 {
			continue
		}

		order, err := e.cfg.Client.PlaceMarketOrder(fill.Symbol, fill.Side, qty)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("copy_id", id).
				Str("follower_id", follower.ID).
				Msg("Copy order failed")
			continue
		}

		entryPrice := order.Price
		if entryPrice == 0 {
			entryPrice = price
		}
		rec := &CopyRecord{
			CopyID:     id,
			LeaderID:   leader.ID,
			FollowerID: follower.ID,
			Symbol:     fill.Symbol,
			Side:       fill.Side,
			Quantity:   qty,
			EntryPrice: entryPrice,
			EntryTime:  time.Now(),
			OrderID:    order.OrderID,
		}

		e.mu.Lock()
		e.copies[id] = rec
		e.copied[id] = true
		e.bumpDaily(follower.ID)
		e.mu.Unlock()

		e.markCopied(ctx, id, follower.ID)
		if e.cfg.Store != nil {
			if err := e.cfg.Store.SaveCopyRecord(ctx, rec); err != nil {
				e.logger.Warn().Err(err).Str("copy_id", id).Msg("Failed to persist copy record")
			}
		}

		e.logger.Info().
			Str("copy_id", id).
			Str("leader_id", leader.ID).
			Str("follower_id", follower.ID).
			Str("symbol", fill.Symbol).
			Str("side", fill.Side).
			Float64("quantity", qty).
			Float64("leader_score", score).
			Msg("Copied leader fill")

		if e.cfg.Bus != nil {
			e.cfg.Bus.PublishCopyExecuted(leader.ID, follower.ID, fill.Symbol, fill.Side, entryPrice, qty)
		}
		return
	}
}

// scaleQuantity converts a leader notional into a follower quantity at
// the leader's fill price, scaled by the copy ratio and floored to the
// lot step. The follower mirrors the leader's size, not the size the
// notional buys at whatever the market reads now.
func scaleQuantity(notional, ratio, fillPrice, step float64) float64 {
	if fillPrice <= 0 || ratio <= 0 {
		return 0
	}
	qty := notional * ratio / fillPrice
	if step > 0 {
		qty = math.Floor(qty/step+1e-9) * step
	}
	return qty
}

func (e *Engine) checkExits(ctx context.Context) {
	for _, rec := range e.OpenCopies() {
		rec := rec
		price, err := e.cfg.Client.GetCurrentPrice(rec.Symbol)
		if err != nil {
			e.logger.Warn().Err(err).Str("copy_id", rec.CopyID).Msg("Cannot price open copy")
			continue
		}

		pnlFrac := pnlFraction(rec.Side, rec.EntryPrice, price)
		held := time.Since(rec.EntryTime)

		var reason string
		switch {
		case held >= e.cfg.MaxHoldTime:
			reason = CloseMaxHold
		case pnlFrac >= e.cfg.TakeProfit:
			reason = CloseTakeProfit
		case pnlFrac <= -e.cfg.StopLoss:
			reason = CloseStopLoss
		default:
			continue
		}
		e.closeCopy(ctx, &rec, price, reason)
	}
}

func (e *Engine) closeCopy(ctx context.Context, rec *CopyRecord, price float64, reason string) {
	order, err := e.cfg.Client.PlaceMarketOrder(rec.Symbol, exchange.OppositeSide(rec.Side), rec.Quantity)
	if err != nil {
		e.logger.Error().Err(err).
			Str("copy_id", rec.CopyID).
			Str("reason", reason).
			Msg("Copy exit order failed, position stays open")
		return
	}

	exitPrice := order.Price
	if exitPrice == 0 {
		exitPrice = price
	}
	pnl := (exitPrice - rec.EntryPrice) * rec.Quantity
	if rec.Side == exchange.SideSell {
		pnl = -pnl
	}

	e.mu.Lock()
	delete(e.copies, rec.CopyID)
	e.stats.total++
	if pnl > 0 {
		e.stats.wins++
	}
	e.stats.profit += pnl
	e.mu.Unlock()

	if e.cfg.Store != nil {
		if err := e.cfg.Store.CloseCopyRecord(ctx, rec.CopyID, exitPrice, pnl); err != nil {
			e.logger.Warn().Err(err).Str("copy_id", rec.CopyID).Msg("Failed to close copy record")
		}
	}
	if e.cfg.Trades != nil {
		record := &engine.TradeRecord{
			ID:           uuid.New().String(),
			Symbol:       rec.Symbol,
			Side:         rec.Side,
			Quantity:     rec.Quantity,
			EntryPrice:   rec.EntryPrice,
			ExitPrice:    exitPrice,
			EntryTime:    rec.EntryTime,
			ExitTime:     time.Now(),
			PnL:          pnl,
			PnLPercent:   pnlFraction(rec.Side, rec.EntryPrice, exitPrice) * 100,
			StrategyName: "CopyTrade-" + rec.LeaderID,
			Reason:       reason,
		}
		if err := e.cfg.Trades.SaveTradeRecord(ctx, record); err != nil {
			e.logger.Warn().Err(err).Str("copy_id", rec.CopyID).Msg("Failed to persist copy trade")
		}
	}

	e.logger.Info().
		Str("copy_id", rec.CopyID).
		Str("reason", reason).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnl).
		Msg("Copy closed")

	if e.cfg.Bus != nil {
		e.cfg.Bus.PublishCopyClosed(rec.LeaderID, rec.FollowerID, rec.Symbol, reason, pnl)
	}
}

func pnlFraction(side string, entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == exchange.SideBuy {
		return (current - entry) / entry
	}
	return (entry - current) / entry
}

func (e *Engine) alreadyCopied(ctx context.Context, id string) bool {
	e.mu.RLock()
	seen := e.copied[id]
	e.mu.RUnlock()
	if seen {
		return true
	}

	if e.cfg.Tracker != nil {
		copied, err := e.cfg.Tracker.IsCopied(ctx, id)
		if err != nil {
			e.logger.Warn().Err(err).Str("copy_id", id).Msg("Copy tracker unavailable")
			return false
		}
		return copied
	}
	return false
}

func (e *Engine) markCopied(ctx context.Context, id, followerID string) {
	if e.cfg.Tracker == nil {
		return
	}
	if err := e.cfg.Tracker.MarkCopied(ctx, id); err != nil {
		e.logger.Warn().Err(err).Str("copy_id", id).Msg("Failed to persist copy key")
	}
	if err := e.cfg.Tracker.IncrementDaily(ctx, followerID); err != nil {
		e.logger.Warn().Err(err).Str("follower_id", followerID).Msg("Failed to persist daily count")
	}
}

func (e *Engine) copiesToday(ctx context.Context, followerID string) int {
	if e.cfg.Tracker != nil {
		count, err := e.cfg.Tracker.CopiesToday(ctx, followerID)
		if err == nil {
			return count
		}
		e.logger.Warn().Err(err).Str("follower_id", followerID).Msg("Copy tracker unavailable, using local count")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	dc := e.daily[followerID]
	if dc == nil || dc.day != time.Now().Format("2006-01-02") {
		return 0
	}
	return dc.count
}

// bumpDaily must be called with the mutex held
func (e *Engine) bumpDaily(followerID string) {
	today := time.Now().Format("2006-01-02")
	dc := e.daily[followerID]
	if dc == nil || dc.day != today {
		e.daily[followerID] = &dailyCount{day: today, count: 1}
		return
	}
	dc.count++
}

package strategy

import (
	"math"
	"time"

	"crypto-strategy-engine/internal/exchange"
)

// SignalType represents the kind of trading signal
type SignalType string

const (
	SignalLong  SignalType = "LONG"
	SignalShort SignalType = "SHORT"
	SignalHold  SignalType = "HOLD"
)

// Side maps a signal to the order side that opens it
func (s SignalType) Side() string {
	switch s {
	case SignalLong:
		return exchange.SideBuy
	case SignalShort:
		return exchange.SideSell
	default:
		return ""
	}
}

// Signal represents a trading decision
type Signal struct {
	Type      SignalType `json:"type"`
	Symbol    string     `json:"symbol"`
	Price     float64    `json:"price"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
}

// Hold builds a no-action signal carrying the reason it was held
func Hold(symbol, reason string) Signal {
	return Signal{
		Type:      SignalHold,
		Symbol:    symbol,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Params bundles the risk and lifecycle knobs the position engine
// reads off a strategy. TakeProfit and StopLoss are fractions of entry
// price; StopLoss is positive and compared against the loss magnitude.
type Params struct {
	RiskFraction     float64       `json:"risk_fraction"`
	StopLossFraction float64       `json:"stop_loss_fraction"`
	MinBalance       float64       `json:"min_balance"`
	TakeProfit       float64       `json:"take_profit"`
	StopLoss         float64       `json:"stop_loss"`
	MaxHoldTime      time.Duration `json:"max_hold_time"`
	CandleLimit      int           `json:"candle_limit"`
	TickInterval     time.Duration `json:"tick_interval"`
}

// IndicatorSnapshot carries the most recent indicator readings a
// strategy derived from a candle series. Fields a strategy does not
// compute stay NaN, so decisions can tell "not computed" apart from a
// real zero.
type IndicatorSnapshot struct {
	Close         float64
	RSI           float64
	EMA           float64
	EMAShort      float64
	EMALong       float64
	Momentum      float64
	TrendStrength float64
	VolumeRatio   float64
	Spread        float64
	Volatility    float64
}

// NewSnapshot returns a snapshot with every field undefined
func NewSnapshot() IndicatorSnapshot {
	nan := math.NaN()
	return IndicatorSnapshot{
		Close:         nan,
		RSI:           nan,
		EMA:           nan,
		EMAShort:      nan,
		EMALong:       nan,
		Momentum:      nan,
		TrendStrength: nan,
		VolumeRatio:   nan,
		Spread:        nan,
		Volatility:    nan,
	}
}

// Strategy defines the interface for trading strategies. Evaluate and
// ShouldExit are pure functions of the candles and price they are
// handed; strategies hold no position state.
type Strategy interface {
	// Name returns the strategy identifier
	Name() string

	// Symbol returns the trading pair this strategy watches
	Symbol() string

	// Interval returns the candle interval
	Interval() string

	// Params returns the risk and lifecycle parameters
	Params() Params

	// Evaluate analyzes market data and produces an entry signal
	Evaluate(klines []exchange.Kline, currentPrice float64) Signal

	// ShouldExit reports whether an open position on the given side
	// should close on strategy grounds, with the reason
	ShouldExit(klines []exchange.Kline, currentPrice float64, side string) (bool, string)
}

// Compile-time interface checks
var (
	_ Strategy = (*MomentumStrategy)(nil)
	_ Strategy = (*RSIEMAStrategy)(nil)
	_ Strategy = (*ScalpingStrategy)(nil)
)

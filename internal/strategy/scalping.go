package strategy

import (
	"fmt"
	"math"
	"time"

	"crypto-strategy-engine/internal/exchange"
)

// ScalpingConfig configures the one-minute mean-reversion scalper
type ScalpingConfig struct {
	Symbol          string
	Interval        string
	SpreadThreshold float64
	VolumeFloor     float64
	VolumeWindow    int
	MinVolatility   float64
	Risk            Params
}

// ScalpingStrategy fades short-lived price jumps: when the last candle
// moved far enough against a quiet tape, it enters in the opposite
// direction expecting the move to revert. Volume and candle range
// floors filter out dead markets where fills would be poor.
type ScalpingStrategy struct {
	config ScalpingConfig
}

func NewScalpingStrategy(config ScalpingConfig) *ScalpingStrategy {
	if config.Interval == "" {
		config.Interval = "1m"
	}
	if config.SpreadThreshold == 0 {
		config.SpreadThreshold = 0.0005
	}
	if config.VolumeFloor == 0 {
		config.VolumeFloor = 0.5
	}
	if config.VolumeWindow == 0 {
		config.VolumeWindow = 20
	}
	if config.MinVolatility == 0 {
		config.MinVolatility = 0.0002
	}
	if config.Risk.CandleLimit == 0 {
		config.Risk.CandleLimit = 100
	}
	return &ScalpingStrategy{config: config}
}

func (s *ScalpingStrategy) Name() string {
	return fmt.Sprintf("Scalping-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *ScalpingStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *ScalpingStrategy) Interval() string {
	return s.config.Interval
}

func (s *ScalpingStrategy) Params() Params {
	return s.config.Risk
}

// Snapshot computes the spread, volume and volatility readings
func (s *ScalpingStrategy) Snapshot(klines []exchange.Kline) IndicatorSnapshot {
	snap := NewSnapshot()
	n := len(klines)
	if n < 2 || n < s.config.VolumeWindow {
		return snap
	}

	last := klines[n-1]
	prev := klines[n-2]
	snap.Close = last.Close

	if prev.Close > 0 {
		snap.Spread = math.Abs(last.Close-prev.Close) / prev.Close
	}
	if last.Close > 0 {
		snap.Volatility = (last.High - last.Low) / last.Close
	}

	sum := 0.0
	for _, k := range klines[n-s.config.VolumeWindow:] {
		sum += k.Volume
	}
	mean := sum / float64(s.config.VolumeWindow)
	if mean > 0 {
		snap.VolumeRatio = last.Volume / mean
	} else {
		snap.VolumeRatio = 1.0
	}
	return snap
}

func (s *ScalpingStrategy) Evaluate(klines []exchange.Kline, currentPrice float64) Signal {
	snap := s.Snapshot(klines)
	n := len(klines)

	if n < 2 || n < s.config.VolumeWindow {
		return Hold(s.config.Symbol, "insufficient candle history")
	}
	if math.IsNaN(snap.Spread) || snap.Spread < s.config.SpreadThreshold {
		return Hold(s.config.Symbol, "spread below threshold")
	}
	if snap.VolumeRatio < s.config.VolumeFloor {
		return Hold(s.config.Symbol, "volume too thin")
	}
	if math.IsNaN(snap.Volatility) || snap.Volatility < s.config.MinVolatility {
		return Hold(s.config.Symbol, "volatility too low")
	}

	last := klines[n-1].Close
	prev := klines[n-2].Close

	// Mean reversion: fade the direction of the jump
	if last > prev {
		return Signal{
			Type:      SignalShort,
			Symbol:    s.config.Symbol,
			Price:     currentPrice,
			Reason:    fmt.Sprintf("fading %.4f%% jump up", snap.Spread*100),
			Timestamp: time.Now(),
		}
	}
	return Signal{
		Type:      SignalLong,
		Symbol:    s.config.Symbol,
		Price:     currentPrice,
		Reason:    fmt.Sprintf("fading %.4f%% jump down", snap.Spread*100),
		Timestamp: time.Now(),
	}
}

// ShouldExit never fires for scalps. Take profit, stop loss and max
// hold are the only ways out of a scalp position.
func (s *ScalpingStrategy) ShouldExit(klines []exchange.Kline, currentPrice float64, side string) (bool, string) {
	return false, ""
}

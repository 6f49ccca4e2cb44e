package strategy

import (
	"fmt"
	"time"

	"crypto-strategy-engine/internal/exchange"
	"crypto-strategy-engine/internal/indicator"
)

// MomentumConfig configures the momentum trend-following strategy
type MomentumConfig struct {
	Symbol           string
	Interval         string
	MomentumPeriod   int
	ShortEMAPeriod   int
	LongEMAPeriod    int
	MinTrendStrength float64
	VolumeThreshold  float64
	VolumeWindow     int
	Risk             Params
}

// MomentumStrategy trades in the direction of price momentum when
// volume confirms. Trend strength is the absolute EMA divergence, a
// directionless floor that filters out stale, range-bound tape;
// momentum sign alone picks the side.
type MomentumStrategy struct {
	config MomentumConfig
}

func NewMomentumStrategy(config MomentumConfig) *MomentumStrategy {
	if config.Interval == "" {
		config.Interval = "5m"
	}
	if config.MomentumPeriod == 0 {
		config.MomentumPeriod = 14
	}
	if config.ShortEMAPeriod == 0 {
		config.ShortEMAPeriod = 10
	}
	if config.LongEMAPeriod == 0 {
		config.LongEMAPeriod = 20
	}
	if config.MinTrendStrength == 0 {
		config.MinTrendStrength = 0.02
	}
	if config.VolumeThreshold == 0 {
		config.VolumeThreshold = 1.5
	}
	if config.VolumeWindow == 0 {
		config.VolumeWindow = 20
	}
	if config.Risk.CandleLimit == 0 {
		config.Risk.CandleLimit = 100
	}
	return &MomentumStrategy{config: config}
}

func (s *MomentumStrategy) Name() string {
	return fmt.Sprintf("Momentum-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *MomentumStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *MomentumStrategy) Interval() string {
	return s.config.Interval
}

func (s *MomentumStrategy) Params() Params {
	return s.config.Risk
}

// Snapshot computes the indicator readings Evaluate decides on
func (s *MomentumStrategy) Snapshot(klines []exchange.Kline) IndicatorSnapshot {
	snap := NewSnapshot()
	closes := indicator.Closes(klines)
	if len(closes) == 0 {
		return snap
	}

	snap.Close = closes[len(closes)-1]
	snap.Momentum = indicator.Last(indicator.Momentum(closes, s.config.MomentumPeriod))
	snap.EMAShort = indicator.Last(indicator.EMA(closes, s.config.ShortEMAPeriod))
	snap.EMALong = indicator.Last(indicator.EMA(closes, s.config.LongEMAPeriod))
	snap.VolumeRatio = indicator.Last(indicator.VolumeRatio(indicator.Volumes(klines), s.config.VolumeWindow))

	if indicator.Defined(snap.EMAShort) && indicator.Defined(snap.EMALong) && snap.EMALong != 0 {
		diff := snap.EMAShort - snap.EMALong
		if diff < 0 {
			diff = -diff
		}
		snap.TrendStrength = diff / snap.EMALong
	}
	return snap
}

func (s *MomentumStrategy) Evaluate(klines []exchange.Kline, currentPrice float64) Signal {
	snap := s.Snapshot(klines)

	if !indicator.Defined(snap.Momentum) || !indicator.Defined(snap.TrendStrength) {
		return Hold(s.config.Symbol, "insufficient candle history")
	}
	if snap.TrendStrength < s.config.MinTrendStrength {
		return Hold(s.config.Symbol, "trend too weak")
	}
	if snap.VolumeRatio < s.config.VolumeThreshold {
		return Hold(s.config.Symbol, "volume below threshold")
	}

	if snap.Momentum > 0 {
		return Signal{
			Type:      SignalLong,
			Symbol:    s.config.Symbol,
			Price:     currentPrice,
			Reason:    fmt.Sprintf("positive momentum %.4f on active trend", snap.Momentum),
			Timestamp: time.Now(),
		}
	}
	if snap.Momentum < 0 {
		return Signal{
			Type:      SignalShort,
			Symbol:    s.config.Symbol,
			Price:     currentPrice,
			Reason:    fmt.Sprintf("negative momentum %.4f on active trend", snap.Momentum),
			Timestamp: time.Now(),
		}
	}

	return Hold(s.config.Symbol, "momentum flat")
}

// ShouldExit closes a position when momentum flips against it
func (s *MomentumStrategy) ShouldExit(klines []exchange.Kline, currentPrice float64, side string) (bool, string) {
	mom := indicator.Last(indicator.Momentum(indicator.Closes(klines), s.config.MomentumPeriod))
	if !indicator.Defined(mom) {
		return false, ""
	}

	if side == exchange.SideBuy && mom < 0 {
		return true, "momentum reversed negative"
	}
	if side == exchange.SideSell && mom > 0 {
		return true, "momentum reversed positive"
	}
	return false, ""
}

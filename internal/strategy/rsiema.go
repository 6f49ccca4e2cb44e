package strategy

import (
	"fmt"
	"time"

	"crypto-strategy-engine/internal/exchange"
	"crypto-strategy-engine/internal/indicator"
)

// RSIEMAConfig configures the RSI/EMA mean-reversion strategy
type RSIEMAConfig struct {
	Symbol          string
	Interval        string
	RSIPeriod       int
	EMAPeriod       int
	Oversold        float64
	Overbought      float64
	VolumeThreshold float64
	VolumeWindow    int
	Risk            Params
}

// RSIEMAStrategy buys oversold dips above the EMA and sells overbought
// pops below it, requiring volume confirmation on entry. Positions are
// released when price re-crosses the EMA or RSI returns to the
// midline.
type RSIEMAStrategy struct {
	config RSIEMAConfig
}

func NewRSIEMAStrategy(config RSIEMAConfig) *RSIEMAStrategy {
	if config.Interval == "" {
		config.Interval = "15m"
	}
	if config.RSIPeriod == 0 {
		config.RSIPeriod = 14
	}
	if config.EMAPeriod == 0 {
		config.EMAPeriod = 20
	}
	if config.Oversold == 0 {
		config.Oversold = 30
	}
	if config.Overbought == 0 {
		config.Overbought = 70
	}
	if config.VolumeThreshold == 0 {
		config.VolumeThreshold = 1.2
	}
	if config.VolumeWindow == 0 {
		config.VolumeWindow = 20
	}
	if config.Risk.CandleLimit == 0 {
		config.Risk.CandleLimit = 100
	}
	return &RSIEMAStrategy{config: config}
}

func (s *RSIEMAStrategy) Name() string {
	return fmt.Sprintf("RSI-EMA-%s-%s", s.config.Symbol, s.config.Interval)
}

func (s *RSIEMAStrategy) Symbol() string {
	return s.config.Symbol
}

func (s *RSIEMAStrategy) Interval() string {
	return s.config.Interval
}

func (s *RSIEMAStrategy) Params() Params {
	return s.config.Risk
}

// Snapshot computes the indicator readings Evaluate decides on
func (s *RSIEMAStrategy) Snapshot(klines []exchange.Kline) IndicatorSnapshot {
	snap := NewSnapshot()
	closes := indicator.Closes(klines)
	if len(closes) == 0 {
		return snap
	}

	snap.Close = closes[len(closes)-1]
	snap.RSI = indicator.Last(indicator.RSI(closes, s.config.RSIPeriod))
	snap.EMA = indicator.Last(indicator.EMA(closes, s.config.EMAPeriod))
	snap.VolumeRatio = indicator.Last(indicator.VolumeRatio(indicator.Volumes(klines), s.config.VolumeWindow))
	return snap
}

func (s *RSIEMAStrategy) Evaluate(klines []exchange.Kline, currentPrice float64) Signal {
	snap := s.Snapshot(klines)

	if !indicator.Defined(snap.RSI) || !indicator.Defined(snap.EMA) {
		return Hold(s.config.Symbol, "insufficient candle history")
	}
	if snap.VolumeRatio <= s.config.VolumeThreshold {
		return Hold(s.config.Symbol, "volume below threshold")
	}

	if currentPrice > snap.EMA && snap.RSI < s.config.Oversold {
		return Signal{
			Type:      SignalLong,
			Symbol:    s.config.Symbol,
			Price:     currentPrice,
			Reason:    fmt.Sprintf("oversold RSI %.1f above EMA", snap.RSI),
			Timestamp: time.Now(),
		}
	}
	if currentPrice < snap.EMA && snap.RSI > s.config.Overbought {
		return Signal{
			Type:      SignalShort,
			Symbol:    s.config.Symbol,
			Price:     currentPrice,
			Reason:    fmt.Sprintf("overbought RSI %.1f below EMA", snap.RSI),
			Timestamp: time.Now(),
		}
	}

	return Hold(s.config.Symbol, "no RSI/EMA setup")
}

// ShouldExit closes a position when price re-crosses the EMA against
// it or RSI comes back through the midline
func (s *RSIEMAStrategy) ShouldExit(klines []exchange.Kline, currentPrice float64, side string) (bool, string) {
	closes := indicator.Closes(klines)
	rsi := indicator.Last(indicator.RSI(closes, s.config.RSIPeriod))
	ema := indicator.Last(indicator.EMA(closes, s.config.EMAPeriod))

	if side == exchange.SideBuy {
		if indicator.Defined(ema) && currentPrice < ema {
			return true, "price back below EMA"
		}
		if indicator.Defined(rsi) && rsi > 50 {
			return true, "RSI back above midline"
		}
	} else {
		if indicator.Defined(ema) && currentPrice > ema {
			return true, "price back above EMA"
		}
		if indicator.Defined(rsi) && rsi < 50 {
			return true, "RSI back below midline"
		}
	}
	return false, ""
}

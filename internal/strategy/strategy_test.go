package strategy

import (
	"testing"

	"crypto-strategy-engine/internal/exchange"
)

// klinesFromCloses builds a candle series with the given closes and a
// flat volume, with a small high/low range around each close.
func klinesFromCloses(closes []float64, volume float64) []exchange.Kline {
	klines := make([]exchange.Kline, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		klines[i] = exchange.Kline{
			OpenTime:  int64(i) * 60_000,
			Open:      open,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    volume,
			CloseTime: int64(i+1) * 60_000,
		}
	}
	return klines
}

func risingCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func fallingCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start - float64(i)*step
	}
	return out
}

func withVolumeSpike(klines []exchange.Kline, mult float64) []exchange.Kline {
	out := make([]exchange.Kline, len(klines))
	copy(out, klines)
	out[len(out)-1].Volume *= mult
	return out
}

// ===== MOMENTUM =====

func TestMomentumLongOnUptrend(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})
	klines := withVolumeSpike(klinesFromCloses(risingCloses(40, 100, 2), 100), 4)

	sig := s.Evaluate(klines, 178)
	if sig.Type != SignalLong {
		t.Fatalf("expected long on confirmed uptrend, got %s (%s)", sig.Type, sig.Reason)
	}
	if sig.Symbol != "BTCUSDT" {
		t.Errorf("signal symbol = %s, want BTCUSDT", sig.Symbol)
	}
}

func TestMomentumShortOnDowntrend(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})
	klines := withVolumeSpike(klinesFromCloses(fallingCloses(40, 200, 2), 100), 4)

	sig := s.Evaluate(klines, 122)
	if sig.Type != SignalShort {
		t.Fatalf("expected short on confirmed downtrend, got %s (%s)", sig.Type, sig.Reason)
	}
}

func TestMomentumEntrySideIgnoresEMADirection(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})

	// Old highs keep the slow EMA well above the fast one, but the
	// 14-candle momentum is positive: entry is long regardless.
	closes := make([]float64, 0, 40)
	for i := 0; i < 24; i++ {
		closes = append(closes, 200)
	}
	for i := 0; i < 4; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 12; i++ {
		closes = append(closes, 120)
	}
	klines := withVolumeSpike(klinesFromCloses(closes, 100), 4)

	snap := s.Snapshot(klines)
	if snap.EMAShort >= snap.EMALong {
		t.Fatalf("fixture broken: EMA short %f not below EMA long %f", snap.EMAShort, snap.EMALong)
	}
	if snap.Momentum <= 0 {
		t.Fatalf("fixture broken: momentum %f not positive", snap.Momentum)
	}

	sig := s.Evaluate(klines, 120)
	if sig.Type != SignalLong {
		t.Fatalf("expected long on positive momentum, got %s (%s)", sig.Type, sig.Reason)
	}

	// Mirror: negative momentum while the fast EMA rides above the slow
	closes = closes[:0]
	for i := 0; i < 24; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 4; i++ {
		closes = append(closes, 300)
	}
	for i := 0; i < 12; i++ {
		closes = append(closes, 260)
	}
	klines = withVolumeSpike(klinesFromCloses(closes, 100), 4)

	snap = s.Snapshot(klines)
	if snap.EMAShort <= snap.EMALong {
		t.Fatalf("fixture broken: EMA short %f not above EMA long %f", snap.EMAShort, snap.EMALong)
	}
	if snap.Momentum >= 0 {
		t.Fatalf("fixture broken: momentum %f not negative", snap.Momentum)
	}

	sig = s.Evaluate(klines, 260)
	if sig.Type != SignalShort {
		t.Fatalf("expected short on negative momentum, got %s (%s)", sig.Type, sig.Reason)
	}
}

func TestMomentumHoldsFlatTape(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 100
	}
	klines := withVolumeSpike(klinesFromCloses(flat, 100), 4)

	sig := s.Evaluate(klines, 100)
	if sig.Type != SignalHold {
		t.Fatalf("expected hold on flat tape, got %s", sig.Type)
	}
}

func TestMomentumHoldsWithoutVolume(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})
	klines := klinesFromCloses(risingCloses(40, 100, 2), 100)

	sig := s.Evaluate(klines, 178)
	if sig.Type != SignalHold {
		t.Fatalf("expected hold without volume confirmation, got %s", sig.Type)
	}
}

func TestMomentumHoldsOnShortHistory(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})
	klines := klinesFromCloses(risingCloses(10, 100, 2), 100)

	sig := s.Evaluate(klines, 118)
	if sig.Type != SignalHold {
		t.Fatalf("expected hold on short history, got %s", sig.Type)
	}
}

func TestMomentumExitOnReversal(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{Symbol: "BTCUSDT"})

	tests := []struct {
		name   string
		closes []float64
		side   string
		exit   bool
	}{
		{"long exits when momentum flips", fallingCloses(40, 200, 2), exchange.SideBuy, true},
		{"long holds while momentum positive", risingCloses(40, 100, 2), exchange.SideBuy, false},
		{"short exits when momentum flips", risingCloses(40, 100, 2), exchange.SideSell, true},
		{"short holds while momentum negative", fallingCloses(40, 200, 2), exchange.SideSell, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			klines := klinesFromCloses(tt.closes, 100)
			exit, _ := s.ShouldExit(klines, klines[len(klines)-1].Close, tt.side)
			if exit != tt.exit {
				t.Errorf("ShouldExit = %v, want %v", exit, tt.exit)
			}
		})
	}
}

// ===== RSI / EMA =====

func TestRSIEMALongOnOversoldDip(t *testing.T) {
	s := NewRSIEMAStrategy(RSIEMAConfig{Symbol: "ETHUSDT"})
	// Falling tape drives RSI low; the quoted price sits above the EMA
	klines := withVolumeSpike(klinesFromCloses(fallingCloses(40, 200, 1), 100), 3)

	sig := s.Evaluate(klines, 250)
	if sig.Type != SignalLong {
		t.Fatalf("expected long on oversold dip above EMA, got %s (%s)", sig.Type, sig.Reason)
	}
}

func TestRSIEMAShortOnOverboughtPop(t *testing.T) {
	s := NewRSIEMAStrategy(RSIEMAConfig{Symbol: "ETHUSDT"})
	klines := withVolumeSpike(klinesFromCloses(risingCloses(40, 100, 1), 100), 3)

	sig := s.Evaluate(klines, 50)
	if sig.Type != SignalShort {
		t.Fatalf("expected short on overbought pop below EMA, got %s (%s)", sig.Type, sig.Reason)
	}
}

func TestRSIEMAHoldsWithoutVolume(t *testing.T) {
	s := NewRSIEMAStrategy(RSIEMAConfig{Symbol: "ETHUSDT"})
	klines := klinesFromCloses(fallingCloses(40, 200, 1), 100)

	sig := s.Evaluate(klines, 250)
	if sig.Type != SignalHold {
		t.Fatalf("expected hold without volume confirmation, got %s", sig.Type)
	}
}

func TestRSIEMAExitConditions(t *testing.T) {
	s := NewRSIEMAStrategy(RSIEMAConfig{Symbol: "ETHUSDT"})
	falling := klinesFromCloses(fallingCloses(40, 200, 1), 100)
	rising := klinesFromCloses(risingCloses(40, 100, 1), 100)

	// Long exits when price drops back under the EMA
	exit, reason := s.ShouldExit(falling, 1, exchange.SideBuy)
	if !exit {
		t.Fatal("expected exit when price re-crosses below EMA")
	}
	if reason == "" {
		t.Error("expected an exit reason")
	}

	// Long exits when RSI normalizes above the midline
	exit, _ = s.ShouldExit(rising, 500, exchange.SideBuy)
	if !exit {
		t.Fatal("expected exit when RSI returns above midline")
	}

	// Long holds while still oversold and above EMA
	exit, _ = s.ShouldExit(falling, 500, exchange.SideBuy)
	if exit {
		t.Fatal("expected long to keep riding while setup holds")
	}

	// Short exits when price pops back above the EMA
	exit, _ = s.ShouldExit(rising, 500, exchange.SideSell)
	if !exit {
		t.Fatal("expected exit when price re-crosses above EMA")
	}
}

// ===== SCALPING =====

func scalpTape(lastClose, lastHigh, lastLow float64) []exchange.Kline {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	klines := klinesFromCloses(closes, 100)
	last := &klines[len(klines)-1]
	last.Close = lastClose
	last.High = lastHigh
	last.Low = lastLow
	return klines
}

func TestScalpingFadesJumpUp(t *testing.T) {
	s := NewScalpingStrategy(ScalpingConfig{Symbol: "SOLUSDT"})
	klines := scalpTape(100.2, 100.3, 100.0)

	sig := s.Evaluate(klines, 100.2)
	if sig.Type != SignalShort {
		t.Fatalf("expected short fading a jump up, got %s (%s)", sig.Type, sig.Reason)
	}
}

func TestScalpingFadesJumpDown(t *testing.T) {
	s := NewScalpingStrategy(ScalpingConfig{Symbol: "SOLUSDT"})
	klines := scalpTape(99.8, 100.0, 99.7)

	sig := s.Evaluate(klines, 99.8)
	if sig.Type != SignalLong {
		t.Fatalf("expected long fading a jump down, got %s (%s)", sig.Type, sig.Reason)
	}
}

func TestScalpingHoldConditions(t *testing.T) {
	s := NewScalpingStrategy(ScalpingConfig{Symbol: "SOLUSDT"})

	tests := []struct {
		name   string
		klines []exchange.Kline
	}{
		{"spread below threshold", scalpTape(100.01, 100.05, 99.98)},
		{"volatility too low", scalpTape(100.2, 100.2, 100.199)},
		{"short history", klinesFromCloses([]float64{100, 100.2}, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Evaluate(tt.klines, 100.2)
			if sig.Type != SignalHold {
				t.Errorf("expected hold, got %s (%s)", sig.Type, sig.Reason)
			}
		})
	}
}

func TestScalpingHasNoReversalExit(t *testing.T) {
	s := NewScalpingStrategy(ScalpingConfig{Symbol: "SOLUSDT"})
	jumpDown := scalpTape(99.8, 100.0, 99.7)
	jumpUp := scalpTape(100.2, 100.3, 100.0)

	// Scalps leave only through TP, SL or max hold, never on a fresh
	// signal, whichever way the tape jumps
	for _, side := range []string{exchange.SideBuy, exchange.SideSell} {
		for _, tape := range [][]exchange.Kline{jumpDown, jumpUp} {
			if exit, reason := s.ShouldExit(tape, tape[len(tape)-1].Close, side); exit {
				t.Fatalf("scalp %s exited on signal (%s)", side, reason)
			}
		}
	}
}

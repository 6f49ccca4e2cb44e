package bot

import (
	"context"
	"testing"
	"time"

	"crypto-strategy-engine/internal/engine"
	"crypto-strategy-engine/internal/exchange"
	"crypto-strategy-engine/internal/risk"
	"crypto-strategy-engine/internal/strategy"

	"github.com/rs/zerolog"
)

type idleStrategy struct {
	name string
}

func (s *idleStrategy) Name() string   { return s.name }
func (s *idleStrategy) Symbol() string { return "BTCUSDT" }
func (s *idleStrategy) Interval() string {
	return "1m"
}
func (s *idleStrategy) Params() strategy.Params {
	return strategy.Params{TickInterval: time.Hour}
}
func (s *idleStrategy) Evaluate(klines []exchange.Kline, currentPrice float64) strategy.Signal {
	return strategy.Hold("BTCUSDT", "idle")
}
func (s *idleStrategy) ShouldExit(klines []exchange.Kline, currentPrice float64, side string) (bool, string) {
	return false, ""
}

func newTestEngine(name string) *engine.Engine {
	return engine.New(engine.Config{
		Strategy: &idleStrategy{name: name},
		Client:   exchange.NewMockClient(1000),
		Sizer:    risk.NewSizer(risk.SizerConfig{RiskFraction: 0.02, StopLossFraction: 0.03}, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
}

func TestAddEngineEnabledByDefault(t *testing.T) {
	c := New(zerolog.Nop())
	c.AddEngine(newTestEngine("alpha"))

	summaries := c.Summaries()
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if !summaries[0].Enabled {
		t.Error("engine not enabled by default")
	}
}

func TestToggleStrategy(t *testing.T) {
	c := New(zerolog.Nop())
	c.AddEngine(newTestEngine("alpha"))

	if err := c.ToggleStrategy("alpha", false); err != nil {
		t.Fatalf("ToggleStrategy: %v", err)
	}
	if c.Summaries()[0].Enabled {
		t.Error("engine still enabled after toggle")
	}
	if c.isEnabled("alpha") {
		t.Error("isEnabled reports true after disable")
	}

	if err := c.ToggleStrategy("missing", true); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestStartRequiresEngines(t *testing.T) {
	c := New(zerolog.Nop())
	if err := c.Start(); err == nil {
		t.Error("expected error starting with no engines")
	}
}

func TestStartStop(t *testing.T) {
	c := New(zerolog.Nop())
	c.AddEngine(newTestEngine("alpha"))

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Running() {
		t.Error("Running = false after Start")
	}
	if err := c.Start(); err == nil {
		t.Error("expected error on second Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Stop(ctx)

	if c.Running() {
		t.Error("Running = true after Stop")
	}
}

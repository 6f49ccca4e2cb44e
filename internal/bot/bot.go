// Package bot coordinates the strategy engines and the copy trading
// engine: one ticker goroutine per engine, with a shared stop channel
// for coordinated shutdown.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"crypto-strategy-engine/internal/copytrade"
	"crypto-strategy-engine/internal/engine"

	"github.com/rs/zerolog"
)

// Coordinator owns the ticker loops that drive the engines
type Coordinator struct {
	mu      sync.RWMutex
	engines []*engine.Engine
	enabled map[string]bool // keyed by strategy name

	copyEngine *copytrade.Engine
	copyTick   time.Duration

	logger   zerolog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// New creates a coordinator with no engines registered
func New(logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		logger:   logger.With().Str("component", "coordinator").Logger(),
		enabled:  make(map[string]bool),
		stopChan: make(chan struct{}),
	}
}

// AddEngine registers a strategy engine, enabled by default. The tick
// interval comes from the strategy's own parameters.
func (c *Coordinator) AddEngine(e *engine.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines = append(c.engines, e)
	c.enabled[e.Strategy().Name()] = true
	c.logger.Info().
		Str("strategy", e.Strategy().Name()).
		Str("symbol", e.Strategy().Symbol()).
		Msg("strategy engine registered")
}

// ToggleStrategy enables or disables a registered strategy by name. A
// disabled engine skips evaluation; open positions keep being managed.
func (c *Coordinator) ToggleStrategy(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.enabled[name]; !ok {
		return errors.New("unknown strategy: " + name)
	}
	c.enabled[name] = enabled
	c.logger.Info().Str("strategy", name).Bool("enabled", enabled).Msg("strategy toggled")
	return nil
}

func (c *Coordinator) isEnabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled[name]
}

// SetCopyEngine registers the copy trading engine
func (c *Coordinator) SetCopyEngine(ce *copytrade.Engine, tick time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copyEngine = ce
	c.copyTick = tick
}

// Start launches one ticker goroutine per registered engine
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("coordinator already started")
	}
	if len(c.engines) == 0 && c.copyEngine == nil {
		return errors.New("no engines registered")
	}
	c.running = true

	for _, e := range c.engines {
		c.wg.Add(1)
		go c.runEngine(e)
	}

	if c.copyEngine != nil {
		c.wg.Add(1)
		go c.runCopyEngine()
	}

	c.logger.Info().Int("engines", len(c.engines)).Msg("coordinator started")
	return nil
}

// Stop signals every loop, waits for them, then flattens open
// positions
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	for _, e := range c.engines {
		e.Shutdown(ctx)
	}
	if c.copyEngine != nil {
		c.copyEngine.Shutdown(ctx)
	}

	c.logger.Info().Msg("coordinator stopped")
}

func (c *Coordinator) runEngine(e *engine.Engine) {
	defer c.wg.Done()

	interval := e.Strategy().Params().TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := c.logger.With().Str("strategy", e.Strategy().Name()).Logger()

	for {
		select {
		case <-ticker.C:
			// A disabled strategy takes no new entries, but any open
			// position still gets its exits managed
			if !c.isEnabled(e.Strategy().Name()) && len(e.OpenPositions()) == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if err := e.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("tick failed")
			}
			cancel()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Coordinator) runCopyEngine() {
	defer c.wg.Done()

	interval := c.copyTick
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			c.copyEngine.Tick(ctx)
			cancel()
		case <-c.stopChan:
			return
		}
	}
}

// Engines returns the registered strategy engines
func (c *Coordinator) Engines() []*engine.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*engine.Engine, len(c.engines))
	copy(out, c.engines)
	return out
}

// CopyEngine returns the copy trading engine, or nil
func (c *Coordinator) CopyEngine() *copytrade.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyEngine
}

// EngineStatus is an engine summary plus its coordinator state
type EngineStatus struct {
	engine.Summary
	Enabled bool `json:"enabled"`
}

// Running reports whether the ticker loops are active
func (c *Coordinator) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Summaries returns a performance snapshot per strategy engine
func (c *Coordinator) Summaries() []EngineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summaries := make([]EngineStatus, 0, len(c.engines))
	for _, e := range c.engines {
		summaries = append(summaries, EngineStatus{
			Summary: e.Summary(),
			Enabled: c.enabled[e.Strategy().Name()],
		})
	}
	return summaries
}

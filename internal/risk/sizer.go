package risk

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxBalanceFraction caps any single position's notional at
// this share of the account, whatever the risk math says.
const DefaultMaxBalanceFraction = 0.10

// SizerConfig configures position sizing for one strategy
type SizerConfig struct {
	// RiskFraction is the share of the balance risked per trade
	RiskFraction float64

	// StopLossFraction is the adverse move the risk amount is spread
	// over, so notional = balance*RiskFraction/StopLossFraction
	StopLossFraction float64

	// MinBalance below which no position is opened
	MinBalance float64

	// MaxBalanceFraction caps the notional as a share of balance.
	// Zero means DefaultMaxBalanceFraction.
	MaxBalanceFraction float64
}

// Sizer converts an account balance into an order quantity. A zero
// quantity means the trade was rejected, not that sizing failed.
type Sizer struct {
	config SizerConfig
	logger zerolog.Logger
	mu     sync.RWMutex
}

func NewSizer(config SizerConfig, logger zerolog.Logger) *Sizer {
	if config.MaxBalanceFraction == 0 {
		config.MaxBalanceFraction = DefaultMaxBalanceFraction
	}
	return &Sizer{
		config: config,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

// UpdateConfig swaps the sizing parameters at runtime
func (s *Sizer) UpdateConfig(config SizerConfig) {
	if config.MaxBalanceFraction == 0 {
		config.MaxBalanceFraction = DefaultMaxBalanceFraction
	}
	s.mu.Lock()
	s.config = config
	s.mu.Unlock()
}

// Notional returns the position value in quote currency for the given
// balance, or 0 when the balance is below the minimum.
func (s *Sizer) Notional(balance float64) float64 {
	s.mu.RLock()
	cfg := s.config
	s.mu.RUnlock()

	if balance <= 0 || balance < cfg.MinBalance {
		s.logger.Debug().
			Float64("balance", balance).
			Float64("min_balance", cfg.MinBalance).
			Msg("Balance below minimum, sizing rejected")
		return 0
	}
	if cfg.StopLossFraction <= 0 {
		return 0
	}

	riskAmount := balance * cfg.RiskFraction
	notional := riskAmount / cfg.StopLossFraction

	ceiling := balance * cfg.MaxBalanceFraction
	if notional > ceiling {
		notional = ceiling
	}
	return notional
}

// Quantity converts the notional into a base-asset quantity at the
// given price, rounded down to the lot step. A step of 0 applies no
// rounding. Quantities that round to zero are rejected.
func (s *Sizer) Quantity(balance, price, lotStep float64) float64 {
	if price <= 0 {
		return 0
	}

	notional := s.Notional(balance)
	if notional <= 0 {
		return 0
	}

	qty := notional / price
	if lotStep > 0 {
		qty = math.Floor(qty/lotStep+1e-9) * lotStep
	}
	if qty <= 0 {
		s.logger.Debug().
			Float64("price", price).
			Float64("lot_step", lotStep).
			Msg("Quantity rounded to zero, sizing rejected")
		return 0
	}
	return qty
}

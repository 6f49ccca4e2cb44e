package engine

// Stats accumulates performance counters for closed trades. A trade
// with zero profit counts as a loss, so flat exits do not inflate the
// win rate.
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	TotalProfit   float64 `json:"total_profit"`
}

func (s *Stats) record(pnl float64) {
	s.TotalTrades++
	if pnl > 0 {
		s.WinningTrades++
	}
	s.TotalProfit += pnl
}

// WinRate returns winning trades over total, or 0 with no history
func (s Stats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades)
}

// Summary is a point-in-time view of an engine for the API layer
type Summary struct {
	EngineID      string     `json:"engine_id"`
	Strategy      string     `json:"strategy"`
	Symbol        string     `json:"symbol"`
	TotalTrades   int        `json:"total_trades"`
	WinningTrades int        `json:"winning_trades"`
	WinRate       float64    `json:"win_rate"`
	TotalProfit   float64    `json:"total_profit"`
	OpenPositions []Position `json:"open_positions"`
}

// Summary snapshots the engine's statistics and open positions
func (e *Engine) Summary() Summary {
	e.mu.RLock()
	stats := e.stats
	positions := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		positions = append(positions, *pos)
	}
	e.mu.RUnlock()

	return Summary{
		EngineID:      e.id,
		Strategy:      e.strat.Name(),
		Symbol:        e.strat.Symbol(),
		TotalTrades:   stats.TotalTrades,
		WinningTrades: stats.WinningTrades,
		WinRate:       stats.WinRate(),
		TotalProfit:   stats.TotalProfit,
		OpenPositions: positions,
	}
}

package copytrade

import (
	"fmt"
	"sort"

	"crypto-strategy-engine/internal/exchange"
)

// Scoring weights: consistency matters more than raw profit
const (
	winRateWeight = 0.7
	profitWeight  = 0.3

	// avgPnlScale is the per-trade profit, in quote currency, that
	// earns a full profit score
	avgPnlScale = 100.0
)

func copyID(leaderID string, orderID int64) string {
	return fmt.Sprintf("%s_%d", leaderID, orderID)
}

// Score rates a leader from their recent fills, in [0, 1]. Only
// ADJACENT fill pairs count as a round trip: a BUY immediately
// followed by a SELL on the same symbol in time order. Interleaved or
// partial fills are never paired, and both the win rate and the
// average pnl divide by the raw fill count, not the round-trip count,
// so a busy book with few clean pairs scores low. This is a documented
// approximation of round-trip accounting, kept as-is. A leader with no
// fills scores 0 and is never copied.
func Score(fills []LeaderFill) float64 {
	if len(fills) == 0 {
		return 0
	}

	sorted := make([]LeaderFill, len(fills))
	copy(sorted, fills)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	wins := 0
	totalPnl := 0.0
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		cur := sorted[i]
		if prev.Symbol != cur.Symbol {
			continue
		}
		if prev.Side == exchange.SideBuy && cur.Side == exchange.SideSell {
			pnl := (cur.Price - prev.Price) * prev.Quantity
			totalPnl += pnl
			if pnl > 0 {
				wins++
			}
		}
	}

	total := float64(len(sorted))
	winRate := float64(wins) / total
	avgPnl := totalPnl / total
	profitScore := avgPnl / avgPnlScale
	if profitScore > 1 {
		profitScore = 1
	}

	// A losing book drags the score down through the profit term
	score := winRateWeight*winRate + profitWeight*profitScore
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

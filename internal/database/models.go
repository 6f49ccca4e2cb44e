package database

import "time"

// Trade statuses for copy records
const (
	CopyStatusOpen   = "OPEN"
	CopyStatusClosed = "CLOSED"
)

// Trade is a persisted closed trade
type Trade struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	PnL          float64   `json:"pnl"`
	PnLPercent   float64   `json:"pnl_percent"`
	StrategyName string    `json:"strategy_name"`
	CloseReason  string    `json:"close_reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// CopyRecordRow is a persisted copy record
type CopyRecordRow struct {
	CopyID     string     `json:"copy_id"`
	LeaderID   string     `json:"leader_id"`
	FollowerID string     `json:"follower_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StrategyPerformance is an aggregated view over closed trades
type StrategyPerformance struct {
	StrategyName  string  `json:"strategy_name"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AvgPnL        float64 `json:"avg_pnl"`
}

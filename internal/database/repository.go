package database

import (
	"context"
	"time"

	"crypto-strategy-engine/internal/copytrade"
	"crypto-strategy-engine/internal/engine"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// TRADES
// ============================================================================

// SaveTradeRecord persists a closed trade
func (r *Repository) SaveTradeRecord(ctx context.Context, record *engine.TradeRecord) error {
	query := `
		INSERT INTO trades (id, symbol, side, quantity, entry_price, exit_price,
			entry_time, exit_time, pnl, pnl_percent, strategy_name, close_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		record.ID, record.Symbol, record.Side, record.Quantity,
		record.EntryPrice, record.ExitPrice, record.EntryTime, record.ExitTime,
		record.PnL, record.PnLPercent, record.StrategyName, record.Reason,
	)
	return err
}

// GetTradeHistory returns the most recent closed trades
func (r *Repository) GetTradeHistory(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, symbol, side, quantity, entry_price, exit_price,
		       entry_time, exit_time, pnl, pnl_percent, strategy_name, close_reason, created_at
		FROM trades
		ORDER BY exit_time DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
			&t.EntryTime, &t.ExitTime, &t.PnL, &t.PnLPercent, &t.StrategyName,
			&t.CloseReason, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetStrategyPerformance aggregates closed trades per strategy
func (r *Repository) GetStrategyPerformance(ctx context.Context) ([]StrategyPerformance, error) {
	query := `
		SELECT strategy_name,
		       COUNT(*) AS total_trades,
		       COUNT(*) FILTER (WHERE pnl > 0) AS winning_trades,
		       COALESCE(SUM(pnl), 0) AS total_pnl,
		       COALESCE(AVG(pnl), 0) AS avg_pnl
		FROM trades
		GROUP BY strategy_name
		ORDER BY total_pnl DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StrategyPerformance
	for rows.Next() {
		var p StrategyPerformance
		if err := rows.Scan(&p.StrategyName, &p.TotalTrades, &p.WinningTrades, &p.TotalPnL, &p.AvgPnL); err != nil {
			return nil, err
		}
		if p.TotalTrades > 0 {
			p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ============================================================================
// COPY RECORDS
// ============================================================================

// SaveCopyRecord persists a newly opened copy
func (r *Repository) SaveCopyRecord(ctx context.Context, record *copytrade.CopyRecord) error {
	query := `
		INSERT INTO copy_records (copy_id, leader_id, follower_id, symbol, side,
			quantity, entry_price, entry_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (copy_id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		record.CopyID, record.LeaderID, record.FollowerID, record.Symbol,
		record.Side, record.Quantity, record.EntryPrice, record.EntryTime,
		CopyStatusOpen,
	)
	return err
}

// CloseCopyRecord marks a copy as closed with its exit fill
func (r *Repository) CloseCopyRecord(ctx context.Context, copyID string, exitPrice, pnl float64) error {
	query := `
		UPDATE copy_records
		SET exit_price = $2, exit_time = $3, pnl = $4, status = $5
		WHERE copy_id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, copyID, exitPrice, time.Now(), pnl, CopyStatusClosed)
	return err
}

// GetCopyRecords returns recent copy records, open first
func (r *Repository) GetCopyRecords(ctx context.Context, limit int) ([]CopyRecordRow, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT copy_id, leader_id, follower_id, symbol, side, quantity,
		       entry_price, entry_time, exit_price, exit_time, pnl, status, created_at
		FROM copy_records
		ORDER BY status DESC, entry_time DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CopyRecordRow
	for rows.Next() {
		var rec CopyRecordRow
		if err := rows.Scan(
			&rec.CopyID, &rec.LeaderID, &rec.FollowerID, &rec.Symbol, &rec.Side,
			&rec.Quantity, &rec.EntryPrice, &rec.EntryTime, &rec.ExitPrice,
			&rec.ExitTime, &rec.PnL, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Compile-time interface checks
var (
	_ engine.TradeStore   = (*Repository)(nil)
	_ copytrade.CopyStore = (*Repository)(nil)
)

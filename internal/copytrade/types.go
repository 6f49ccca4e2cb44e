package copytrade

import (
	"context"
	"time"
)

// Leader is a tracked account whose fills may be replicated
type Leader struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	MinNotional float64 `json:"min_notional"`
	MaxNotional float64 `json:"max_notional"`
}

// Follower is an account that mirrors admissible leader fills
type Follower struct {
	ID             string  `json:"id"`
	CopyRatio      float64 `json:"copy_ratio"`
	MaxDailyCopies int     `json:"max_daily_copies"`
}

// LeaderFill is one executed order observed on a leader account
type LeaderFill struct {
	LeaderID string
	Symbol   string
	OrderID  int64
	Side     string
	Price    float64
	Quantity float64
	Time     time.Time
}

// CopyID is the replication key: one leader order is copied at most
// once, ever, across all followers.
func (f LeaderFill) CopyID() string {
	return copyID(f.LeaderID, f.OrderID)
}

// CopyRecord is an open replicated position
type CopyRecord struct {
	CopyID     string    `json:"copy_id"`
	LeaderID   string    `json:"leader_id"`
	FollowerID string    `json:"follower_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	OrderID    int64     `json:"order_id"`
}

// LeaderFeed supplies recent fills for a leader account. How leaders
// are discovered and authenticated is the feed's concern.
type LeaderFeed interface {
	RecentFills(leaderID string, since time.Time) ([]LeaderFill, error)
}

// CopyTracker persists replication state so dedup keys and daily
// quotas survive restarts. A nil tracker keeps everything in memory.
type CopyTracker interface {
	IsCopied(ctx context.Context, copyID string) (bool, error)
	MarkCopied(ctx context.Context, copyID string) error
	CopiesToday(ctx context.Context, followerID string) (int, error)
	IncrementDaily(ctx context.Context, followerID string) error
}

// CopyStore persists copy records. A nil store disables persistence.
type CopyStore interface {
	SaveCopyRecord(ctx context.Context, record *CopyRecord) error
	CloseCopyRecord(ctx context.Context, copyID string, exitPrice, pnl float64) error
}

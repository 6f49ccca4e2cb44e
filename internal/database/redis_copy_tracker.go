// Redis-backed replication state. Copy keys and daily quota counters
// live here so a restart cannot double-copy a leader order or reset a
// follower's daily allowance.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-strategy-engine/internal/copytrade"
)

const (
	// CopiedKeyPrefix marks leader orders that have been replicated.
	// Format: copytrade:copied:{copyID}
	CopiedKeyPrefix = "copytrade:copied"

	// DailyCountKeyPrefix counts copies per follower per UTC day.
	// Format: copytrade:daily:{followerID}:{yyyy-mm-dd}
	DailyCountKeyPrefix = "copytrade:daily"

	// CopiedKeyTTL keeps dedup keys well past any realistic fill
	// lookback window
	CopiedKeyTTL = 14 * 24 * time.Hour

	// DailyCountTTL keeps quota counters across day boundaries long
	// enough for reporting
	DailyCountTTL = 48 * time.Hour
)

// RedisCopyTracker persists copy dedup keys and daily quotas in Redis
type RedisCopyTracker struct {
	client *redis.Client
}

// NewRedisCopyTracker creates a tracker over an existing Redis client
func NewRedisCopyTracker(client *redis.Client) *RedisCopyTracker {
	return &RedisCopyTracker{client: client}
}

// IsCopied reports whether a leader order was already replicated
func (t *RedisCopyTracker) IsCopied(ctx context.Context, copyID string) (bool, error) {
	n, err := t.client.Exists(ctx, copiedKey(copyID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking copy key: %w", err)
	}
	return n > 0, nil
}

// MarkCopied records a replicated leader order
func (t *RedisCopyTracker) MarkCopied(ctx context.Context, copyID string) error {
	if err := t.client.Set(ctx, copiedKey(copyID), time.Now().Format(time.RFC3339), CopiedKeyTTL).Err(); err != nil {
		return fmt.Errorf("marking copy key: %w", err)
	}
	return nil
}

// CopiesToday returns a follower's copy count for the current UTC day
func (t *RedisCopyTracker) CopiesToday(ctx context.Context, followerID string) (int, error) {
	n, err := t.client.Get(ctx, dailyKey(followerID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading daily count: %w", err)
	}
	return n, nil
}

// IncrementDaily bumps a follower's copy count for the current UTC day
func (t *RedisCopyTracker) IncrementDaily(ctx context.Context, followerID string) error {
	key := dailyKey(followerID)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, DailyCountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing daily count: %w", err)
	}
	return nil
}

func copiedKey(copyID string) string {
	return fmt.Sprintf("%s:%s", CopiedKeyPrefix, copyID)
}

func dailyKey(followerID string) string {
	return fmt.Sprintf("%s:%s:%s", DailyCountKeyPrefix, followerID, time.Now().UTC().Format("2006-01-02"))
}

// Compile-time interface check
var _ copytrade.CopyTracker = (*RedisCopyTracker)(nil)

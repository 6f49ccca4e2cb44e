package copytrade

import (
	"fmt"
	"sync"
	"time"

	"crypto-strategy-engine/internal/exchange"
)

// ExchangeFeed reads leader fills straight from the exchange using one
// authenticated client per leader account.
type ExchangeFeed struct {
	clients map[string]*exchange.Client
	symbols []string
	limit   int
}

// NewExchangeFeed builds a feed over per-leader clients, watching the
// given symbols. limit bounds how many fills are fetched per symbol.
func NewExchangeFeed(clients map[string]*exchange.Client, symbols []string, limit int) *ExchangeFeed {
	if limit <= 0 {
		limit = 50
	}
	return &ExchangeFeed{clients: clients, symbols: symbols, limit: limit}
}

func (f *ExchangeFeed) RecentFills(leaderID string, since time.Time) ([]LeaderFill, error) {
	client, ok := f.clients[leaderID]
	if !ok {
		return nil, fmt.Errorf("no client for leader %s: %w", leaderID, exchange.ErrDataUnavailable)
	}

	var out []LeaderFill
	for _, symbol := range f.symbols {
		fills, err := client.GetAccountFills(symbol, f.limit)
		if err != nil {
			return nil, err
		}
		for _, fill := range fills {
			ts := time.UnixMilli(fill.Time)
			if ts.Before(since) {
				continue
			}
			out = append(out, LeaderFill{
				LeaderID: leaderID,
				Symbol:   fill.Symbol,
				OrderID:  fill.OrderID,
				Side:     fill.Side,
				Price:    fill.Price,
				Quantity: fill.Quantity,
				Time:     ts,
			})
		}
	}
	return out, nil
}

// StaticFeed is an in-memory feed for mock mode and tests
type StaticFeed struct {
	mu    sync.RWMutex
	fills map[string][]LeaderFill
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{fills: make(map[string][]LeaderFill)}
}

// Add appends a fill to a leader's history
func (f *StaticFeed) Add(fill LeaderFill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills[fill.LeaderID] = append(f.fills[fill.LeaderID], fill)
}

func (f *StaticFeed) RecentFills(leaderID string, since time.Time) ([]LeaderFill, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []LeaderFill
	for _, fill := range f.fills[leaderID] {
		if !fill.Time.Before(since) {
			out = append(out, fill)
		}
	}
	return out, nil
}

// Compile-time interface checks
var (
	_ LeaderFeed = (*ExchangeFeed)(nil)
	_ LeaderFeed = (*StaticFeed)(nil)
)

package copytrade

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-strategy-engine/internal/exchange"
)

type fakeClient struct {
	price  float64
	orders []struct {
		symbol   string
		side     string
		quantity float64
	}
}

func (c *fakeClient) GetKlines(symbol, interval string, limit int) ([]exchange.Kline, error) {
	return nil, nil
}

func (c *fakeClient) GetCurrentPrice(symbol string) (float64, error) {
	return c.price, nil
}

func (c *fakeClient) GetBalances() (map[string]float64, error) {
	return map[string]float64{"USDT": 10000}, nil
}

func (c *fakeClient) GetLotStep(symbol string) (float64, error) {
	return 0, nil
}

func (c *fakeClient) PlaceMarketOrder(symbol, side string, quantity float64) (*exchange.OrderResponse, error) {
	c.orders = append(c.orders, struct {
		symbol   string
		side     string
		quantity float64
	}{symbol, side, quantity})
	return &exchange.OrderResponse{
		Symbol:      symbol,
		OrderID:     int64(len(c.orders)),
		Side:        side,
		Status:      "FILLED",
		Price:       c.price,
		OrigQty:     quantity,
		ExecutedQty: quantity,
	}, nil
}

// strongHistory seeds the feed with enough winning round trips that
// the leader stays above the score floor even with a handful of fresh
// unpaired fills diluting the ratios. All dated outside the copy
// window.
func strongHistory(feed *StaticFeed, leaderID string) {
	base := time.Now().Add(-4 * time.Hour)
	for i := 0; i < 20; i++ {
		feed.Add(LeaderFill{
			LeaderID: leaderID, Symbol: "BTCUSDT", OrderID: int64(100 + i*2),
			Side: exchange.SideBuy, Price: 100, Quantity: 10,
			Time: base.Add(time.Duration(i) * 5 * time.Minute),
		})
		feed.Add(LeaderFill{
			LeaderID: leaderID, Symbol: "BTCUSDT", OrderID: int64(101 + i*2),
			Side: exchange.SideSell, Price: 130, Quantity: 10,
			Time: base.Add(time.Duration(i)*5*time.Minute + 2*time.Minute),
		})
	}
}

func freshFill(leaderID string, orderID int64, price, qty float64) LeaderFill {
	return LeaderFill{
		LeaderID: leaderID,
		Symbol:   "BTCUSDT",
		OrderID:  orderID,
		Side:     exchange.SideBuy,
		Price:    price,
		Quantity: qty,
		Time:     time.Now(),
	}
}

func newTestCopyEngine(client *fakeClient, feed *StaticFeed, followers []Follower) *Engine {
	return New(Config{
		Client: client,
		Feed:   feed,
		Logger: zerolog.Nop(),
		Leaders: []Leader{
			{ID: "leader-1", Name: "alpha", MinNotional: 100, MaxNotional: 100000},
		},
		Followers: followers,
	})
}

func TestReplicatesAdmissibleFill(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10)) // notional 1000

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	e.Tick(context.Background())

	copies := e.OpenCopies()
	if len(copies) != 1 {
		t.Fatalf("open copies = %d, want 1", len(copies))
	}
	// 1000 notional * 0.1 ratio at price 100 = 1 unit
	if copies[0].Quantity != 1 {
		t.Errorf("quantity = %f, want 1", copies[0].Quantity)
	}
	if copies[0].CopyID != "leader-1_500" {
		t.Errorf("copy id = %s, want leader-1_500", copies[0].CopyID)
	}
	if len(client.orders) != 1 {
		t.Errorf("orders = %d, want 1", len(client.orders))
	}
}

func TestCopyQuantitySizedAtLeaderFillPrice(t *testing.T) {
	// Market moved from the leader's fill price by the time the copy
	// fires; the notional is still converted at the fill price.
	client := &fakeClient{price: 200}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10)) // notional 1000 at fill price 100

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	e.Tick(context.Background())

	copies := e.OpenCopies()
	if len(copies) != 1 {
		t.Fatalf("open copies = %d, want 1", len(copies))
	}
	// 1000 * 0.1 / 100 = 1, regardless of the 200 market price
	if copies[0].Quantity != 1 {
		t.Errorf("quantity = %f, want 1", copies[0].Quantity)
	}
	// Entry is still the actual fill the exchange reported
	if copies[0].EntryPrice != 200 {
		t.Errorf("entry price = %f, want 200", copies[0].EntryPrice)
	}
}

func TestCopyDedupAcrossTicks(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e.Tick(ctx)
	}

	// One leader order, one copy, no matter how often it reappears
	if len(client.orders) != 1 {
		t.Fatalf("orders = %d, want 1 after repeated ticks", len(client.orders))
	}
}

func TestDailyQuotaStopsCopying(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	for i := int64(0); i < 5; i++ {
		feed.Add(freshFill("leader-1", 500+i, 100, 10))
	}

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 2}})
	e.Tick(context.Background())

	if len(client.orders) != 2 {
		t.Fatalf("orders = %d, want 2 with a daily quota of 2", len(client.orders))
	}
}

func TestFirstFollowerWins(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{
		{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10},
		{ID: "fol-2", CopyRatio: 0.2, MaxDailyCopies: 10},
	})
	e.Tick(context.Background())

	copies := e.OpenCopies()
	if len(copies) != 1 {
		t.Fatalf("open copies = %d, want 1", len(copies))
	}
	if copies[0].FollowerID != "fol-1" {
		t.Errorf("copy went to %s, want fol-1", copies[0].FollowerID)
	}
}

func TestQuotaExhaustedFallsThroughToNextFollower(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))
	feed.Add(freshFill("leader-1", 501, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{
		{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 1},
		{ID: "fol-2", CopyRatio: 0.1, MaxDailyCopies: 10},
	})
	e.Tick(context.Background())

	copies := e.OpenCopies()
	if len(copies) != 2 {
		t.Fatalf("open copies = %d, want 2", len(copies))
	}
	owners := map[string]bool{}
	for _, c := range copies {
		owners[c.FollowerID] = true
	}
	if !owners["fol-1"] || !owners["fol-2"] {
		t.Errorf("expected the second copy to spill to fol-2, got %v", owners)
	}
}

func TestNotionalAdmission(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 0.5))  // notional 50, below the 100 floor
	feed.Add(freshFill("leader-1", 501, 100, 2000)) // notional 200000, above the cap

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	e.Tick(context.Background())

	if len(client.orders) != 0 {
		t.Fatalf("orders = %d, want 0 for out-of-band notionals", len(client.orders))
	}
}

func TestWeakLeaderNotCopied(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	// Leader history is all losses
	base := time.Now().Add(-3 * time.Hour)
	feed.Add(LeaderFill{LeaderID: "leader-1", Symbol: "BTCUSDT", OrderID: 100,
		Side: exchange.SideBuy, Price: 100, Quantity: 10, Time: base})
	feed.Add(LeaderFill{LeaderID: "leader-1", Symbol: "BTCUSDT", OrderID: 101,
		Side: exchange.SideSell, Price: 90, Quantity: 10, Time: base.Add(5 * time.Minute)})
	feed.Add(freshFill("leader-1", 500, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	e.Tick(context.Background())

	if len(client.orders) != 0 {
		t.Fatalf("orders = %d, want 0 for a leader below the score floor", len(client.orders))
	}
}

func TestCopyTakeProfitExit(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	ctx := context.Background()
	e.Tick(ctx)
	if len(e.OpenCopies()) != 1 {
		t.Fatal("expected one open copy")
	}

	// A 4% move clears the 3% copy take-profit
	client.price = 104
	e.Tick(ctx)

	if len(e.OpenCopies()) != 0 {
		t.Fatal("expected copy closed at take profit")
	}
	summary := e.Summary()
	if summary.TotalCopies != 1 || summary.WinningCopies != 1 {
		t.Errorf("summary = %+v, want one winning copy", summary)
	}
	if summary.TotalProfit != 4 {
		t.Errorf("profit = %f, want 4", summary.TotalProfit)
	}
}

func TestCopyMaxHoldExit(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	ctx := context.Background()
	e.Tick(ctx)

	e.mu.Lock()
	e.copies["leader-1_500"].EntryTime = time.Now().Add(-3 * time.Hour)
	e.mu.Unlock()

	e.Tick(ctx)
	if len(e.OpenCopies()) != 0 {
		t.Fatal("expected stale copy closed on max hold")
	}
}

func TestShutdownFlattensCopies(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))

	e := newTestCopyEngine(client, feed, []Follower{{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10}})
	ctx := context.Background()
	e.Tick(ctx)

	e.Shutdown(ctx)
	if len(e.OpenCopies()) != 0 {
		t.Fatal("expected all copies flattened on shutdown")
	}
	// Entry order plus the flattening order
	if len(client.orders) != 2 {
		t.Errorf("orders = %d, want 2", len(client.orders))
	}
}

type fakeTracker struct {
	copied map[string]bool
	daily  map[string]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{copied: make(map[string]bool), daily: make(map[string]int)}
}

func (t *fakeTracker) IsCopied(ctx context.Context, copyID string) (bool, error) {
	return t.copied[copyID], nil
}

func (t *fakeTracker) MarkCopied(ctx context.Context, copyID string) error {
	t.copied[copyID] = true
	return nil
}

func (t *fakeTracker) CopiesToday(ctx context.Context, followerID string) (int, error) {
	return t.daily[followerID], nil
}

func (t *fakeTracker) IncrementDaily(ctx context.Context, followerID string) error {
	t.daily[followerID]++
	return nil
}

func TestTrackerDedupSurvivesRestart(t *testing.T) {
	client := &fakeClient{price: 100}
	feed := NewStaticFeed()
	strongHistory(feed, "leader-1")
	feed.Add(freshFill("leader-1", 500, 100, 10))

	tracker := newFakeTracker()
	tracker.copied["leader-1_500"] = true // copied by a previous run

	e := New(Config{
		Client:  client,
		Feed:    feed,
		Tracker: tracker,
		Logger:  zerolog.Nop(),
		Leaders: []Leader{{ID: "leader-1", MinNotional: 100, MaxNotional: 100000}},
		Followers: []Follower{
			{ID: "fol-1", CopyRatio: 0.1, MaxDailyCopies: 10},
		},
	})
	e.Tick(context.Background())

	if len(client.orders) != 0 {
		t.Fatalf("orders = %d, want 0 for an already-copied key", len(client.orders))
	}
}

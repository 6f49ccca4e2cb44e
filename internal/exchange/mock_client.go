package exchange

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data and paper fills for
// development and testing. It never talks to the network.
type MockClient struct {
	prices     map[string]float64
	balances   map[string]float64
	lotSteps   map[string]float64
	lastUpdate time.Time
	nextOrder  int64
	mu         sync.RWMutex
}

// NewMockClient creates a new mock client with a paper balance
func NewMockClient(startingUSDT float64) *MockClient {
	mc := &MockClient{
		lastUpdate: time.Now(),
		nextOrder:  1000,
	}

	// Realistic base prices
	mc.prices = map[string]float64{
		"BTCUSDT":  104500.00,
		"ETHUSDT":  3900.00,
		"BNBUSDT":  710.00,
		"SOLUSDT":  220.00,
		"XRPUSDT":  2.35,
		"ADAUSDT":  1.05,
		"DOGEUSDT": 0.40,
		"LINKUSDT": 28.00,
		"LTCUSDT":  115.00,
		"NEARUSDT": 7.00,
	}

	mc.lotSteps = map[string]float64{
		"BTCUSDT": 0.00001,
		"ETHUSDT": 0.0001,
		"BNBUSDT": 0.001,
		"SOLUSDT": 0.01,
	}

	mc.balances = map[string]float64{
		"USDT": startingUSDT,
	}

	return mc
}

// updatePrices adds small random variations to simulate market movement
func (mc *MockClient) updatePrices() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) < time.Second {
		return
	}

	for symbol, price := range mc.prices {
		// Random walk: -0.5% to +0.5% change
		change := (rand.Float64() - 0.5) * 0.01
		mc.prices[symbol] = price * (1 + change)
	}
	mc.lastUpdate = time.Now()
}

// GetKlines returns simulated candlestick data
func (mc *MockClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	mc.updatePrices()

	mc.mu.RLock()
	basePrice, ok := mc.prices[symbol]
	mc.mu.RUnlock()
	if !ok {
		basePrice = 100.0
	}

	var intervalDuration time.Duration
	switch interval {
	case "1m":
		intervalDuration = time.Minute
	case "5m":
		intervalDuration = 5 * time.Minute
	case "15m":
		intervalDuration = 15 * time.Minute
	case "1h":
		intervalDuration = time.Hour
	case "4h":
		intervalDuration = 4 * time.Hour
	case "1d":
		intervalDuration = 24 * time.Hour
	default:
		intervalDuration = time.Minute
	}

	klines := make([]Kline, limit)
	now := time.Now()

	// Generate historical klines working backwards from the base price
	currentPrice := basePrice
	for i := limit - 1; i >= 0; i-- {
		openTime := now.Add(-time.Duration(limit-i) * intervalDuration)
		closeTime := openTime.Add(intervalDuration)

		volatility := 0.02
		open := currentPrice
		change := (rand.Float64() - 0.5) * volatility * 2
		close := open * (1 + change)

		high := math.Max(open, close) * (1 + rand.Float64()*volatility*0.5)
		low := math.Min(open, close) * (1 - rand.Float64()*volatility*0.5)
		volume := 1000 + rand.Float64()*5000

		klines[i] = Kline{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: closeTime.UnixMilli(),
		}
		currentPrice = close
	}

	return klines, nil
}

// GetCurrentPrice returns the simulated price for a symbol
func (mc *MockClient) GetCurrentPrice(symbol string) (float64, error) {
	mc.updatePrices()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	price, ok := mc.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown symbol %s: %w", symbol, ErrDataUnavailable)
	}
	return price, nil
}

// GetBalances returns the simulated paper balances
func (mc *MockClient) GetBalances() (map[string]float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]float64, len(mc.balances))
	for asset, free := range mc.balances {
		out[asset] = free
	}
	return out, nil
}

// GetLotStep returns the simulated LOT_SIZE step for a symbol
func (mc *MockClient) GetLotStep(symbol string) (float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.lotSteps[symbol], nil
}

// PlaceMarketOrder fills the order instantly at the current mock price
func (mc *MockClient) PlaceMarketOrder(symbol, side string, quantity float64) (*OrderResponse, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %f: %w", quantity, ErrExecution)
	}

	price, err := mc.GetCurrentPrice(symbol)
	if err != nil {
		return nil, fmt.Errorf("no mock price for %s: %w", symbol, ErrExecution)
	}

	mc.mu.Lock()
	mc.nextOrder++
	orderID := mc.nextOrder
	mc.mu.Unlock()

	return &OrderResponse{
		Symbol:      symbol,
		OrderID:     orderID,
		Side:        side,
		Type:        "MARKET",
		Status:      "FILLED",
		Price:       price,
		OrigQty:     quantity,
		ExecutedQty: quantity,
	}, nil
}

// SetPrice pins a symbol's mock price, useful in tests
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = price
	mc.lastUpdate = time.Now()
}

// SetBalance pins an asset's mock balance
func (mc *MockClient) SetBalance(asset string, free float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.balances[asset] = free
}

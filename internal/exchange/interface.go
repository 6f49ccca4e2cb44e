package exchange

// Order sides as the exchange expects them.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// OppositeSide returns the side that flattens a position opened with side.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ExchangeClient defines the interface for exchange operations.
// Both the real REST client and the mock client implement it, so the
// engines can run against either without knowing which one they hold.
type ExchangeClient interface {
	// GetKlines fetches historical candlestick data
	GetKlines(symbol, interval string, limit int) ([]Kline, error)

	// GetCurrentPrice fetches the latest trade price for a symbol
	GetCurrentPrice(symbol string) (float64, error)

	// GetBalances fetches per-asset balances, free plus locked
	GetBalances() (map[string]float64, error)

	// GetLotStep fetches the quantity step from the symbol's LOT_SIZE
	// filter. A step of 0 means no rounding constraint is known.
	GetLotStep(symbol string) (float64, error)

	// PlaceMarketOrder submits a market order and returns the fill
	PlaceMarketOrder(symbol, side string, quantity float64) (*OrderResponse, error)
}

// Kline represents a single candlestick
type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// OrderResponse represents the exchange's acknowledgement of an order
type OrderResponse struct {
	Symbol      string  `json:"symbol"`
	OrderID     int64   `json:"orderId"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Price       float64 `json:"price,string"`
	OrigQty     float64 `json:"origQty,string"`
	ExecutedQty float64 `json:"executedQty,string"`
}

// Fill is a historical account fill, used by the copy trading engine to
// mirror and score leader accounts.
type Fill struct {
	Symbol   string
	OrderID  int64
	Side     string
	Price    float64
	Quantity float64
	Time     int64 // milliseconds since epoch
}

// Compile-time interface checks
var (
	_ ExchangeClient = (*Client)(nil)
	_ ExchangeClient = (*MockClient)(nil)
)

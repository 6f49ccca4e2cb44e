package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the REST client for the exchange's spot API.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, secretKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKlines fetches candlestick data
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	body, err := c.get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s: %v: %w", symbol, err, ErrDataUnavailable)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("parsing klines: %v: %w", err, ErrDataUnavailable)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline row: %w", ErrDataUnavailable)
		}
		openTime, ok := parseTimestamp(raw[0])
		if !ok {
			return nil, fmt.Errorf("malformed kline open time %v: %w", raw[0], ErrDataUnavailable)
		}
		closeTime, ok := parseTimestamp(raw[6])
		if !ok {
			return nil, fmt.Errorf("malformed kline close time %v: %w", raw[6], ErrDataUnavailable)
		}
		klines[i] = Kline{
			OpenTime:  openTime,
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: closeTime,
		}
	}

	return klines, nil
}

// GetCurrentPrice fetches the latest trade price for a symbol
func (c *Client) GetCurrentPrice(symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, symbol)

	body, err := c.get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("fetching price for %s: %v: %w", symbol, err, ErrDataUnavailable)
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("parsing ticker: %v: %w", err, ErrDataUnavailable)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %v: %w", ticker.Price, err, ErrDataUnavailable)
	}

	return price, nil
}

// GetBalances fetches per-asset balances (free plus locked) from the
// account endpoint
func (c *Client) GetBalances() (map[string]float64, error) {
	body, err := c.signedRequest("GET", "/api/v3/account", map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("fetching account: %v: %w", err, ErrDataUnavailable)
	}

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("parsing account: %v: %w", err, ErrDataUnavailable)
	}

	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		balances[b.Asset] = free + locked
	}

	return balances, nil
}

// GetLotStep fetches the LOT_SIZE step for a symbol from exchange info
func (c *Client) GetLotStep(symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%s", c.baseURL, symbol)

	body, err := c.get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("fetching exchange info for %s: %v: %w", symbol, err, ErrDataUnavailable)
	}

	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, fmt.Errorf("parsing exchange info: %v: %w", err, ErrDataUnavailable)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				step, err := strconv.ParseFloat(f.StepSize, 64)
				if err != nil {
					return 0, fmt.Errorf("parsing step size %q: %v: %w", f.StepSize, err, ErrDataUnavailable)
				}
				return step, nil
			}
		}
	}

	// No LOT_SIZE filter published for the symbol
	return 0, nil
}

// PlaceMarketOrder submits a market order
func (c *Client) PlaceMarketOrder(symbol, side string, quantity float64) (*OrderResponse, error) {
	params := map[string]string{
		"symbol":   symbol,
		"side":     side,
		"type":     "MARKET",
		"quantity": strconv.FormatFloat(quantity, 'f', -1, 64),
	}

	body, err := c.signedRequest("POST", "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("placing %s %s order: %v: %w", side, symbol, err, ErrExecution)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("parsing order response: %v: %w", err, ErrExecution)
	}

	if orderResp.Status != "FILLED" && orderResp.Status != "PARTIALLY_FILLED" {
		return nil, fmt.Errorf("order %d not filled, status %s: %w", orderResp.OrderID, orderResp.Status, ErrExecution)
	}

	return &orderResp, nil
}

// GetAccountFills fetches recent fills for a symbol on this account.
// Used with leader credentials to mirror their activity.
func (c *Client) GetAccountFills(symbol string, limit int) ([]Fill, error) {
	params := map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	}

	body, err := c.signedRequest("GET", "/api/v3/myTrades", params)
	if err != nil {
		return nil, fmt.Errorf("fetching fills for %s: %v: %w", symbol, err, ErrDataUnavailable)
	}

	var raw []struct {
		Symbol  string `json:"symbol"`
		OrderID int64  `json:"orderId"`
		Price   string `json:"price"`
		Qty     string `json:"qty"`
		Time    int64  `json:"time"`
		IsBuyer bool   `json:"isBuyer"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing fills: %v: %w", err, ErrDataUnavailable)
	}

	fills := make([]Fill, len(raw))
	for i, r := range raw {
		side := SideSell
		if r.IsBuyer {
			side = SideBuy
		}
		price, _ := strconv.ParseFloat(r.Price, 64)
		qty, _ := strconv.ParseFloat(r.Qty, 64)
		fills[i] = Fill{
			Symbol:   r.Symbol,
			OrderID:  r.OrderID,
			Side:     side,
			Price:    price,
			Quantity: qty,
			Time:     r.Time,
		}
	}

	return fills, nil
}

func (c *Client) get(endpoint string) ([]byte, error) {
	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	return body, nil
}

func (c *Client) signedRequest(method, path string, params map[string]string) ([]byte, error) {
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	// The signature covers the exact query string sent
	query := values.Encode()
	query += "&signature=" + c.sign(query)

	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = query
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	return body, nil
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseTimestamp(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}

package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"futures-quant-bot/internal/market"
)

// BinanceClient is the Binance USDT-M futures REST implementation of
// Adapter. All requests go through the priority rate limiter; signed
// requests use HMAC-SHA256 over the query string.
type BinanceClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	tracker    *OrderTracker
}

// NewBinanceClient creates a futures REST client
func NewBinanceClient(apiKey, secretKey, baseURL string, tracker *OrderTracker) *BinanceClient {
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}
	return &BinanceClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    NewRateLimiter(),
		tracker:    tracker,
	}
}

// GetKlines fetches candles; the last bar returned is the forming one
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if err := c.limiter.Acquire(ctx, PriorityNormal, 5); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		candles = append(candles, market.Candle{
			OpenTime:  int64(asFloat(row[0])),
			Open:      asFloat(row[1]),
			High:      asFloat(row[2]),
			Low:       asFloat(row[3]),
			Close:     asFloat(row[4]),
			Volume:    asFloat(row[5]),
			CloseTime: int64(asFloat(row[6])),
		})
	}
	return candles, nil
}

// GetFundingRate fetches the current funding rate
func (c *BinanceClient) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Acquire(ctx, PriorityLow, 1); err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return 0, fmt.Errorf("fetch funding rate: %w", err)
	}

	var resp struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse funding rate: %w", err)
	}
	rate, err := strconv.ParseFloat(resp.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("parse funding rate value: %w", err)
	}
	return rate, nil
}

// GetCurrentPrice fetches the latest traded price
func (c *BinanceClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Acquire(ctx, PriorityHigh, 1); err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse price: %w", err)
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// GetAccountBalance returns the available USDT balance
func (c *BinanceClient) GetAccountBalance(ctx context.Context) (float64, error) {
	if err := c.limiter.Acquire(ctx, PriorityHigh, 5); err != nil {
		return 0, err
	}

	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}

	var balances []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return 0, fmt.Errorf("parse balance: %w", err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			return strconv.ParseFloat(b.AvailableBalance, 64)
		}
	}
	return 0, nil
}

// GetPosition returns the open position for a symbol, or nil when flat
func (c *BinanceClient) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	if err := c.limiter.Acquire(ctx, PriorityHigh, 5); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, fmt.Errorf("fetch position: %w", err)
	}

	var positions []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
	}
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}

	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			return nil, nil
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(p.Leverage)

		side := SideLong
		qty := amt
		if amt < 0 {
			side = SideShort
			qty = -amt
		}
		return &Position{
			Symbol:        symbol,
			Side:          side,
			EntryPrice:    entry,
			Quantity:      qty,
			Leverage:      lev,
			UnrealizedPnL: pnl,
		}, nil
	}
	return nil, nil
}

// SetLeverage sets leverage for subsequent orders on the symbol
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := c.limiter.Acquire(ctx, PriorityCritical, 1); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	if _, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}
	return nil
}

// PlaceMarketOrder submits a market order and returns the fill
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*Fill, error) {
	if err := c.limiter.Acquire(ctx, PriorityCritical, 1); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newOrderRespType", "RESULT")

	body, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		c.tracker.OrderRejected(symbol, string(side), quantity, err)
		return nil, fmt.Errorf("place market order: %w", err)
	}

	var resp struct {
		OrderID     int64  `json:"orderId"`
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
		UpdateTime  int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	price, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	qty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	fill := &Fill{
		OrderID:  resp.OrderID,
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Time:     time.UnixMilli(resp.UpdateTime),
	}
	c.tracker.OrderFilled(fill)
	return fill, nil
}

// SetStopLossTakeProfit attaches STOP_MARKET and TAKE_PROFIT_MARKET
// close-position orders to the open position
func (c *BinanceClient) SetStopLossTakeProfit(ctx context.Context, symbol string, side PositionSide, stopLoss, takeProfit float64) error {
	// Exits close the position, so they trade opposite to it
	exitSide := OrderSell
	if side == SideShort {
		exitSide = OrderBuy
	}

	for _, order := range []struct {
		orderType string
		stopPrice float64
	}{
		{"STOP_MARKET", stopLoss},
		{"TAKE_PROFIT_MARKET", takeProfit},
	} {
		if err := c.limiter.Acquire(ctx, PriorityCritical, 1); err != nil {
			return err
		}

		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("side", string(exitSide))
		params.Set("type", order.orderType)
		params.Set("stopPrice", strconv.FormatFloat(order.stopPrice, 'f', -1, 64))
		params.Set("closePosition", "true")

		if _, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params); err != nil {
			return fmt.Errorf("set %s: %w", strings.ToLower(order.orderType), err)
		}
	}

	c.tracker.ExitsPlaced(symbol, string(side), stopLoss, takeProfit)
	return nil
}

func (c *BinanceClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, query)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	return c.do(req)
}

func (c *BinanceClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

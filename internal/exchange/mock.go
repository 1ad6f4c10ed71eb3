package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"futures-quant-bot/internal/market"
)

// MockClient is a deterministic in-memory Adapter used for dry-run mode
// and tests. Prices follow a seeded sine walk so repeated runs reproduce
// the same series.
type MockClient struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*Position
	basePrice map[string]float64
	orderSeq  int64
	funding   float64
	leverage  map[string]int
}

// NewMockClient creates a mock exchange with the given starting balance
func NewMockClient(balance float64) *MockClient {
	return &MockClient{
		balance:   balance,
		positions: make(map[string]*Position),
		basePrice: map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000},
		leverage:  make(map[string]int),
	}
}

// SetFundingRate fixes the funding rate the mock reports
func (m *MockClient) SetFundingRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding = rate
}

func (m *MockClient) base(symbol string) float64 {
	if p, ok := m.basePrice[symbol]; ok {
		return p
	}
	return 100
}

// priceAt generates a deterministic price for a bar index: a slow sine
// cycle plus a faster ripple around the symbol's base price
func (m *MockClient) priceAt(symbol string, i int64) float64 {
	base := m.base(symbol)
	slow := math.Sin(float64(i)/40) * base * 0.03
	fast := math.Sin(float64(i)/7) * base * 0.008
	return base + slow + fast
}

// GetKlines returns synthetic time-ordered candles; the final bar is the
// forming one
func (m *MockClient) GetKlines(_ context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	step := timeframeMillis(timeframe)
	if step == 0 {
		return nil, fmt.Errorf("mock: unknown timeframe %q", timeframe)
	}

	now := time.Now().UnixMilli()
	latestOpen := now - now%step

	candles := make([]market.Candle, 0, limit)
	for n := limit - 1; n >= 0; n-- {
		openTime := latestOpen - int64(n)*step
		i := openTime / step
		open := m.priceAt(symbol, i)
		close := m.priceAt(symbol, i+1)
		hi := math.Max(open, close) * 1.002
		lo := math.Min(open, close) * 0.998
		candles = append(candles, market.Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     close,
			Volume:    1000 + float64(i%17)*50,
			CloseTime: openTime + step - 1,
		})
	}
	return candles, nil
}

// GetFundingRate returns the configured funding rate
func (m *MockClient) GetFundingRate(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.funding, nil
}

// GetCurrentPrice returns the current synthetic price
func (m *MockClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	step := timeframeMillis("5m")
	i := time.Now().UnixMilli() / step
	return m.priceAt(symbol, i+1), nil
}

// GetAccountBalance returns the simulated balance
func (m *MockClient) GetAccountBalance(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// GetPosition returns the simulated open position, or nil
func (m *MockClient) GetPosition(_ context.Context, symbol string) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

// SetLeverage records leverage for the symbol
func (m *MockClient) SetLeverage(_ context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverage[symbol] = leverage
	return nil
}

// PlaceMarketOrder fills immediately at the current synthetic price,
// opening, adding to, or closing the simulated position
func (m *MockClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*Fill, error) {
	price, err := m.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.orderSeq++
	fill := &Fill{
		OrderID:  m.orderSeq,
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: quantity,
		Time:     time.Now(),
	}

	pos := m.positions[symbol]
	sameDirection := pos != nil &&
		((side == OrderBuy && pos.Side == SideLong) || (side == OrderSell && pos.Side == SideShort))

	switch {
	case pos == nil:
		posSide := SideLong
		if side == OrderSell {
			posSide = SideShort
		}
		lev := m.leverage[symbol]
		if lev == 0 {
			lev = 1
		}
		m.positions[symbol] = &Position{
			Symbol:     symbol,
			Side:       posSide,
			EntryPrice: price,
			Quantity:   quantity,
			Leverage:   lev,
		}
	case sameDirection:
		// Average into the existing position
		total := pos.Quantity + quantity
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*quantity) / total
		pos.Quantity = total
	default:
		// Reduce or close
		pnl := (price - pos.EntryPrice) * math.Min(quantity, pos.Quantity)
		if pos.Side == SideShort {
			pnl = -pnl
		}
		m.balance += pnl
		pos.Quantity -= quantity
		if pos.Quantity <= 0 {
			delete(m.positions, symbol)
		}
	}

	return fill, nil
}

// SetStopLossTakeProfit is a no-op for the mock; exits are not simulated
func (m *MockClient) SetStopLossTakeProfit(context.Context, string, PositionSide, float64, float64) error {
	return nil
}

func timeframeMillis(tf string) int64 {
	switch tf {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	default:
		return 0
	}
}

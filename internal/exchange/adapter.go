package exchange

import (
	"context"

	"futures-quant-bot/internal/market"
)

// Adapter is the execution boundary the decision pipeline depends on. The
// pipeline calls these side-effecting capabilities but never implements
// them; the live Binance client, the mock client, and the replay engine's
// simulated account all satisfy this interface.
type Adapter interface {
	market.DataSource

	// GetCurrentPrice returns the latest traded price
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// GetAccountBalance returns the available quote-currency balance
	GetAccountBalance(ctx context.Context) (float64, error)

	// GetPosition returns the open position for a symbol, or nil
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// SetLeverage sets the leverage used for subsequent orders
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder submits a market order and returns the fill
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*Fill, error)

	// SetStopLossTakeProfit attaches exit orders to the open position
	SetStopLossTakeProfit(ctx context.Context, symbol string, side PositionSide, stopLoss, takeProfit float64) error
}

package exchange

import "time"

// PositionSide is the direction of an open position
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position is an open futures position as reported by the exchange. The
// exchange owns this data; the pipeline only reads it to detect direction
// conflicts and compute realized PnL on close.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	EntryPrice    float64      `json:"entry_price"`
	Quantity      float64      `json:"quantity"`
	Leverage      int          `json:"leverage"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
}

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// Fill is the result of a market order placement
type Fill struct {
	OrderID  int64     `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Time     time.Time `json:"time"`
}

package exchange

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OrderTracker keeps an in-memory record of every order event and writes a
// structured log line for each, so the execution trail survives even when
// the database sink is disabled.
type OrderTracker struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	events []OrderEvent
}

// OrderEvent is one recorded execution event
type OrderEvent struct {
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"` // "filled", "rejected", "exits_placed"
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Price    float64   `json:"price,omitempty"`
	Quantity float64   `json:"quantity,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// NewOrderTracker creates a tracker logging through the given zerolog logger
func NewOrderTracker(logger zerolog.Logger) *OrderTracker {
	return &OrderTracker{
		logger: logger.With().Str("component", "OrderTracker").Logger(),
	}
}

// OrderFilled records a successful fill
func (t *OrderTracker) OrderFilled(fill *Fill) {
	if t == nil {
		return
	}
	t.record(OrderEvent{
		Time:     fill.Time,
		Kind:     "filled",
		Symbol:   fill.Symbol,
		Side:     string(fill.Side),
		Price:    fill.Price,
		Quantity: fill.Quantity,
	})
	t.logger.Info().
		Str("symbol", fill.Symbol).
		Str("side", string(fill.Side)).
		Float64("price", fill.Price).
		Float64("quantity", fill.Quantity).
		Int64("order_id", fill.OrderID).
		Msg("order filled")
}

// OrderRejected records a failed placement
func (t *OrderTracker) OrderRejected(symbol, side string, quantity float64, err error) {
	if t == nil {
		return
	}
	t.record(OrderEvent{
		Time:     time.Now(),
		Kind:     "rejected",
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Error:    err.Error(),
	})
	t.logger.Error().
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", quantity).
		Err(err).
		Msg("order rejected")
}

// ExitsPlaced records stop-loss/take-profit placement
func (t *OrderTracker) ExitsPlaced(symbol, side string, stopLoss, takeProfit float64) {
	if t == nil {
		return
	}
	t.record(OrderEvent{
		Time:   time.Now(),
		Kind:   "exits_placed",
		Symbol: symbol,
		Side:   side,
	})
	t.logger.Info().
		Str("symbol", symbol).
		Str("side", side).
		Float64("stop_loss", stopLoss).
		Float64("take_profit", takeProfit).
		Msg("exit orders placed")
}

// Recent returns up to n most recent events, newest first
func (t *OrderTracker) Recent(n int) []OrderEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n > len(t.events) {
		n = len(t.events)
	}
	out := make([]OrderEvent, n)
	for i := 0; i < n; i++ {
		out[i] = t.events[len(t.events)-1-i]
	}
	return out
}

const maxTrackedEvents = 500

func (t *OrderTracker) record(ev OrderEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
	if len(t.events) > maxTrackedEvents {
		t.events = t.events[len(t.events)-maxTrackedEvents:]
	}
}

package events

import (
	"sync"
	"time"
)

// EventType distinguishes bus events
type EventType string

const (
	EventCycleStarted   EventType = "CYCLE_STARTED"
	EventCycleCompleted EventType = "CYCLE_COMPLETED"
	EventVoteComputed   EventType = "VOTE_COMPUTED"
	EventOrderPlaced    EventType = "ORDER_PLACED"
	EventOrderBlocked   EventType = "ORDER_BLOCKED"
	EventPositionClosed EventType = "POSITION_CLOSED"
	EventBreakerTripped EventType = "BREAKER_TRIPPED"
	EventBreakerReset   EventType = "BREAKER_RESET"
	EventBotStarted     EventType = "BOT_STARTED"
	EventBotStopped     EventType = "BOT_STOPPED"
	EventError          EventType = "ERROR"
)

// Event is one published occurrence with a free-form payload
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles published events
type Subscriber func(Event)

// Bus fan-outs events to subscribers. Handlers run on their own goroutines
// so a slow consumer never stalls the decision loop.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to its subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishCycleCompleted publishes a decision-cycle summary
func (b *Bus) PublishCycleCompleted(cycleID, symbol, outcome, action string, confidence float64) {
	b.Publish(Event{
		Type: EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle_id":   cycleID,
			"symbol":     symbol,
			"outcome":    outcome,
			"action":     action,
			"confidence": confidence,
		},
	})
}

// PublishOrderPlaced publishes an executed order
func (b *Bus) PublishOrderPlaced(cycleID, symbol, action string, price, quantity float64, leverage int) {
	b.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"cycle_id": cycleID,
			"symbol":   symbol,
			"action":   action,
			"price":    price,
			"quantity": quantity,
			"leverage": leverage,
		},
	})
}

// PublishOrderBlocked publishes a risk veto
func (b *Bus) PublishOrderBlocked(cycleID, symbol, reason string) {
	b.Publish(Event{
		Type: EventOrderBlocked,
		Data: map[string]interface{}{
			"cycle_id": cycleID,
			"symbol":   symbol,
			"reason":   reason,
		},
	})
}

// PublishPositionClosed publishes a completed round trip
func (b *Bus) PublishPositionClosed(symbol, side string, entryPrice, exitPrice, pnl float64) {
	b.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"pnl":         pnl,
		},
	})
}

// PublishBreakerTripped publishes a circuit breaker trip
func (b *Bus) PublishBreakerTripped(reason string) {
	b.Publish(Event{
		Type: EventBreakerTripped,
		Data: map[string]interface{}{"reason": reason},
	})
}

// PublishBreakerReset publishes a circuit breaker recovery
func (b *Bus) PublishBreakerReset() {
	b.Publish(Event{Type: EventBreakerReset, Data: map[string]interface{}{}})
}

// PublishError publishes a component failure
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}

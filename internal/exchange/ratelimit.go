package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RequestPriority ranks API requests. Higher priorities get a larger share
// of the per-minute weight budget so orders always go through before
// background data pulls.
type RequestPriority int

const (
	PriorityCritical RequestPriority = iota // Orders, exits: up to 95% of budget
	PriorityHigh                            // Positions, balance: up to 80%
	PriorityNormal                          // Klines for active symbols: up to 60%
	PriorityLow                             // Funding rate, analytics: up to 40%
)

func (p RequestPriority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Binance futures allows 2400 request weight per minute
const weightBudgetPerMinute = 2400

// RateLimiter is a weight-budget limiter over a rolling one-minute window
// with per-priority thresholds.
type RateLimiter struct {
	mu         sync.Mutex
	usedWeight int
	windowEnd  time.Time
}

// NewRateLimiter creates a limiter with the Binance futures weight budget
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windowEnd: time.Now().Add(time.Minute)}
}

// Acquire blocks until the request's weight fits inside its priority's
// share of the budget, or the context is cancelled.
func (rl *RateLimiter) Acquire(ctx context.Context, priority RequestPriority, weight int) error {
	for {
		wait, ok := rl.tryAcquire(priority, weight)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (rl *RateLimiter) tryAcquire(priority RequestPriority, weight int) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.After(rl.windowEnd) {
		rl.usedWeight = 0
		rl.windowEnd = now.Add(time.Minute)
	}

	limit := int(float64(weightBudgetPerMinute) * priorityShare(priority))
	if rl.usedWeight+weight <= limit {
		rl.usedWeight += weight
		return 0, true
	}
	return rl.windowEnd.Sub(now), false
}

// Usage returns the current fraction of the budget consumed
func (rl *RateLimiter) Usage() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return float64(rl.usedWeight) / float64(weightBudgetPerMinute)
}

func priorityShare(p RequestPriority) float64 {
	switch p {
	case PriorityCritical:
		return 0.95
	case PriorityHigh:
		return 0.80
	case PriorityNormal:
		return 0.60
	default:
		return 0.40
	}
}

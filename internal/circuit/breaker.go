package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/events"
)

// State is the breaker's operating mode
type State string

const (
	StateClosed   State = "closed"    // Normal operation
	StateOpen     State = "open"      // Trading halted
	StateHalfOpen State = "half_open" // Cooldown passed, probing recovery
)

// Breaker halts new entries after loss streaks or drawdown bursts. It is
// consulted before each cycle's execution step; a tripped breaker turns the
// cycle into a hold, it never interrupts closes.
type Breaker struct {
	cfg               config.BreakerConfig
	state             State
	consecutiveLosses int
	dailyLossPct      float64
	tradesLastHour    int
	lastTripTime      time.Time
	hourResetTime     time.Time
	dayResetTime      time.Time
	tripReason        string
	bus               *events.Bus
	mu                sync.Mutex
}

// NewBreaker creates a breaker. bus may be nil.
func NewBreaker(cfg config.BreakerConfig, bus *events.Bus) *Breaker {
	now := time.Now()
	return &Breaker{
		cfg:           cfg,
		state:         StateClosed,
		bus:           bus,
		hourResetTime: now.Add(time.Hour),
		dayResetTime:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}

// Allow reports whether a new position may be opened, with the blocking
// reason when it may not
func (b *Breaker) Allow() (bool, string) {
	if !b.cfg.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetWindows()

	if b.state == StateOpen {
		cooldown := time.Duration(b.cfg.CooldownMinutes) * time.Minute
		if elapsed := time.Since(b.lastTripTime); elapsed < cooldown {
			return false, fmt.Sprintf("breaker open, %s cooldown remaining (%s)",
				(cooldown - elapsed).Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	if b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		return false, fmt.Sprintf("%d consecutive losses", b.consecutiveLosses)
	}
	if b.dailyLossPct >= b.cfg.MaxDailyLossPct {
		return false, fmt.Sprintf("daily loss %.2f%% at limit", b.dailyLossPct*100)
	}
	if b.tradesLastHour >= b.cfg.MaxTradesPerHour {
		return false, fmt.Sprintf("%d trades in the last hour", b.tradesLastHour)
	}
	return true, ""
}

// RecordTrade updates loss counters with a completed round trip's PnL as a
// fraction of equity. NaN and infinite values are ignored.
func (b *Breaker) RecordTrade(pnlFraction float64) {
	if !b.cfg.Enabled || math.IsNaN(pnlFraction) || math.IsInf(pnlFraction, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetWindows()
	b.tradesLastHour++

	if pnlFraction < 0 {
		b.consecutiveLosses++
		b.dailyLossPct += -pnlFraction
		b.checkTrip()
		return
	}

	b.consecutiveLosses = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		if b.bus != nil {
			b.bus.PublishBreakerReset()
		}
	}
}

// Reset manually closes the breaker and clears the loss streak
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveLosses = 0
	b.tripReason = ""
	if b.bus != nil {
		b.bus.PublishBreakerReset()
	}
}

// State returns the current operating mode
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker counters
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"daily_loss_pct":     b.dailyLossPct,
		"trades_last_hour":   b.tradesLastHour,
		"trip_reason":        b.tripReason,
		"last_trip_time":     b.lastTripTime,
	}
}

func (b *Breaker) checkTrip() {
	var reason string
	switch {
	case b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses:
		reason = fmt.Sprintf("consecutive losses: %d", b.consecutiveLosses)
	case b.dailyLossPct >= b.cfg.MaxDailyLossPct:
		reason = fmt.Sprintf("daily loss: %.2f%%", b.dailyLossPct*100)
	default:
		return
	}

	b.state = StateOpen
	b.lastTripTime = time.Now()
	b.tripReason = reason
	if b.bus != nil {
		b.bus.PublishBreakerTripped(reason)
	}
}

func (b *Breaker) resetWindows() {
	now := time.Now()
	if now.After(b.hourResetTime) {
		b.tradesLastHour = 0
		b.hourResetTime = now.Add(time.Hour)
	}
	if now.After(b.dayResetTime) {
		b.dailyLossPct = 0
		b.dayResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

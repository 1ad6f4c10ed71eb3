package circuit

import (
	"math"
	"strings"
	"testing"

	"futures-quant-bot/config"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		Enabled:              true,
		MaxConsecutiveLosses: 3,
		MaxDailyLossPct:      0.10,
		MaxTradesPerHour:     100,
		CooldownMinutes:      30,
	}
}

func TestBreakerTripsOnConsecutiveLosses(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("fresh breaker must allow trading")
	}
	for i := 0; i < 3; i++ {
		b.RecordTrade(-0.01)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s after 3 losses, want %s", b.State(), StateOpen)
	}
	ok, reason := b.Allow()
	if ok {
		t.Fatal("tripped breaker must block entries")
	}
	if !strings.Contains(reason, "cooldown") {
		t.Errorf("blocking reason %q should mention the cooldown", reason)
	}
}

func TestBreakerWinResetsStreak(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)
	b.RecordTrade(-0.01)
	b.RecordTrade(-0.01)
	b.RecordTrade(0.02) // Winner clears the streak
	b.RecordTrade(-0.01)

	if ok, reason := b.Allow(); !ok {
		t.Errorf("breaker blocked after streak was reset: %s", reason)
	}
}

func TestBreakerTripsOnDailyLoss(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)
	b.RecordTrade(-0.06)
	if b.State() == StateOpen {
		t.Fatal("single 6% loss should not trip a 10% daily limit")
	}
	b.RecordTrade(0.001) // Keep the streak from tripping first
	b.RecordTrade(-0.06)
	if b.State() != StateOpen {
		t.Fatalf("state = %s after 12%% daily loss, want %s", b.State(), StateOpen)
	}
}

func TestBreakerManualReset(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)
	for i := 0; i < 3; i++ {
		b.RecordTrade(-0.005)
	}
	if ok, _ := b.Allow(); ok {
		t.Fatal("breaker should be open before reset")
	}

	b.Reset()
	if ok, reason := b.Allow(); !ok {
		t.Errorf("breaker still blocking after manual reset: %s", reason)
	}
}

func TestBreakerIgnoresInvalidPnL(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)
	b.RecordTrade(math.NaN())
	b.RecordTrade(math.Inf(-1))

	stats := b.Stats()
	if stats["consecutive_losses"].(int) != 0 {
		t.Error("NaN/Inf PnL must not count as losses")
	}
}

func TestBreakerDisabled(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Enabled = false
	b := NewBreaker(cfg, nil)
	for i := 0; i < 10; i++ {
		b.RecordTrade(-0.05)
	}
	if ok, _ := b.Allow(); !ok {
		t.Error("disabled breaker must always allow")
	}
}

package risk

import (
	"math"
	"testing"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/vote"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxLeverage:        20,
		MaxPositionPct:     0.25,
		MinStopLossPct:     0.005,
		MaxStopLossPct:     0.05,
		DefaultStopLossPct: 0.02,
		TakeProfitRatio:    2.0,
		MaxRiskPerTrade:    0.02,
		MarginBuffer:       0.05,
		MaxFundingRate:     0.0005,
	}
}

func testEngine() *Engine {
	return NewEngine(testRiskConfig(), logging.New(&logging.Config{Level: "ERROR"}))
}

func TestAuditInvertedStopRecomputed(t *testing.T) {
	e := testEngine()
	// Long order with the stop above entry and the target below: an
	// upstream direction bug, fixed by recomputing both exits
	order := &OrderParams{
		Symbol:     "BTCUSDT",
		Action:     vote.ActionLong,
		EntryPrice: 100,
		StopLoss:   105,
		TakeProfit: 90,
		Quantity:   0.1,
		Leverage:   5,
		Confidence: 0.7,
	}

	result := e.Audit(order, nil, 10000, 100, 0)
	if !result.Passed {
		t.Fatalf("audit blocked a correctable order: %s", result.BlockedReason)
	}
	if order.StopLoss != 98 {
		t.Errorf("recomputed stop = %f, want 98 (entry - 2%%)", order.StopLoss)
	}
	if order.TakeProfit != 104 {
		t.Errorf("recomputed target = %f, want 104 (entry + 4%%)", order.TakeProfit)
	}
	if _, ok := result.Corrections["stop_loss"]; !ok {
		t.Error("stop_loss correction not recorded")
	}
	if !(order.StopLoss < order.EntryPrice && order.EntryPrice < order.TakeProfit) {
		t.Error("long exit invariant violated after audit")
	}
}

func TestAuditShortStopInvariant(t *testing.T) {
	e := testEngine()
	order := &OrderParams{
		Symbol:     "ETHUSDT",
		Action:     vote.ActionShort,
		EntryPrice: 200,
		StopLoss:   190, // Inverted for a short
		TakeProfit: 220,
		Quantity:   1,
		Leverage:   3,
		Confidence: 0.7,
	}

	result := e.Audit(order, nil, 10000, 200, 0)
	if !result.Passed {
		t.Fatalf("audit blocked a correctable order: %s", result.BlockedReason)
	}
	if !(order.TakeProfit < order.EntryPrice && order.EntryPrice < order.StopLoss) {
		t.Errorf("short exit invariant violated: tp=%f entry=%f sl=%f",
			order.TakeProfit, order.EntryPrice, order.StopLoss)
	}
}

func TestAuditZeroBalanceBlocks(t *testing.T) {
	e := testEngine()
	order := ProposeOrder("BTCUSDT", vote.ActionLong, 0.8, 100, 0, 0.1, 0.02, 2.0, 5)

	result := e.Audit(order, nil, 0, 100, 0)
	if result.Passed {
		t.Fatal("audit passed with zero balance")
	}
	if result.BlockedReason == "" {
		t.Error("blocked result must carry a reason")
	}
}

func TestAuditLeverageClamp(t *testing.T) {
	e := testEngine()
	order := ProposeOrder("BTCUSDT", vote.ActionLong, 0.8, 100, 10000, 0.1, 0.02, 2.0, 50)

	result := e.Audit(order, nil, 10000, 100, 0)
	if !result.Passed {
		t.Fatalf("audit blocked: %s", result.BlockedReason)
	}
	if order.Leverage != 20 {
		t.Errorf("leverage = %d, want clamped to 20", order.Leverage)
	}
	if _, ok := result.Corrections["leverage"]; !ok {
		t.Error("leverage correction not recorded")
	}
}

func TestAuditRiskPerTradeBound(t *testing.T) {
	e := testEngine()
	// Oversized proposal: full position cap at max leverage
	order := ProposeOrder("BTCUSDT", vote.ActionLong, 1.0, 100, 10000, 0.25, 0.05, 2.0, 20)

	result := e.Audit(order, nil, 10000, 100, 0)
	if !result.Passed {
		t.Fatalf("audit blocked: %s", result.BlockedReason)
	}
	if risk := PositionRisk(order, 10000); risk > 0.02+1e-9 {
		t.Errorf("post-audit risk fraction = %f, exceeds 0.02", risk)
	}
}

func TestAuditStopDistanceClamped(t *testing.T) {
	e := testEngine()
	order := &OrderParams{
		Symbol:     "BTCUSDT",
		Action:     vote.ActionLong,
		EntryPrice: 100,
		StopLoss:   99.9, // 0.1%, below the 0.5% floor
		TakeProfit: 104,
		Quantity:   0.1,
		Leverage:   5,
		Confidence: 0.7,
	}

	result := e.Audit(order, nil, 10000, 100, 0)
	if !result.Passed {
		t.Fatalf("audit blocked: %s", result.BlockedReason)
	}
	slPct := math.Abs(order.EntryPrice-order.StopLoss) / order.EntryPrice
	if slPct < 0.005-1e-9 || slPct > 0.05+1e-9 {
		t.Errorf("stop distance %f outside [0.005, 0.05]", slPct)
	}
}

func TestAuditFundingVeto(t *testing.T) {
	e := testEngine()
	tests := []struct {
		name    string
		action  vote.Action
		funding float64
		passed  bool
	}{
		{"long into extreme positive funding", vote.ActionLong, 0.0006, false},
		{"short into extreme negative funding", vote.ActionShort, -0.0006, false},
		{"long against extreme negative funding", vote.ActionLong, -0.0006, true},
		{"short against extreme positive funding", vote.ActionShort, 0.0006, true},
		{"long with neutral funding", vote.ActionLong, 0.0001, true},
		{"short with neutral funding", vote.ActionShort, -0.0001, true},
	}

	for _, tt := range tests {
		order := ProposeOrder("BTCUSDT", tt.action, 0.8, 100, 10000, 0.1, 0.02, 2.0, 5)
		result := e.Audit(order, nil, 10000, 100, tt.funding)
		if result.Passed != tt.passed {
			t.Errorf("%s: passed = %v, want %v (reason %q)",
				tt.name, result.Passed, tt.passed, result.BlockedReason)
		}
		if !tt.passed && result.BlockedReason == "" {
			t.Errorf("%s: veto must carry a reason", tt.name)
		}
	}
}

func TestAuditFundingVetoDisabled(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxFundingRate = 0
	e := NewEngine(cfg, logging.New(&logging.Config{Level: "ERROR"}))

	order := ProposeOrder("BTCUSDT", vote.ActionLong, 0.8, 100, 10000, 0.1, 0.02, 2.0, 5)
	result := e.Audit(order, nil, 10000, 100, 0.01)
	if !result.Passed {
		t.Fatalf("disabled funding veto still blocked: %s", result.BlockedReason)
	}
}

func TestAuditDirectionalConflictBlocks(t *testing.T) {
	e := testEngine()
	order := ProposeOrder("BTCUSDT", vote.ActionLong, 0.8, 100, 10000, 0.1, 0.02, 2.0, 5)
	short := &exchange.Position{Symbol: "BTCUSDT", Side: exchange.SideShort, EntryPrice: 101, Quantity: 1}

	result := e.Audit(order, short, 10000, 100, 0)
	if result.Passed {
		t.Fatal("long order against an open short must be blocked, not corrected")
	}
}

func TestAuditCloseWithoutPositionBlocks(t *testing.T) {
	e := testEngine()
	order := &OrderParams{Symbol: "BTCUSDT", Action: vote.ActionCloseLong}

	result := e.Audit(order, nil, 10000, 100, 0)
	if result.Passed {
		t.Fatal("close without an open position must be blocked")
	}
}

func TestAuditCloseMatchingPositionPasses(t *testing.T) {
	e := testEngine()
	order := &OrderParams{Symbol: "BTCUSDT", Action: vote.ActionCloseLong}
	long := &exchange.Position{Symbol: "BTCUSDT", Side: exchange.SideLong, EntryPrice: 99, Quantity: 1}

	result := e.Audit(order, long, 10000, 100, 0)
	if !result.Passed {
		t.Fatalf("close of a matching position blocked: %s", result.BlockedReason)
	}
}

func TestProposeOrderSizesByConfidence(t *testing.T) {
	low := ProposeOrder("BTCUSDT", vote.ActionLong, 0.5, 100, 10000, 0.1, 0.02, 2.0, 5)
	high := ProposeOrder("BTCUSDT", vote.ActionLong, 1.0, 100, 10000, 0.1, 0.02, 2.0, 5)
	if low.Quantity >= high.Quantity {
		t.Errorf("low-confidence quantity %f not below high-confidence %f", low.Quantity, high.Quantity)
	}
	if high.StopLoss >= high.EntryPrice || high.TakeProfit <= high.EntryPrice {
		t.Error("long proposal exits on the wrong side of entry")
	}
}

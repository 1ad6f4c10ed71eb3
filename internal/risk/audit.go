package risk

import (
	"fmt"
	"math"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/vote"
)

// OrderParams is a proposed order. It is mutable only inside Audit's
// correction step; afterwards it is frozen and handed to execution.
type OrderParams struct {
	Symbol     string      `json:"symbol"`
	Action     vote.Action `json:"action"`
	EntryPrice float64     `json:"entry_price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Quantity   float64     `json:"quantity"`
	Leverage   int         `json:"leverage"`
	Confidence float64     `json:"confidence"` // 0-1
}

// IsOpen reports whether the action opens a new position
func (o *OrderParams) IsOpen() bool {
	return o.Action == vote.ActionLong || o.Action == vote.ActionShort
}

// Correction records one audited field change with its before/after values
type Correction struct {
	Field  string  `json:"field"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Note   string  `json:"note"`
}

// AuditResult is the outcome of a risk audit. When Passed is true the
// (possibly corrected) order may be executed; when false, BlockedReason
// explains the veto and nothing may be forwarded to the exchange.
type AuditResult struct {
	Passed        bool                  `json:"passed"`
	RiskLevel     string                `json:"risk_level"` // "low", "medium", "high"
	Corrections   map[string]Correction `json:"corrections"`
	Warnings      []string              `json:"warnings"`
	BlockedReason string                `json:"blocked_reason,omitempty"`
}

func (r *AuditResult) correct(field string, before, after float64, note string) {
	r.Corrections[field] = Correction{Field: field, Before: before, After: after, Note: note}
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s corrected %.6f -> %.6f: %s", field, before, after, note))
}

func (r *AuditResult) block(reason string) {
	r.Passed = false
	r.BlockedReason = reason
}

// Engine validates and corrects proposed orders against hard limits. A
// violation that can be fixed is corrected in place and logged; only
// conditions with no safe correction (direction conflict, extreme funding,
// no balance) veto the order outright.
type Engine struct {
	cfg config.RiskConfig
	log *logging.Logger
}

// NewEngine creates a risk audit engine
func NewEngine(cfg config.RiskConfig, log *logging.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.WithComponent("risk.audit")}
}

// Audit runs the ordered check sequence over the proposed order, mutating
// it where corrections apply. current may be nil when no position is open;
// fundingRate is the symbol's current 8h funding rate (zero when unknown).
func (e *Engine) Audit(order *OrderParams, current *exchange.Position, balance, currentPrice, fundingRate float64) AuditResult {
	result := AuditResult{
		Passed:      true,
		RiskLevel:   "low",
		Corrections: make(map[string]Correction),
	}

	if !order.IsOpen() {
		e.auditClose(order, current, &result)
		return result
	}

	// 1. Directional conflict: no hedging, opposite open position vetoes
	if current != nil && current.Quantity > 0 {
		if (order.Action == vote.ActionLong && current.Side == exchange.SideShort) ||
			(order.Action == vote.ActionShort && current.Side == exchange.SideLong) {
			result.block(fmt.Sprintf("open %s position on %s conflicts with %s order",
				current.Side, order.Symbol, order.Action))
			return result
		}
	}

	// 2. Funding veto: entries that join an already extreme crowd are
	// rejected outright. Extreme positive funding means longs pay shorts
	// (crowded long); extreme negative means the reverse.
	if e.cfg.MaxFundingRate > 0 {
		if order.Action == vote.ActionLong && fundingRate >= e.cfg.MaxFundingRate {
			result.block(fmt.Sprintf("funding rate %.5f too high to open long", fundingRate))
			return result
		}
		if order.Action == vote.ActionShort && fundingRate <= -e.cfg.MaxFundingRate {
			result.block(fmt.Sprintf("funding rate %.5f too low to open short", fundingRate))
			return result
		}
	}

	// 3. Leverage cap: correct and warn, never error
	if order.Leverage > e.cfg.MaxLeverage {
		result.correct("leverage", float64(order.Leverage), float64(e.cfg.MaxLeverage), "leverage cap")
		order.Leverage = e.cfg.MaxLeverage
	}
	if order.Leverage < 1 {
		result.correct("leverage", float64(order.Leverage), 1, "minimum leverage")
		order.Leverage = 1
	}

	if balance <= 0 {
		result.block("account balance is zero, cannot open a position")
		return result
	}
	if order.EntryPrice <= 0 {
		result.block("entry price must be positive")
		return result
	}

	// 4. Position-size cap: margin as a fraction of equity
	maxNotional := balance * e.cfg.MaxPositionPct * float64(order.Leverage)
	if notional := order.EntryPrice * order.Quantity; notional > maxNotional {
		newQty := maxNotional / order.EntryPrice
		result.correct("quantity", order.Quantity, newQty, "position-size cap")
		order.Quantity = newQty
	}

	// 5. Stop-loss direction invariant. An inverted stop is an upstream
	// direction bug: recompute both exits from the configured distances in
	// the correct direction and log it, instead of rejecting the order.
	e.checkStopDirection(order, &result)

	// 6. Stop-loss distance bounds
	e.clampStopDistance(order, &result)

	// 7. Risk-per-trade cap: shrink size, never leverage, to bring the
	// implied dollar risk back inside the limit
	slPct := math.Abs(order.EntryPrice-order.StopLoss) / order.EntryPrice
	notional := order.EntryPrice * order.Quantity
	riskFraction := notional * slPct / balance
	if riskFraction > e.cfg.MaxRiskPerTrade {
		scale := e.cfg.MaxRiskPerTrade / riskFraction
		newQty := order.Quantity * scale
		result.correct("quantity", order.Quantity, newQty, "risk-per-trade cap")
		order.Quantity = newQty
	}

	// 8. Margin sufficiency with the configured safety buffer
	available := balance * (1 - e.cfg.MarginBuffer)
	margin := order.EntryPrice * order.Quantity / float64(order.Leverage)
	if margin > available {
		newQty := available * float64(order.Leverage) / order.EntryPrice
		result.correct("quantity", order.Quantity, newQty, "insufficient margin")
		order.Quantity = newQty
	}

	if order.Quantity <= 0 {
		result.block("position size corrected to zero, nothing to execute")
		return result
	}

	result.RiskLevel = e.riskLevel(order, len(result.Corrections))
	for _, c := range result.Corrections {
		e.log.Warn("risk correction applied", "symbol", order.Symbol,
			"field", c.Field, "before", c.Before, "after", c.After, "note", c.Note)
	}

	return result
}

// auditClose validates close orders: there must be a position to close
func (e *Engine) auditClose(order *OrderParams, current *exchange.Position, result *AuditResult) {
	if order.Action != vote.ActionCloseLong && order.Action != vote.ActionCloseShort {
		return
	}
	if current == nil || current.Quantity == 0 {
		result.block(fmt.Sprintf("no open position on %s to close", order.Symbol))
		return
	}
	if order.Action == vote.ActionCloseLong && current.Side != exchange.SideLong {
		result.block("close_long but open position is short")
		return
	}
	if order.Action == vote.ActionCloseShort && current.Side != exchange.SideShort {
		result.block("close_short but open position is long")
	}
}

// checkStopDirection enforces: long => stop < entry < target,
// short => target < entry < stop.
func (e *Engine) checkStopDirection(order *OrderParams, result *AuditResult) {
	entry := order.EntryPrice
	slDist := entry * e.cfg.DefaultStopLossPct
	tpDist := slDist * e.cfg.TakeProfitRatio

	switch order.Action {
	case vote.ActionLong:
		if !(order.StopLoss < entry && entry < order.TakeProfit) || order.StopLoss <= 0 {
			newSL := entry - slDist
			newTP := entry + tpDist
			result.correct("stop_loss", order.StopLoss, newSL, "stop direction recompute (long)")
			result.correct("take_profit", order.TakeProfit, newTP, "stop direction recompute (long)")
			order.StopLoss = newSL
			order.TakeProfit = newTP
		}
	case vote.ActionShort:
		if !(order.TakeProfit < entry && entry < order.StopLoss) || order.TakeProfit <= 0 {
			newSL := entry + slDist
			newTP := entry - tpDist
			result.correct("stop_loss", order.StopLoss, newSL, "stop direction recompute (short)")
			result.correct("take_profit", order.TakeProfit, newTP, "stop direction recompute (short)")
			order.StopLoss = newSL
			order.TakeProfit = newTP
		}
	}
}

// clampStopDistance keeps the stop distance within configured bounds
func (e *Engine) clampStopDistance(order *OrderParams, result *AuditResult) {
	entry := order.EntryPrice
	slPct := math.Abs(entry-order.StopLoss) / entry

	clamped := slPct
	if slPct < e.cfg.MinStopLossPct {
		clamped = e.cfg.MinStopLossPct
	} else if slPct > e.cfg.MaxStopLossPct {
		clamped = e.cfg.MaxStopLossPct
	}
	if clamped == slPct {
		return
	}

	var newSL float64
	if order.Action == vote.ActionLong {
		newSL = entry * (1 - clamped)
	} else {
		newSL = entry * (1 + clamped)
	}
	result.correct("stop_loss", order.StopLoss, newSL,
		fmt.Sprintf("stop distance clamped %.4f -> %.4f", slPct, clamped))
	order.StopLoss = newSL
}

func (e *Engine) riskLevel(order *OrderParams, corrections int) string {
	switch {
	case order.Leverage > e.cfg.MaxLeverage/2 || corrections >= 3:
		return "high"
	case order.Leverage > e.cfg.MaxLeverage/4 || corrections >= 1:
		return "medium"
	default:
		return "low"
	}
}

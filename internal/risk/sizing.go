package risk

import (
	"math"

	"futures-quant-bot/internal/vote"
)

// ProposeOrder builds the initial order parameters from a vote before the
// audit pass: entry at the current price, stop and target at the default
// configured distances, size as the configured equity fraction scaled by
// vote confidence.
func ProposeOrder(symbol string, action vote.Action, confidence, currentPrice, balance float64,
	sizePct, stopLossPct, takeProfitRatio float64, leverage int) *OrderParams {

	order := &OrderParams{
		Symbol:     symbol,
		Action:     action,
		EntryPrice: currentPrice,
		Leverage:   leverage,
		Confidence: confidence,
	}

	if action != vote.ActionLong && action != vote.ActionShort {
		return order
	}

	slDist := currentPrice * stopLossPct
	tpDist := slDist * takeProfitRatio
	if action == vote.ActionLong {
		order.StopLoss = currentPrice - slDist
		order.TakeProfit = currentPrice + tpDist
	} else {
		order.StopLoss = currentPrice + slDist
		order.TakeProfit = currentPrice - tpDist
	}

	// Higher-conviction votes deserve more size, scaled within the
	// configured cap; the audit still clamps everything afterwards
	notional := balance * sizePct * float64(leverage) * confidence
	if currentPrice > 0 {
		order.Quantity = notional / currentPrice
	}

	return order
}

// PositionRisk returns the implied equity fraction at risk for an order:
// notional times stop distance over balance.
func PositionRisk(order *OrderParams, balance float64) float64 {
	if balance <= 0 || order.EntryPrice <= 0 {
		return 0
	}
	slPct := math.Abs(order.EntryPrice-order.StopLoss) / order.EntryPrice
	notional := order.EntryPrice * order.Quantity
	return notional * slPct / balance
}

package signal

import (
	"futures-quant-bot/internal/indicator"
	"futures-quant-bot/internal/market"
)

// TrendScorer scores trend direction and strength for one timeframe from
// moving-average alignment and MACD histogram expansion. It is a pure
// function of its inputs: scoring the same bars twice yields the same Score.
type TrendScorer struct {
	Timeframe market.Timeframe
}

// NewTrendScorer creates a trend scorer for a timeframe
func NewTrendScorer(tf market.Timeframe) *TrendScorer {
	return &TrendScorer{Timeframe: tf}
}

// Score maps the latest stable indicator row plus the live bar to a trend
// score. The live bar only contributes a bounded correction term so that
// intracycle momentum can shade a stale stable read without dominating it.
func (ts *TrendScorer) Score(rows []indicator.Row, live market.Candle) Score {
	last, ok := lastUsable(rows)
	if !ok {
		return Score{Value: 0, Label: labelNeutral, Details: map[string]interface{}{
			"timeframe": string(ts.Timeframe),
			"reason":    "insufficient history",
		}}
	}

	// MA alignment: above both averages is a trend, one side only is a
	// potential reversal
	base := 0.0
	price := last.Close
	switch {
	case price > last.EMAFast && price > last.EMASlow:
		base = 60
	case price < last.EMAFast && price < last.EMASlow:
		base = -60
	case price > last.EMAFast:
		base = 20
	default:
		base = -20
	}

	// MACD histogram expansion confirms or fades the MA read
	macdTerm := macdExpansion(rows)

	// Live-bar correction: bounded at +-20 so a single forming candle can
	// shade the score, not flip it
	liveTerm := live.ChangePct() * 10
	if liveTerm > 20 {
		liveTerm = 20
	} else if liveTerm < -20 {
		liveTerm = -20
	}

	value := clampScore(base + macdTerm + liveTerm)
	return Score{
		Value: value,
		Label: labelFor(value),
		Details: map[string]interface{}{
			"timeframe":       string(ts.Timeframe),
			"close":           price,
			"ema_fast":        last.EMAFast,
			"ema_slow":        last.EMASlow,
			"sma":             last.SMA,
			"macd_hist":       last.MACDHist,
			"base_score":      base,
			"macd_term":       macdTerm,
			"live_correction": liveTerm,
			"live_change_pct": live.ChangePct(),
		},
	}
}

// macdExpansion returns up to +-20 depending on histogram sign and whether
// it is widening or narrowing against the previous bar
func macdExpansion(rows []indicator.Row) float64 {
	last, ok := lastUsable(rows)
	if !ok {
		return 0
	}
	idx := lastUsableIndex(rows)
	if idx < 1 {
		return 0
	}
	prev := rows[idx-1]

	switch {
	case last.MACDHist > 0 && last.MACDHist > prev.MACDHist:
		return 20 // Bullish and expanding
	case last.MACDHist > 0:
		return 8
	case last.MACDHist < 0 && last.MACDHist < prev.MACDHist:
		return -20 // Bearish and expanding
	case last.MACDHist < 0:
		return -8
	default:
		return 0
	}
}

// lastUsable returns the most recent non-warmup row
func lastUsable(rows []indicator.Row) (indicator.Row, bool) {
	idx := lastUsableIndex(rows)
	if idx < 0 {
		return indicator.Row{}, false
	}
	return rows[idx], true
}

func lastUsableIndex(rows []indicator.Row) int {
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].IsWarmup {
			return i
		}
	}
	return -1
}

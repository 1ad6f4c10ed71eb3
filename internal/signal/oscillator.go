package signal

import (
	"futures-quant-bot/internal/indicator"
	"futures-quant-bot/internal/market"
)

// OscillatorScorer scores mean-reversion pressure for one timeframe from
// RSI and KDJ. An optional higher-timeframe RSI keeps it from fading a
// move the larger frame confirms.
type OscillatorScorer struct {
	Timeframe market.Timeframe
}

// NewOscillatorScorer creates an oscillator scorer for a timeframe
func NewOscillatorScorer(tf market.Timeframe) *OscillatorScorer {
	return &OscillatorScorer{Timeframe: tf}
}

// Score maps the latest RSI/KDJ readings to a reversion score. higherRSI
// is the confirming timeframe's RSI; pass a negative value when absent.
func (os *OscillatorScorer) Score(rows []indicator.Row, higherRSI float64) Score {
	last, ok := lastUsable(rows)
	if !ok {
		return Score{Value: 0, Label: labelNeutral, Details: map[string]interface{}{
			"timeframe": string(os.Timeframe),
			"reason":    "insufficient history",
		}}
	}

	value := 0.0

	// RSI extremes fade the move
	switch {
	case last.RSI > 70:
		value -= 40
	case last.RSI < 30:
		value += 40
	}

	// KDJ's J line is the faster confirmation
	switch {
	case last.J > 80:
		value -= 30
	case last.J < 20:
		value += 30
	}

	// Only lean harder when the higher timeframe is also extreme; fading a
	// move the larger frame confirms is how oscillators lose money
	higherTerm := 0.0
	if higherRSI >= 0 {
		switch {
		case higherRSI > 80:
			higherTerm = -20
		case higherRSI < 20:
			higherTerm = 20
		}
	}
	value += higherTerm

	value = clampScore(value)
	return Score{
		Value: value,
		Label: labelFor(value),
		Details: map[string]interface{}{
			"timeframe":   string(os.Timeframe),
			"rsi":         last.RSI,
			"k":           last.K,
			"d":           last.D,
			"j":           last.J,
			"higher_rsi":  higherRSI,
			"higher_term": higherTerm,
		},
	}
}

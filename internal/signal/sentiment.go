package signal

import (
	"futures-quant-bot/internal/indicator"
)

// Funding-rate tilt thresholds (8h rate as a fraction, Binance convention)
const (
	fundingExtreme = 0.0005
	fundingMild    = 0.0001
)

// SentimentScorer scores external crowd positioning from the funding rate
// and volume surges. Extreme positive funding means the crowd is long
// (bearish tilt); extreme negative means the crowd is short (bullish tilt).
type SentimentScorer struct{}

// NewSentimentScorer creates a sentiment scorer
func NewSentimentScorer() *SentimentScorer {
	return &SentimentScorer{}
}

// Score combines the funding-rate tilt with a volume-surge term read off
// the shortest timeframe's indicator rows.
func (ss *SentimentScorer) Score(fundingRate float64, rows []indicator.Row) Score {
	fundingTerm := 0.0
	switch {
	case fundingRate >= fundingExtreme:
		fundingTerm = -40
	case fundingRate >= fundingMild:
		fundingTerm = -15
	case fundingRate <= -fundingExtreme:
		fundingTerm = 40
	case fundingRate <= -fundingMild:
		fundingTerm = 15
	}

	// A volume surge amplifies the direction of the surging bar
	volumeTerm := 0.0
	volumeRatio := 1.0
	if last, ok := lastUsable(rows); ok {
		volumeRatio = last.VolumeRatio
		idx := lastUsableIndex(rows)
		if volumeRatio >= 2.0 && idx >= 1 {
			if last.Close > rows[idx-1].Close {
				volumeTerm = 20
			} else if last.Close < rows[idx-1].Close {
				volumeTerm = -20
			}
		}
	}

	value := clampScore(fundingTerm + volumeTerm)
	return Score{
		Value: value,
		Label: labelFor(value),
		Details: map[string]interface{}{
			"funding_rate": fundingRate,
			"funding_term": fundingTerm,
			"volume_ratio": volumeRatio,
			"volume_term":  volumeTerm,
		},
	}
}

package signal

// Score is a bounded signal reading in [-100, +100]. Positive is bullish.
// Details carries the raw indicator values the score was derived from,
// for auditability only; nothing downstream keys off it.
type Score struct {
	Value   float64                `json:"value"`
	Label   string                 `json:"label"`
	Details map[string]interface{} `json:"details"`
}

// Label thresholds shared by the scorers
const (
	labelStrongBull = "strong_bullish"
	labelBull       = "bullish"
	labelNeutral    = "neutral"
	labelBear       = "bearish"
	labelStrongBear = "strong_bearish"
)

func labelFor(value float64) string {
	switch {
	case value >= 50:
		return labelStrongBull
	case value >= 15:
		return labelBull
	case value <= -50:
		return labelStrongBear
	case value <= -15:
		return labelBear
	default:
		return labelNeutral
	}
}

func clampScore(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

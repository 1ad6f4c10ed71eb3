package regime

import (
	"math"

	"futures-quant-bot/internal/market"
)

// Regime is the coarse market-behavior classification
type Regime string

const (
	TrendingUp   Regime = "trending_up"
	TrendingDown Regime = "trending_down"
	Choppy       Regime = "choppy"
	Volatile     Regime = "volatile"
)

// Classification is a regime with its confidence in [0,1]
type Classification struct {
	Regime     Regime                 `json:"regime"`
	Confidence float64                `json:"confidence"`
	Details    map[string]interface{} `json:"details"`
}

// Classifier classifies market behavior from directional strength (an
// ADX-like efficiency measure) and price-normalized volatility (ATR%).
type Classifier struct {
	window        int
	trendStrength float64 // Strength above this is a trend
	highVolPct    float64 // ATR% above this is volatile
}

// NewClassifier creates a classifier with the given lookback window
func NewClassifier(window int) *Classifier {
	if window <= 0 {
		window = 30
	}
	return &Classifier{
		window:        window,
		trendStrength: 25,
		highVolPct:    1.5,
	}
}

// Classify maps a stable bar sequence to a regime. Low strength plus low
// volatility is choppy; low strength plus high volatility is volatile.
func (c *Classifier) Classify(candles []market.Candle) Classification {
	if len(candles) < c.window+1 {
		return Classification{
			Regime:     Choppy,
			Confidence: 0.3,
			Details:    map[string]interface{}{"reason": "insufficient history"},
		}
	}

	window := candles[len(candles)-c.window-1:]

	// Efficiency-ratio strength: net movement over total movement, scaled
	// to 0-100 like ADX
	net := math.Abs(window[len(window)-1].Close - window[0].Close)
	total := 0.0
	for i := 1; i < len(window); i++ {
		total += math.Abs(window[i].Close - window[i-1].Close)
	}
	strength := 0.0
	if total > 0 {
		strength = net / total * 100
	}

	atrPct := atrPercent(window)
	price := window[len(window)-1].Close
	rising := window[len(window)-1].Close > window[0].Close

	var regime Regime
	var confidence float64
	switch {
	case strength >= c.trendStrength && rising:
		regime = TrendingUp
		confidence = math.Min(0.5+strength/100, 0.95)
	case strength >= c.trendStrength:
		regime = TrendingDown
		confidence = math.Min(0.5+strength/100, 0.95)
	case atrPct >= c.highVolPct:
		regime = Volatile
		confidence = math.Min(0.5+atrPct/10, 0.9)
	default:
		regime = Choppy
		confidence = math.Min(0.5+(c.trendStrength-strength)/100, 0.9)
	}

	return Classification{
		Regime:     regime,
		Confidence: confidence,
		Details: map[string]interface{}{
			"strength": strength,
			"atr_pct":  atrPct,
			"price":    price,
		},
	}
}

// atrPercent is the simple-average true range over the window, as a
// percentage of the latest close
func atrPercent(candles []market.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(candles); i++ {
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - candles[i-1].Close)
		lc := math.Abs(candles[i].Low - candles[i-1].Close)
		sum += math.Max(hl, math.Max(hc, lc))
	}
	atr := sum / float64(len(candles)-1)
	price := candles[len(candles)-1].Close
	if price == 0 {
		return 0
	}
	return atr / price * 100
}

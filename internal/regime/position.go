package regime

import (
	"futures-quant-bot/internal/market"
)

// RangeLocation is where price sits within its recent range
type RangeLocation string

const (
	LocationLower  RangeLocation = "lower"
	LocationMiddle RangeLocation = "middle"
	LocationUpper  RangeLocation = "upper"
)

// Quality grades how attractive the current location is as an entry
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// RangePosition is the price's location within its rolling range, with
// explicit direction permissions the voting engine treats as vetoes.
type RangePosition struct {
	PositionPct float64       `json:"position_pct"` // 0 at the range low, 100 at the range high
	Location    RangeLocation `json:"location"`
	Quality     Quality       `json:"quality"`
	AllowLong   bool          `json:"allow_long"`
	AllowShort  bool          `json:"allow_short"`
	RangeHigh   float64       `json:"range_high"`
	RangeLow    float64       `json:"range_low"`
}

// PositionAnalyzer locates price within a rolling high/low band. It is
// deliberately decoupled from the Bollinger scorer so it can veto trades
// on its own: longs are disallowed in the top quarter of the range and
// shorts in the bottom quarter.
type PositionAnalyzer struct {
	window int
}

// NewPositionAnalyzer creates an analyzer with the given rolling window
func NewPositionAnalyzer(window int) *PositionAnalyzer {
	if window <= 0 {
		window = 20
	}
	return &PositionAnalyzer{window: window}
}

// Analyze computes the range position from the stable bars
func (pa *PositionAnalyzer) Analyze(candles []market.Candle) RangePosition {
	if len(candles) == 0 {
		return RangePosition{
			PositionPct: 50,
			Location:    LocationMiddle,
			Quality:     QualityPoor,
			AllowLong:   true,
			AllowShort:  true,
		}
	}

	start := len(candles) - pa.window
	if start < 0 {
		start = 0
	}
	window := candles[start:]

	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}

	price := candles[len(candles)-1].Close
	pct := 50.0
	if hi != lo {
		pct = (price - lo) / (hi - lo) * 100
		if pct < 0 {
			pct = 0
		} else if pct > 100 {
			pct = 100
		}
	}

	pos := RangePosition{
		PositionPct: pct,
		RangeHigh:   hi,
		RangeLow:    lo,
		AllowLong:   pct < 75,
		AllowShort:  pct > 25,
	}

	switch {
	case pct <= 30:
		pos.Location = LocationLower
	case pct >= 70:
		pos.Location = LocationUpper
	default:
		pos.Location = LocationMiddle
	}

	// Range extremes are the best setups; dead middle is the worst
	switch {
	case pct <= 15 || pct >= 85:
		pos.Quality = QualityExcellent
	case pct <= 30 || pct >= 70:
		pos.Quality = QualityGood
	case pct <= 40 || pct >= 60:
		pos.Quality = QualityFair
	default:
		pos.Quality = QualityPoor
	}

	return pos
}

package market

import (
	"math"
)

// Candle represents one OHLCV bar. Prices are quote-currency floats,
// times are unix milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// MaxAbsolutePrice bounds sane prices at ingestion. Anything above this
// is treated as a feed glitch and dropped.
const MaxAbsolutePrice = 1e9

// Valid reports whether the candle satisfies OHLC logic:
// low <= min(open,close) <= max(open,close) <= high, all prices positive
// and finite, volume non-negative.
func (c Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > MaxAbsolutePrice {
			return false
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
		return false
	}
	lo := math.Min(c.Open, c.Close)
	hi := math.Max(c.Open, c.Close)
	return c.Low <= lo && hi <= c.High
}

// ChangePct returns the candle's percent change from open to close
func (c Candle) ChangePct() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100
}

// ValidateSeries filters a candle series at ingestion. Violating bars are
// dropped, never repaired: price history must only ever be filtered, not
// altered. Bars must be strictly time-ordered; duplicates and out-of-order
// bars are dropped too. Returns the surviving bars and the number dropped.
func ValidateSeries(candles []Candle) ([]Candle, int) {
	out := make([]Candle, 0, len(candles))
	dropped := 0
	var lastOpen int64 = -1

	for _, c := range candles {
		if !c.Valid() || c.OpenTime <= lastOpen {
			dropped++
			continue
		}
		out = append(out, c)
		lastOpen = c.OpenTime
	}
	return out, dropped
}

package indicator

import (
	"fmt"
	"math"

	"futures-quant-bot/internal/market"
)

// Config holds indicator lookback settings
type Config struct {
	EMAFastSpan  int
	EMASlowSpan  int
	SMAPeriod    int
	RSIPeriod    int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	ATRPeriod    int
	BBPeriod     int
	BBStdDev     float64
	KDJPeriod    int
	VolumePeriod int
}

// DefaultConfig returns the standard lookbacks
func DefaultConfig() Config {
	return Config{
		EMAFastSpan:  26,
		EMASlowSpan:  60,
		SMAPeriod:    20,
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		ATRPeriod:    14,
		BBPeriod:     20,
		BBStdDev:     2.0,
		KDJPeriod:    9,
		VolumePeriod: 20,
	}
}

// lookback returns the longest warmup window among configured indicators
func (c Config) lookback() int {
	longest := c.EMASlowSpan
	for _, n := range []int{
		c.SMAPeriod, c.RSIPeriod + 1, c.MACDSlow + c.MACDSignal,
		c.ATRPeriod + 1, c.BBPeriod, c.KDJPeriod, c.VolumePeriod,
	} {
		if n > longest {
			longest = n
		}
	}
	return longest
}

// Row is the full indicator record for one bar. Rows inside the warmup
// window are kept (marked IsWarmup) rather than dropped so the series
// stays index-aligned with the raw candles.
type Row struct {
	OpenTime    int64
	Close       float64
	IsWarmup    bool
	EMAFast     float64
	EMASlow     float64
	SMA         float64
	RSI         float64
	MACD        float64
	MACDSignal  float64
	MACDHist    float64
	ATR         float64
	BBPosition  float64 // 0-100 location between the Bollinger bands
	K           float64
	D           float64
	J           float64
	OBV         float64
	VolumeRatio float64
}

// Compute derives one Row per input bar. It is a pure function of the bar
// history: same bars in, same rows out. Every value on a non-warmup row is
// finite; degenerate inputs resolve to documented neutral values (RSI 100
// on zero loss, band position 50 on zero width) instead of NaN/Inf.
func Compute(candles []market.Candle, cfg Config) ([]Row, error) {
	n := len(candles)
	if n == 0 {
		return nil, fmt.Errorf("indicator: empty candle series")
	}
	warmup := cfg.lookback()
	if n <= warmup {
		return nil, fmt.Errorf("indicator: need more than %d bars, got %d", warmup, n)
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	emaFast := emaSeries(closes, cfg.EMAFastSpan)
	emaSlow := emaSeries(closes, cfg.EMASlowSpan)
	macdFast := emaSeries(closes, cfg.MACDFast)
	macdSlow := emaSeries(closes, cfg.MACDSlow)

	macd := make([]float64, n)
	for i := range macd {
		macd[i] = macdFast[i] - macdSlow[i]
	}
	signal := emaSeries(macd, cfg.MACDSignal)

	rsi := rsiSeries(closes, cfg.RSIPeriod)
	atr := atrSeries(candles, cfg.ATRPeriod)
	k, d, j := kdjSeries(candles, cfg.KDJPeriod)
	obv := obvSeries(candles)

	rows := make([]Row, n)
	for i := range rows {
		row := Row{
			OpenTime:    candles[i].OpenTime,
			Close:       closes[i],
			IsWarmup:    i < warmup,
			EMAFast:     emaFast[i],
			EMASlow:     emaSlow[i],
			SMA:         smaAt(closes, i, cfg.SMAPeriod),
			RSI:         rsi[i],
			MACD:        macd[i],
			MACDSignal:  signal[i],
			MACDHist:    macd[i] - signal[i],
			ATR:         atr[i],
			BBPosition:  bbPositionAt(closes, i, cfg.BBPeriod, cfg.BBStdDev),
			K:           k[i],
			D:           d[i],
			J:           j[i],
			OBV:         obv[i],
			VolumeRatio: volumeRatioAt(candles, i, cfg.VolumePeriod),
		}
		rows[i] = row
	}
	return rows, nil
}

// emaSeries computes a recursive EMA: ema[0] = x[0],
// ema[i] = alpha*x[i] + (1-alpha)*ema[i-1], alpha = 2/(span+1).
func emaSeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// smaAt computes the simple average of the window ending at index i
func smaAt(values []float64, i, period int) float64 {
	if i+1 < period {
		// Not enough history; average what exists so the row stays finite
		period = i + 1
	}
	sum := 0.0
	for j := i + 1 - period; j <= i; j++ {
		sum += values[j]
	}
	return sum / float64(period)
}

// rsiSeries computes Wilder-smoothed RSI. When the average loss is exactly
// zero the RSI is 100, not a division blowup.
func rsiSeries(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = 50 // Neutral placeholder for warmup rows
	}
	if n <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// atrSeries computes Wilder-smoothed Average True Range
func atrSeries(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := make([]float64, n)
	if n < 2 {
		return out
	}

	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - candles[i-1].Close)
		lc := math.Abs(candles[i].Low - candles[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	if n <= period {
		// Short series: running mean keeps rows finite through warmup
		sum := 0.0
		for i := 1; i < n; i++ {
			sum += tr[i]
			out[i] = sum / float64(i)
		}
		return out
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
		out[i] = sum / float64(i)
	}
	for i := period + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// bbPositionAt computes the close's location between the Bollinger bands
// as a 0-100 percentage. A zero-width band resolves to 50 (neutral).
func bbPositionAt(closes []float64, i, period int, stdDev float64) float64 {
	if i+1 < period {
		return 50
	}
	mid := smaAt(closes, i, period)
	variance := 0.0
	for j := i + 1 - period; j <= i; j++ {
		diff := closes[j] - mid
		variance += diff * diff
	}
	sd := math.Sqrt(variance / float64(period))
	upper := mid + stdDev*sd
	lower := mid - stdDev*sd
	width := upper - lower
	if width == 0 {
		return 50
	}
	pos := (closes[i] - lower) / width * 100
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}

// kdjSeries computes the KDJ oscillator: RSV over the rolling high/low
// range, K and D smoothed with alpha = 1/3, J = 3K - 2D.
func kdjSeries(candles []market.Candle, period int) (k, d, j []float64) {
	n := len(candles)
	k = make([]float64, n)
	d = make([]float64, n)
	j = make([]float64, n)

	prevK, prevD := 50.0, 50.0
	for i := 0; i < n; i++ {
		start := i + 1 - period
		if start < 0 {
			start = 0
		}
		hi, lo := candles[start].High, candles[start].Low
		for m := start; m <= i; m++ {
			if candles[m].High > hi {
				hi = candles[m].High
			}
			if candles[m].Low < lo {
				lo = candles[m].Low
			}
		}

		rsv := 50.0
		if hi != lo {
			rsv = 100 * (candles[i].Close - lo) / (hi - lo)
		}

		prevK = prevK + (rsv-prevK)/3
		prevD = prevD + (prevK-prevD)/3
		k[i] = prevK
		d[i] = prevD
		j[i] = 3*prevK - 2*prevD
	}
	return k, d, j
}

// obvSeries computes cumulative On-Balance Volume
func obvSeries(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// volumeRatioAt returns current volume relative to its rolling average
func volumeRatioAt(candles []market.Candle, i, period int) float64 {
	if i < 1 {
		return 1
	}
	start := i - period
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for j := start; j < i; j++ {
		sum += candles[j].Volume
		count++
	}
	if count == 0 || sum == 0 {
		return 1
	}
	avg := sum / float64(count)
	return candles[i].Volume / avg
}

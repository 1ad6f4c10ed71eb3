package regime

import (
	"testing"

	"futures-quant-bot/internal/market"
)

func bars(n int, fn func(i int) float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		c := fn(i)
		out[i] = market.Candle{
			OpenTime: int64(i) * 3_600_000,
			Open:     c,
			High:     c * 1.002,
			Low:      c * 0.998,
			Close:    c,
			Volume:   100,
		}
	}
	return out
}

func TestClassifyTrendingUp(t *testing.T) {
	c := NewClassifier(30)
	got := c.Classify(bars(40, func(i int) float64 { return 100 + float64(i)*2 }))
	if got.Regime != TrendingUp {
		t.Errorf("monotonic rise classified as %s, want %s", got.Regime, TrendingUp)
	}
	if got.Confidence <= 0.5 || got.Confidence > 0.95 {
		t.Errorf("trend confidence = %f, want (0.5, 0.95]", got.Confidence)
	}
}

func TestClassifyTrendingDown(t *testing.T) {
	c := NewClassifier(30)
	got := c.Classify(bars(40, func(i int) float64 { return 300 - float64(i)*2 }))
	if got.Regime != TrendingDown {
		t.Errorf("monotonic fall classified as %s, want %s", got.Regime, TrendingDown)
	}
}

func TestClassifyChoppy(t *testing.T) {
	c := NewClassifier(30)
	// Tight alternation: lots of total movement, almost no net movement
	got := c.Classify(bars(40, func(i int) float64 {
		if i%2 == 0 {
			return 100
		}
		return 100.2
	}))
	if got.Regime != Choppy {
		t.Errorf("tight alternation classified as %s, want %s", got.Regime, Choppy)
	}
}

func TestClassifyVolatile(t *testing.T) {
	c := NewClassifier(30)
	// Wide alternation: no direction, but ranges above the volatility bar
	got := c.Classify(bars(40, func(i int) float64 {
		if i%2 == 0 {
			return 100
		}
		return 104
	}))
	if got.Regime != Volatile {
		t.Errorf("wide alternation classified as %s, want %s", got.Regime, Volatile)
	}
}

func TestClassifyInsufficientHistory(t *testing.T) {
	c := NewClassifier(30)
	got := c.Classify(bars(10, func(i int) float64 { return 100 }))
	if got.Regime != Choppy {
		t.Errorf("short history classified as %s, want conservative %s", got.Regime, Choppy)
	}
	if got.Confidence != 0.3 {
		t.Errorf("short-history confidence = %f, want 0.3", got.Confidence)
	}
}

func TestAnalyzeRangeLocations(t *testing.T) {
	pa := NewPositionAnalyzer(20)

	// Range 100..120 built from a round trip, final close near the low
	series := bars(20, func(i int) float64 {
		if i < 10 {
			return 100 + float64(i)*2
		}
		return 120 - float64(i-9)*2
	})
	got := pa.Analyze(series)
	if got.Location != LocationLower {
		t.Errorf("close near range low located as %s, want %s", got.Location, LocationLower)
	}
	if !got.AllowLong {
		t.Error("longs must be allowed near the range low")
	}
	if got.AllowShort {
		t.Error("shorts must be vetoed in the bottom quarter of the range")
	}
}

func TestAnalyzeQualityGrades(t *testing.T) {
	tests := []struct {
		pct  float64
		want Quality
	}{
		{5, QualityExcellent},
		{95, QualityExcellent},
		{25, QualityGood},
		{35, QualityFair},
		{50, QualityPoor},
	}

	pa := NewPositionAnalyzer(20)
	for _, tt := range tests {
		// Flat range 100..200 with final close at the target percentile
		series := bars(20, func(i int) float64 { return 150 })
		series[0].High, series[0].Low = 200.4, 99.8 // widen the range on one bar
		final := 99.8 + (200.4-99.8)*tt.pct/100
		last := &series[len(series)-1]
		last.Close = final
		last.Open = final
		if final > last.High {
			last.High = final
		}
		if final < last.Low {
			last.Low = final
		}

		got := pa.Analyze(series)
		if got.Quality != tt.want {
			t.Errorf("pct %.0f: quality = %s, want %s (computed pct %.1f)", tt.pct, got.Quality, tt.want, got.PositionPct)
		}
	}
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	pa := NewPositionAnalyzer(20)
	got := pa.Analyze(nil)
	if got.Location != LocationMiddle || got.Quality != QualityPoor {
		t.Errorf("empty history: got %s/%s, want middle/poor", got.Location, got.Quality)
	}
}

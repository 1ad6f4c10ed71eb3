package signal

import (
	"reflect"
	"testing"

	"futures-quant-bot/internal/indicator"
	"futures-quant-bot/internal/market"
)

func row(close, emaFast, emaSlow, macdHist, rsi, j, volumeRatio float64) indicator.Row {
	return indicator.Row{
		Close:       close,
		EMAFast:     emaFast,
		EMASlow:     emaSlow,
		MACDHist:    macdHist,
		RSI:         rsi,
		J:           j,
		VolumeRatio: volumeRatio,
	}
}

func TestTrendScoreBullishAlignment(t *testing.T) {
	rows := []indicator.Row{
		row(100, 99, 98, 1.0, 55, 50, 1),
		row(102, 100, 99, 2.0, 58, 55, 1), // Above both MAs, histogram expanding
	}
	flat := market.Candle{Open: 102, Close: 102}

	score := NewTrendScorer(market.TF1h).Score(rows, flat)
	// +60 MA alignment, +20 MACD expansion, 0 live correction
	if score.Value != 80 {
		t.Errorf("bullish trend score = %f, want 80", score.Value)
	}
}

func TestTrendScoreBearishAlignment(t *testing.T) {
	rows := []indicator.Row{
		row(100, 101, 102, -1.0, 45, 50, 1),
		row(98, 100, 101, -2.0, 42, 45, 1), // Below both MAs, histogram expanding down
	}
	flat := market.Candle{Open: 98, Close: 98}

	score := NewTrendScorer(market.TF1h).Score(rows, flat)
	if score.Value != -80 {
		t.Errorf("bearish trend score = %f, want -80", score.Value)
	}
}

func TestTrendScoreLiveCorrectionBounded(t *testing.T) {
	rows := []indicator.Row{
		row(100, 99, 98, 1.0, 55, 50, 1),
		row(102, 100, 99, 0.5, 58, 55, 1), // Positive but narrowing: +8
	}
	// A +10% live bar would add 100 unbounded; must cap at +20
	pump := market.Candle{Open: 100, Close: 110}

	score := NewTrendScorer(market.TF5m).Score(rows, pump)
	if score.Value != 60+8+20 {
		t.Errorf("score with capped live correction = %f, want 88", score.Value)
	}
}

func TestTrendScoreInsufficientHistory(t *testing.T) {
	warmupOnly := []indicator.Row{{IsWarmup: true}, {IsWarmup: true}}
	score := NewTrendScorer(market.TF1h).Score(warmupOnly, market.Candle{Open: 100, Close: 100})
	if score.Value != 0 {
		t.Errorf("score with warmup-only rows = %f, want 0", score.Value)
	}
}

func TestOscillatorScoreExtremes(t *testing.T) {
	tests := []struct {
		name      string
		rsi, j    float64
		higherRSI float64
		want      float64
	}{
		{"overbought everywhere", 75, 85, 85, -90},
		{"oversold everywhere", 25, 15, 15, 90},
		{"neutral", 50, 50, 50, 0},
		{"overbought without higher confirmation", 75, 85, 50, -70},
		{"higher timeframe absent", 75, 85, -1, -70},
	}

	scorer := NewOscillatorScorer(market.TF15m)
	for _, tt := range tests {
		rows := []indicator.Row{row(100, 100, 100, 0, tt.rsi, tt.j, 1)}
		if got := scorer.Score(rows, tt.higherRSI).Value; got != tt.want {
			t.Errorf("%s: score = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestSentimentScoreFundingTilt(t *testing.T) {
	scorer := NewSentimentScorer()
	tests := []struct {
		name    string
		funding float64
		want    float64
	}{
		{"extreme positive funding", 0.0006, -40},
		{"mild positive funding", 0.0002, -15},
		{"neutral funding", 0.00005, 0},
		{"mild negative funding", -0.0002, 15},
		{"extreme negative funding", -0.0006, 40},
	}
	rows := []indicator.Row{row(100, 100, 100, 0, 50, 50, 1)}
	for _, tt := range tests {
		if got := scorer.Score(tt.funding, rows).Value; got != tt.want {
			t.Errorf("%s: score = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestSentimentScoreVolumeSurge(t *testing.T) {
	scorer := NewSentimentScorer()
	rows := []indicator.Row{
		row(100, 100, 100, 0, 50, 50, 1),
		row(103, 100, 100, 0, 50, 50, 2.5), // Surging volume on an up bar
	}
	if got := scorer.Score(0, rows).Value; got != 20 {
		t.Errorf("up-bar volume surge score = %f, want 20", got)
	}

	down := []indicator.Row{
		row(100, 100, 100, 0, 50, 50, 1),
		row(97, 100, 100, 0, 50, 50, 2.5),
	}
	if got := scorer.Score(0, down).Value; got != -20 {
		t.Errorf("down-bar volume surge score = %f, want -20", got)
	}
}

func TestScoreIdempotent(t *testing.T) {
	rows := []indicator.Row{
		row(100, 99, 98, 1.0, 62, 75, 1.4),
		row(101, 100, 99, 1.5, 66, 82, 1.9),
	}
	live := market.Candle{Open: 101, Close: 101.5}
	scorer := NewTrendScorer(market.TF15m)

	a := scorer.Score(rows, live)
	b := scorer.Score(rows, live)
	if !reflect.DeepEqual(a, b) {
		t.Error("trend scoring is not idempotent for identical inputs")
	}
}

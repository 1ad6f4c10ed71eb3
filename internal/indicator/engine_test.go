package indicator

import (
	"math"
	"reflect"
	"testing"

	"futures-quant-bot/internal/market"
)

// makeCandles builds n 5m bars whose closes follow fn(i)
func makeCandles(n int, fn func(i int) float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		c := fn(i)
		out[i] = market.Candle{
			OpenTime:  int64(i) * 300_000,
			Open:      c,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    100 + float64(i%7)*10,
			CloseTime: int64(i)*300_000 + 299_999,
		}
	}
	return out
}

func TestComputeRejectsShortSeries(t *testing.T) {
	cfg := DefaultConfig()
	candles := makeCandles(cfg.lookback(), func(i int) float64 { return 100 })
	if _, err := Compute(candles, cfg); err == nil {
		t.Fatal("expected error for series not exceeding the warmup window")
	}
	if _, err := Compute(nil, cfg); err == nil {
		t.Fatal("expected error for empty series")
	}
}

func TestComputeFlatSeries(t *testing.T) {
	cfg := DefaultConfig()
	rows, err := Compute(makeCandles(90, func(i int) float64 { return 250 }), cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	last := rows[len(rows)-1]
	if last.IsWarmup {
		t.Fatal("last row should not be warmup")
	}
	// Zero average loss resolves to RSI 100, not a division blowup
	if last.RSI != 100 {
		t.Errorf("flat-series RSI = %f, want 100", last.RSI)
	}
	// Zero band width resolves to the neutral midpoint
	if last.BBPosition != 50 {
		t.Errorf("flat-series BBPosition = %f, want 50", last.BBPosition)
	}
	if last.MACDHist != 0 {
		t.Errorf("flat-series MACD histogram = %f, want 0", last.MACDHist)
	}
	if last.EMAFast != 250 || last.EMASlow != 250 {
		t.Errorf("flat-series EMAs = %f/%f, want 250/250", last.EMAFast, last.EMASlow)
	}
}

func TestComputeBounds(t *testing.T) {
	cfg := DefaultConfig()
	// Oscillating walk with occasional spikes
	candles := makeCandles(200, func(i int) float64 {
		return 100 + 10*math.Sin(float64(i)/5) + 3*math.Sin(float64(i)*1.7)
	})
	rows, err := Compute(candles, cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	for i, row := range rows {
		if row.RSI < 0 || row.RSI > 100 {
			t.Errorf("row %d: RSI %f out of [0,100]", i, row.RSI)
		}
		if row.BBPosition < 0 || row.BBPosition > 100 {
			t.Errorf("row %d: BBPosition %f out of [0,100]", i, row.BBPosition)
		}
		if row.ATR < 0 {
			t.Errorf("row %d: negative ATR %f", i, row.ATR)
		}
		for name, v := range map[string]float64{
			"EMAFast": row.EMAFast, "EMASlow": row.EMASlow, "SMA": row.SMA,
			"MACD": row.MACD, "K": row.K, "D": row.D, "J": row.J,
			"OBV": row.OBV, "VolumeRatio": row.VolumeRatio,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("row %d: %s is not finite (%f)", i, name, v)
			}
		}
	}
}

func TestWarmupRowsMarkedNotDropped(t *testing.T) {
	cfg := DefaultConfig()
	candles := makeCandles(100, func(i int) float64 { return 100 + float64(i) })
	rows, err := Compute(candles, cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(rows) != len(candles) {
		t.Fatalf("rows = %d, want %d (index-aligned with candles)", len(rows), len(candles))
	}
	warmup := cfg.lookback()
	for i, row := range rows {
		if want := i < warmup; row.IsWarmup != want {
			t.Errorf("row %d: IsWarmup = %v, want %v", i, row.IsWarmup, want)
		}
		if row.OpenTime != candles[i].OpenTime {
			t.Errorf("row %d: OpenTime misaligned", i)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	candles := makeCandles(150, func(i int) float64 {
		return 500 + 20*math.Sin(float64(i)/9)
	})
	a, err := Compute(candles, cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(candles, cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Compute is not deterministic for identical input")
	}
}

func TestRSIRespondsToDirection(t *testing.T) {
	cfg := DefaultConfig()
	up, err := Compute(makeCandles(100, func(i int) float64 { return 100 + float64(i) }), cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	down, err := Compute(makeCandles(100, func(i int) float64 { return 300 - float64(i) }), cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if rsi := up[len(up)-1].RSI; rsi != 100 {
		t.Errorf("monotonic-up RSI = %f, want 100", rsi)
	}
	if rsi := down[len(down)-1].RSI; rsi > 5 {
		t.Errorf("monotonic-down RSI = %f, want near 0", rsi)
	}
}

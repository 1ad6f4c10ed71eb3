package pipeline

import (
	"math"
	"testing"
	"time"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
)

func synthView(tf market.Timeframe, n int, stepMillis int64) *market.TimeframeView {
	stable := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		base := 50000 + 1200*math.Sin(float64(i)/30)
		next := 50000 + 1200*math.Sin(float64(i+1)/30)
		stable[i] = market.Candle{
			OpenTime:  int64(i) * stepMillis,
			Open:      base,
			High:      math.Max(base, next) * 1.001,
			Low:       math.Min(base, next) * 0.999,
			Close:     next,
			Volume:    500,
			CloseTime: int64(i)*stepMillis + stepMillis - 1,
		}
	}
	last := stable[n-1].Close
	return &market.TimeframeView{
		Timeframe: tf,
		Stable:    stable,
		Live:      market.Candle{OpenTime: int64(n) * stepMillis, Open: last, High: last, Low: last, Close: last},
		FetchedAt: time.Unix(0, 0),
	}
}

func synthSnapshot() *market.MarketSnapshot {
	return &market.MarketSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: time.Unix(0, 0),
		Views: map[market.Timeframe]*market.TimeframeView{
			market.TF5m:  synthView(market.TF5m, 120, 300_000),
			market.TF15m: synthView(market.TF15m, 120, 900_000),
			market.TF1h:  synthView(market.TF1h, 120, 3_600_000),
		},
		AlignmentOK: true,
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	p := New(config.DefaultConfig().VoteConfig, logging.New(&logging.Config{Level: "ERROR"}))
	snap := synthSnapshot()

	a, err := p.Decide(snap)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	b, err := p.Decide(snap)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if a.Vote.Action != b.Vote.Action {
		t.Errorf("actions differ: %s vs %s", a.Vote.Action, b.Vote.Action)
	}
	if a.Vote.Confidence != b.Vote.Confidence || a.Vote.WeightedScore != b.Vote.WeightedScore {
		t.Errorf("vote values differ across identical snapshots: %+v vs %+v", a.Vote, b.Vote)
	}
	if a.Sentiment.Value != b.Sentiment.Value {
		t.Errorf("sentiment differs: %f vs %f", a.Sentiment.Value, b.Sentiment.Value)
	}
}

func TestDecideFailsOnShortHistory(t *testing.T) {
	p := New(config.DefaultConfig().VoteConfig, logging.New(&logging.Config{Level: "ERROR"}))
	snap := synthSnapshot()
	snap.Views[market.TF1h] = synthView(market.TF1h, 30, 3_600_000)

	if _, err := p.Decide(snap); err == nil {
		t.Fatal("expected an error when one timeframe lacks indicator history")
	}
}

func TestDecideProducesAllContributions(t *testing.T) {
	p := New(config.DefaultConfig().VoteConfig, logging.New(&logging.Config{Level: "ERROR"}))
	decision, err := p.Decide(synthSnapshot())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if len(decision.Rows) != 3 {
		t.Errorf("indicator rows for %d timeframes, want 3", len(decision.Rows))
	}
	if got := len(decision.Vote.Contributions); got != 0 && got != 6 {
		t.Errorf("contributions = %d, want 6 (or 0 on a pre-filter veto)", got)
	}
}

package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/events"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
	"futures-quant-bot/internal/oracle"
	"futures-quant-bot/internal/pipeline"
	"futures-quant-bot/internal/signal"
	"futures-quant-bot/internal/vote"
)

func TestMapAction(t *testing.T) {
	long := &exchange.Position{Side: exchange.SideLong, Quantity: 1}
	short := &exchange.Position{Side: exchange.SideShort, Quantity: 1}

	tests := []struct {
		name     string
		action   vote.Action
		position *exchange.Position
		want     vote.Action
	}{
		{"long with no position", vote.ActionLong, nil, vote.ActionLong},
		{"short with no position", vote.ActionShort, nil, vote.ActionShort},
		{"long against open short closes it", vote.ActionLong, short, vote.ActionCloseShort},
		{"short against open long closes it", vote.ActionShort, long, vote.ActionCloseLong},
		{"long on top of open long holds", vote.ActionLong, long, vote.ActionHold},
		{"short on top of open short holds", vote.ActionShort, short, vote.ActionHold},
		{"close long without position holds", vote.ActionCloseLong, nil, vote.ActionHold},
		{"close short without position holds", vote.ActionCloseShort, nil, vote.ActionHold},
		{"hold stays hold", vote.ActionHold, long, vote.ActionHold},
	}

	for _, tt := range tests {
		if got := mapAction(tt.action, tt.position); got != tt.want {
			t.Errorf("%s: mapAction = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestOrderSide(t *testing.T) {
	tests := []struct {
		action vote.Action
		want   exchange.OrderSide
	}{
		{vote.ActionLong, exchange.OrderBuy},
		{vote.ActionCloseShort, exchange.OrderBuy},
		{vote.ActionShort, exchange.OrderSell},
		{vote.ActionCloseLong, exchange.OrderSell},
	}
	for _, tt := range tests {
		if got := orderSide(tt.action); got != tt.want {
			t.Errorf("orderSide(%s) = %s, want %s", tt.action, got, tt.want)
		}
	}
}

func TestClosedPnL(t *testing.T) {
	long := &exchange.Position{Side: exchange.SideLong, EntryPrice: 100, Quantity: 2}
	if got := closedPnL(long, 110); got != 20 {
		t.Errorf("long pnl = %f, want 20", got)
	}
	short := &exchange.Position{Side: exchange.SideShort, EntryPrice: 100, Quantity: 2}
	if got := closedPnL(short, 110); got != -20 {
		t.Errorf("short pnl = %f, want -20", got)
	}
}

func TestRunCycleAgainstMock(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TradingConfig.DryRun = true
	log := logging.New(&logging.Config{Level: "ERROR"})

	engine := New(cfg, exchange.NewMockClient(10000), events.NewBus(), nil, nil, log)
	report := engine.runCycle(context.Background(), "BTCUSDT")

	if report.CycleID == "" {
		t.Fatal("cycle report missing cycle ID")
	}
	switch report.Outcome {
	case OutcomeSuccess, OutcomeHold, OutcomeBlocked, OutcomeFailed, OutcomeError:
	default:
		t.Fatalf("unknown outcome %q", report.Outcome)
	}
	if report.Outcome != OutcomeError && report.Vote == nil {
		t.Error("non-error cycle must carry the vote")
	}
	if report.Outcome != OutcomeError && report.Sentiment == nil {
		t.Error("non-error cycle must carry the sentiment reading")
	}
	if report.Outcome == OutcomeError && report.Err == nil {
		t.Error("error outcome must carry the stage error")
	}
}

func TestRunCycleDeterministicAgainstMock(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TradingConfig.DryRun = true
	log := logging.New(&logging.Config{Level: "ERROR"})

	a := New(cfg, exchange.NewMockClient(10000), events.NewBus(), nil, nil, log).
		runCycle(context.Background(), "BTCUSDT")
	b := New(cfg, exchange.NewMockClient(10000), events.NewBus(), nil, nil, log).
		runCycle(context.Background(), "BTCUSDT")

	if a.Outcome != b.Outcome {
		t.Fatalf("outcomes differ on identical simulated data: %s vs %s", a.Outcome, b.Outcome)
	}
	if a.Vote != nil && b.Vote != nil {
		if a.Vote.Action != b.Vote.Action || a.Vote.WeightedScore != b.Vote.WeightedScore {
			t.Error("votes differ on identical simulated data")
		}
	}
}

func TestToRecord(t *testing.T) {
	report := &CycleReport{
		CycleID: "abc",
		Symbol:  "BTCUSDT",
		Outcome: OutcomeError,
		Err:     stageErr(StageData, context.DeadlineExceeded),
	}
	rec := toRecord(report)
	if rec.CycleID != "abc" || rec.Outcome != "error" {
		t.Errorf("record mismatch: %+v", rec)
	}
	if rec.ErrorStage != "data" || rec.ErrorMessage == "" {
		t.Errorf("error fields not mapped: %+v", rec)
	}
}

func TestToRecordCarriesSentiment(t *testing.T) {
	report := &CycleReport{
		CycleID:     "abc",
		Symbol:      "BTCUSDT",
		Outcome:     OutcomeHold,
		Sentiment:   &signal.Score{Value: -40, Label: "bearish"},
		FundingRate: 0.0007,
	}
	rec := toRecord(report)
	if rec.SentimentScore != -40 {
		t.Errorf("sentiment score = %f, want -40", rec.SentimentScore)
	}
	if rec.FundingRate != 0.0007 {
		t.Errorf("funding rate = %f, want 0.0007", rec.FundingRate)
	}
}

// testOracle builds an oracle whose chat endpoint is the given handler
func testOracle(t *testing.T, handler http.HandlerFunc) (*oracle.Oracle, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	orc := oracle.New(oracle.NewClient(oracle.ClientConfig{
		Provider: oracle.ProviderOpenAI,
		BaseURL:  server.URL,
		APIKey:   "test",
		Timeout:  2 * time.Second,
	}), logging.New(&logging.Config{Level: "ERROR"}))
	return orc, server.Close
}

func oracleReply(t *testing.T, d oracle.Decision) []byte {
	t.Helper()
	content, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal oracle decision: %v", err)
	}
	reply, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": string(content)}},
		},
	})
	if err != nil {
		t.Fatalf("marshal chat reply: %v", err)
	}
	return reply
}

func TestConsultOracleDisagreementDowngradesToHold(t *testing.T) {
	orc, done := testOracle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(oracleReply(t, oracle.Decision{
			Action:          vote.ActionShort,
			Confidence:      0.8,
			Reasoning:       "distribution at resistance",
			EntryPrice:      100,
			StopLoss:        102,
			TakeProfit:      96,
			Leverage:        5,
			PositionSizePct: 0.1,
		}))
	})
	defer done()

	cfg := config.DefaultConfig()
	log := logging.New(&logging.Config{Level: "ERROR"})
	e := New(cfg, exchange.NewMockClient(10000), events.NewBus(), orc, nil, log)

	snap := &market.MarketSnapshot{Symbol: "BTCUSDT", Views: map[market.Timeframe]*market.TimeframeView{}}
	verdict, err := e.consultOracle(context.Background(), log, snap, &pipeline.Decision{}, vote.ActionLong)
	if err != nil {
		t.Fatalf("consultOracle: %v", err)
	}
	if verdict != vote.ActionHold {
		t.Errorf("disagreeing oracle verdict = %s, want hold", verdict)
	}
}

func TestConsultOracleFailureKeepsLocalDecision(t *testing.T) {
	orc, done := testOracle(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	defer done()

	cfg := config.DefaultConfig()
	log := logging.New(&logging.Config{Level: "ERROR"})
	e := New(cfg, exchange.NewMockClient(10000), events.NewBus(), orc, nil, log)

	snap := &market.MarketSnapshot{Symbol: "BTCUSDT", Views: map[market.Timeframe]*market.TimeframeView{}}
	verdict, err := e.consultOracle(context.Background(), log, snap, &pipeline.Decision{}, vote.ActionLong)
	if err == nil {
		t.Fatal("oracle failure must surface an error for the report")
	}
	if verdict != vote.ActionLong {
		t.Errorf("oracle failure changed the local decision to %s", verdict)
	}
	rec := toRecord(&CycleReport{CycleID: "x", Outcome: OutcomeSuccess, Err: stageErr(StageDecision, err)})
	if rec.ErrorStage != "decision" {
		t.Errorf("error stage = %q, want decision", rec.ErrorStage)
	}
}

package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/circuit"
	"futures-quant-bot/internal/events"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
	"futures-quant-bot/internal/oracle"
	"futures-quant-bot/internal/pipeline"
	"futures-quant-bot/internal/risk"
	"futures-quant-bot/internal/store"
	"futures-quant-bot/internal/vote"
)

// Engine drives the decision loop: every cycle interval it snapshots the
// market per symbol, runs the scoring pipeline, audits the proposed order,
// and executes. Cycles for different symbols run concurrently; cycles for
// the same symbol never overlap.
type Engine struct {
	cfg       *config.Config
	client    exchange.Adapter
	fetcher   *market.Fetcher
	pipe      *pipeline.Pipeline
	auditor   *risk.Engine
	breaker   *circuit.Breaker
	bus       *events.Bus
	oracle    *oracle.Oracle // nil when disabled
	sink      store.Sink
	log       *logging.Logger
	observers []Observer
	streams   []*exchange.KlineStream

	mu       sync.Mutex
	inFlight map[string]bool
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New wires a bot engine. oracleClient and sink may be nil.
func New(cfg *config.Config, client exchange.Adapter, bus *events.Bus, orc *oracle.Oracle,
	sink store.Sink, log *logging.Logger) *Engine {

	timeframes := make([]market.Timeframe, 0, len(cfg.TradingConfig.Timeframes))
	for _, tf := range cfg.TradingConfig.Timeframes {
		timeframes = append(timeframes, market.Timeframe(tf))
	}
	if sink == nil {
		sink = store.NoopSink{}
	}

	return &Engine{
		cfg:    cfg,
		client: client,
		fetcher: market.NewFetcher(client, timeframes, cfg.TradingConfig.KlineLimit,
			time.Duration(cfg.TradingConfig.MaxSkewSeconds)*time.Second, log),
		pipe:     pipeline.New(cfg.VoteConfig, log),
		auditor:  risk.NewEngine(cfg.RiskConfig, log),
		breaker:  circuit.NewBreaker(cfg.BreakerConfig, bus),
		bus:      bus,
		oracle:   orc,
		sink:     sink,
		log:      log.WithComponent("bot"),
		inFlight: make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// AddObserver registers a cycle observer. Must be called before Run.
func (e *Engine) AddObserver(obs Observer) {
	e.observers = append(e.observers, obs)
}

// Breaker exposes the circuit breaker for status reporting
func (e *Engine) Breaker() *circuit.Breaker {
	return e.breaker
}

// Run executes decision cycles until the context ends or Stop is called.
// The first round runs immediately; later rounds follow the configured
// interval.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("bot: already running")
	}
	e.running = true
	e.mu.Unlock()

	e.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
		"symbols":  e.cfg.TradingConfig.Symbols,
		"dry_run":  e.cfg.TradingConfig.DryRun,
		"interval": e.cfg.TradingConfig.CycleInterval,
	}})
	e.log.Info("bot started", "symbols", e.cfg.TradingConfig.Symbols, "dry_run", e.cfg.TradingConfig.DryRun)

	ticker := time.NewTicker(e.cfg.TradingConfig.CycleIntervalDuration())
	defer ticker.Stop()

	e.startStreams(ctx)
	e.runRound(ctx)
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-e.stop:
			e.shutdown()
			return nil
		case <-ticker.C:
			e.runRound(ctx)
		}
	}
}

// Stop ends the loop after in-flight cycles complete
func (e *Engine) Stop() {
	close(e.stop)
}

// startStreams subscribes every symbol/timeframe pair to the kline
// websocket so the forming bar stays fresh between REST polls. Mock mode
// has no stream endpoint; the simulated client is already bar-synchronous.
func (e *Engine) startStreams(ctx context.Context) {
	if e.cfg.ExchangeConfig.MockMode {
		return
	}
	handler := func(symbol, timeframe string, candle market.Candle, closed bool) {
		e.fetcher.UpdateLive(symbol, market.Timeframe(timeframe), candle)
	}
	for _, symbol := range e.cfg.TradingConfig.Symbols {
		for _, tf := range e.cfg.TradingConfig.Timeframes {
			stream := exchange.NewKlineStream(e.cfg.ExchangeConfig.WSBaseURL, symbol, tf, handler, e.log)
			e.streams = append(e.streams, stream)
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				stream.Run(ctx)
			}()
		}
	}
}

func (e *Engine) shutdown() {
	for _, stream := range e.streams {
		stream.Stop()
	}
	e.wg.Wait()
	e.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	e.log.Info("bot stopped")
}

// runRound starts one cycle per symbol, skipping symbols whose previous
// cycle has not finished
func (e *Engine) runRound(ctx context.Context) {
	for _, symbol := range e.cfg.TradingConfig.Symbols {
		e.mu.Lock()
		if e.inFlight[symbol] {
			e.mu.Unlock()
			e.log.Warn("previous cycle still running, skipping", "symbol", symbol)
			continue
		}
		e.inFlight[symbol] = true
		e.mu.Unlock()

		e.wg.Add(1)
		go func(symbol string) {
			defer e.wg.Done()
			defer func() {
				e.mu.Lock()
				e.inFlight[symbol] = false
				e.mu.Unlock()
			}()
			e.finishCycle(ctx, e.runCycle(ctx, symbol))
		}(symbol)
	}
}

// runCycle executes one full decision cycle for a symbol. Every exit path
// returns a report; errors degrade the cycle, they never crash the loop.
func (e *Engine) runCycle(ctx context.Context, symbol string) *CycleReport {
	report := &CycleReport{
		CycleID:   uuid.NewString(),
		Symbol:    symbol,
		StartedAt: time.Now(),
	}
	log := e.log.WithCycleID(report.CycleID)

	e.bus.Publish(events.Event{Type: events.EventCycleStarted, Data: map[string]interface{}{
		"cycle_id": report.CycleID, "symbol": symbol,
	}})

	// Data stage with its own timeout: a stuck fetch degrades to an error
	// outcome instead of wedging the loop
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.TradingConfig.FetchTimeoutDuration())
	snap, err := e.fetcher.Snapshot(fetchCtx, symbol)
	cancel()
	if err != nil {
		return report.fail(stageErr(StageData, err))
	}

	decision, err := e.pipe.Decide(snap)
	if err != nil {
		return report.fail(stageErr(StageIndicator, err))
	}
	report.Vote = &decision.Vote
	report.Sentiment = &decision.Sentiment
	report.FundingRate = snap.FundingRate

	position, err := e.client.GetPosition(ctx, symbol)
	if err != nil {
		return report.fail(stageErr(StageData, err))
	}
	balance, err := e.client.GetAccountBalance(ctx)
	if err != nil {
		return report.fail(stageErr(StageData, err))
	}

	action := mapAction(decision.Vote.Action, position)
	if action == vote.ActionHold {
		log.Info("cycle hold", "symbol", symbol, "reason", decision.Vote.Reason)
		report.Outcome = OutcomeHold
		return report
	}

	if decision.Vote.Confidence < e.cfg.TradingConfig.MinConfidence &&
		(action == vote.ActionLong || action == vote.ActionShort) {
		log.Info("confidence below threshold, holding", "symbol", symbol,
			"confidence", decision.Vote.Confidence, "threshold", e.cfg.TradingConfig.MinConfidence)
		report.Outcome = OutcomeHold
		return report
	}

	if action == vote.ActionLong || action == vote.ActionShort {
		if ok, reason := e.breaker.Allow(); !ok {
			log.Warn("circuit breaker blocked entry", "symbol", symbol, "reason", reason)
			e.bus.PublishOrderBlocked(report.CycleID, symbol, reason)
			report.Outcome = OutcomeBlocked
			report.Err = stageErr(StageRisk, fmt.Errorf("circuit breaker: %s", reason))
			return report
		}

		if e.oracle != nil {
			verdict, err := e.consultOracle(ctx, log, snap, decision, action)
			if err != nil {
				// Advisory failure: the local decision stands, but the
				// report carries the decision-stage error
				report.Err = stageErr(StageDecision, err)
			}
			action = verdict
			if action == vote.ActionHold {
				report.Outcome = OutcomeHold
				return report
			}
		}
	}

	price, err := e.client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return report.fail(stageErr(StageData, err))
	}

	order := risk.ProposeOrder(symbol, action, decision.Vote.Confidence, price, balance,
		e.cfg.TradingConfig.PositionSizePct, e.cfg.RiskConfig.DefaultStopLossPct,
		e.cfg.RiskConfig.TakeProfitRatio, e.cfg.TradingConfig.DefaultLeverage)
	audit := e.auditor.Audit(order, position, balance, price, snap.FundingRate)
	report.Order = order
	report.Audit = &audit

	if !audit.Passed {
		log.Warn("risk audit blocked order", "symbol", symbol, "reason", audit.BlockedReason)
		e.bus.PublishOrderBlocked(report.CycleID, symbol, audit.BlockedReason)
		report.Outcome = OutcomeBlocked
		return report
	}

	if e.cfg.TradingConfig.DryRun {
		log.Info("dry run, order not sent", "symbol", symbol, "action", string(action),
			"quantity", order.Quantity, "entry", order.EntryPrice)
		report.Outcome = OutcomeSuccess
		return report
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.TradingConfig.ExecuteTimeoutDuration())
	defer cancel()
	if err := e.execute(execCtx, log, order, position); err != nil {
		report.Outcome = OutcomeFailed
		report.Err = stageErr(StageExecution, err)
		return report
	}

	e.bus.PublishOrderPlaced(report.CycleID, symbol, string(action),
		order.EntryPrice, order.Quantity, order.Leverage)
	report.Outcome = OutcomeSuccess
	return report
}

// execute places the market order and, for entries, leverage and exits
func (e *Engine) execute(ctx context.Context, log *logging.Logger, order *risk.OrderParams, position *exchange.Position) error {
	side := orderSide(order.Action)

	if order.IsOpen() {
		if err := e.client.SetLeverage(ctx, order.Symbol, order.Leverage); err != nil {
			return fmt.Errorf("set leverage: %w", err)
		}
	} else {
		// Closing: quantity is whatever is open, not the proposal
		if position == nil {
			return fmt.Errorf("close without open position")
		}
		order.Quantity = position.Quantity
	}

	fill, err := e.client.PlaceMarketOrder(ctx, order.Symbol, side, order.Quantity)
	if err != nil {
		return fmt.Errorf("market order: %w", err)
	}
	log.Info("order filled", "symbol", order.Symbol, "side", string(side),
		"price", fill.Price, "quantity", fill.Quantity)

	if order.IsOpen() {
		posSide := exchange.SideLong
		if order.Action == vote.ActionShort {
			posSide = exchange.SideShort
		}
		if err := e.client.SetStopLossTakeProfit(ctx, order.Symbol, posSide, order.StopLoss, order.TakeProfit); err != nil {
			// The position is live without exits; surface loudly but do not
			// report the fill itself as failed
			log.Error("failed to attach exit orders", "symbol", order.Symbol, "error", err)
			e.bus.PublishError("bot", "exit orders not attached", err)
		}
	} else if position != nil {
		pnl := closedPnL(position, fill.Price)
		e.bus.PublishPositionClosed(order.Symbol, string(position.Side),
			position.EntryPrice, fill.Price, pnl)
		if balance, err := e.client.GetAccountBalance(ctx); err == nil && balance > 0 {
			e.breaker.RecordTrade(pnl / balance)
		}
	}
	return nil
}

// consultOracle asks the LLM for a second opinion on an entry. A hold or
// an opposite-direction answer downgrades the entry to hold; agreement
// keeps the local decision. An unavailable or invalid oracle also keeps
// the local decision, returning the error for the report.
func (e *Engine) consultOracle(ctx context.Context, log *logging.Logger, snap *market.MarketSnapshot,
	decision *pipeline.Decision, action vote.Action) (vote.Action, error) {

	oracleDecision, err := e.oracle.Decide(ctx, snap, decision.Rows)
	if err != nil {
		log.Warn("oracle unavailable, keeping local decision", "error", err)
		return action, err
	}
	if oracleDecision.Action == action {
		return action, nil
	}
	log.Info("oracle disagrees, downgrading to hold",
		"local", string(action), "oracle", string(oracleDecision.Action),
		"oracle_confidence", oracleDecision.Confidence)
	return vote.ActionHold, nil
}

// finishCycle persists, publishes, and notifies after a cycle ends
func (e *Engine) finishCycle(ctx context.Context, report *CycleReport) {
	report.FinishedAt = time.Now()

	if report.Err != nil {
		e.log.WithCycleID(report.CycleID).Error("cycle error",
			"symbol", report.Symbol, "stage", string(report.Err.Stage), "error", report.Err.Err)
		e.bus.PublishError("bot", string(report.Err.Stage), report.Err.Err)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.sink.SaveCycle(saveCtx, toRecord(report)); err != nil {
		e.log.Warn("cycle record not persisted", "cycle_id", report.CycleID, "error", err)
	}

	action, confidence := "", 0.0
	if report.Vote != nil {
		action, confidence = string(report.Vote.Action), report.Vote.Confidence
	}
	e.bus.PublishCycleCompleted(report.CycleID, report.Symbol, string(report.Outcome), action, confidence)

	for _, obs := range e.observers {
		obs.CycleFinished(report)
	}
}

func (r *CycleReport) fail(err *CycleError) *CycleReport {
	r.Outcome = OutcomeError
	r.Err = err
	return r
}

// mapAction translates the vote into an executable action given the open
// position: an opposing vote closes before anything else, a same-direction
// vote on an open position holds (no pyramiding), and close votes with no
// position become holds.
func mapAction(action vote.Action, position *exchange.Position) vote.Action {
	open := position != nil && position.Quantity > 0

	switch action {
	case vote.ActionLong:
		if open && position.Side == exchange.SideShort {
			return vote.ActionCloseShort
		}
		if open {
			return vote.ActionHold
		}
	case vote.ActionShort:
		if open && position.Side == exchange.SideLong {
			return vote.ActionCloseLong
		}
		if open {
			return vote.ActionHold
		}
	case vote.ActionCloseLong, vote.ActionCloseShort:
		if !open {
			return vote.ActionHold
		}
	}
	return action
}

func orderSide(action vote.Action) exchange.OrderSide {
	switch action {
	case vote.ActionLong, vote.ActionCloseShort:
		return exchange.OrderBuy
	default:
		return exchange.OrderSell
	}
}

func closedPnL(position *exchange.Position, exitPrice float64) float64 {
	pnl := (exitPrice - position.EntryPrice) * position.Quantity
	if position.Side == exchange.SideShort {
		pnl = -pnl
	}
	return pnl
}

func toRecord(report *CycleReport) *store.CycleRecord {
	rec := &store.CycleRecord{
		CycleID:    report.CycleID,
		Symbol:     report.Symbol,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Outcome:    string(report.Outcome),
	}
	if report.Vote != nil {
		rec.Action = string(report.Vote.Action)
		rec.Confidence = report.Vote.Confidence
		rec.WeightedScore = report.Vote.WeightedScore
		rec.Regime = string(report.Vote.Regime.Regime)
		rec.Alignment = string(report.Vote.Alignment)
		rec.Reason = report.Vote.Reason
	}
	if report.Sentiment != nil {
		rec.SentimentScore = report.Sentiment.Value
	}
	rec.FundingRate = report.FundingRate
	if report.Audit != nil {
		rec.RiskLevel = report.Audit.RiskLevel
		rec.BlockedReason = report.Audit.BlockedReason
	}
	if report.Order != nil {
		rec.EntryPrice = report.Order.EntryPrice
		rec.Quantity = report.Order.Quantity
		rec.Leverage = report.Order.Leverage
	}
	if report.Err != nil {
		rec.ErrorStage = string(report.Err.Stage)
		rec.ErrorMessage = report.Err.Err.Error()
	}
	return rec
}

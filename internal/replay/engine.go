package replay

import (
	"fmt"
	"math"
	"time"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
	"futures-quant-bot/internal/pipeline"
	"futures-quant-bot/internal/risk"
	"futures-quant-bot/internal/vote"
)

// bars per aggregation period, relative to the 5m base series
const (
	barsPer15m = 3
	barsPer1h  = 12
)

// Trade is one simulated round trip
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	Side       exchange.PositionSide
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	ProfitLoss float64
	ExitReason string // "stop_loss", "take_profit", "signal", "end_of_data"
}

// EquityPoint is the account value after one simulated bar
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result holds the replay performance summary
type Result struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	NetProfit     float64
	ProfitFactor  float64
	MaxDrawdown   float64 // Fraction of peak equity
	FinalEquity   float64
	Trades        []Trade
	EquityCurve   []EquityPoint
}

// Engine replays historical bars through the same scoring/voting/audit
// chain the live loop runs. It is single-threaded and strictly sequential:
// determinism is a requirement, not an optimization target.
//
// The structural no-lookahead guarantee: at simulated bar t the pipeline
// sees only bars strictly before t as stable history, and bar t reduced to
// its open price as the live bar. Fills execute at bar t's open.
type Engine struct {
	cfg      config.BacktestConfig
	pipe     *pipeline.Pipeline
	auditor  *risk.Engine
	riskCfg  config.RiskConfig
	tradeCfg config.TradingConfig
	log      *logging.Logger
}

// NewEngine creates a replay engine sharing the live pipeline configuration
func NewEngine(cfg config.BacktestConfig, riskCfg config.RiskConfig, tradeCfg config.TradingConfig,
	voteCfg config.VoteConfig, log *logging.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		pipe:     pipeline.New(voteCfg, log),
		auditor:  risk.NewEngine(riskCfg, log),
		riskCfg:  riskCfg,
		tradeCfg: tradeCfg,
		log:      log.WithComponent("replay"),
	}
}

// simPosition is the engine's simulated open position
type simPosition struct {
	side       exchange.PositionSide
	entryPrice float64
	quantity   float64
	stopLoss   float64
	takeProfit float64
	entryTime  time.Time
}

// Run replays a validated 5m history. The series must be time-ordered; it
// is passed through the ingestion validator first.
func (e *Engine) Run(symbol string, history []market.Candle) (*Result, error) {
	history, dropped := market.ValidateSeries(history)
	if dropped > 0 {
		e.log.Warn("replay dropped invalid bars", "dropped", dropped)
	}

	start := e.warmupBars()
	if len(history) <= start+1 {
		return nil, fmt.Errorf("replay: need more than %d bars, got %d", start+1, len(history))
	}

	agg15 := aggregate(history, barsPer15m)
	agg1h := aggregate(history, barsPer1h)

	result := &Result{}
	equity := e.cfg.InitialCapital
	peak := equity
	var pos *simPosition

	for t := start; t < len(history); t++ {
		bar := history[t]

		// Exits are evaluated against the bar's full range before any new
		// decision: the position was opened on an earlier bar, so bar t's
		// extremes are legitimately in its future
		if pos != nil {
			if exit, price, reason := pos.checkExit(bar); exit {
				equity += e.closeTrade(result, pos, price, bar, reason)
				pos = nil
			}
		}

		snap := e.SnapshotAt(symbol, history, agg15, agg1h, t)
		decision, err := e.pipe.Decide(snap)
		if err != nil {
			// Not enough aggregated history yet; keep advancing
			continue
		}

		equity = e.applyDecision(result, decision.Vote, &pos, bar, equity)

		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Time:   time.UnixMilli(bar.OpenTime),
			Equity: equity,
		})
	}

	// Close any remaining position at the final bar's open
	if pos != nil {
		last := history[len(history)-1]
		equity += e.closeTrade(result, pos, last.Open, last, "end_of_data")
	}

	e.finishMetrics(result, equity)
	return result, nil
}

// SnapshotAt builds the snapshot visible at simulated time t: stable bars
// strictly before bar t, and bar t collapsed to its open. High, low, and
// close of bar t are future information relative to a decision made at its
// start, so they never appear in the snapshot.
func (e *Engine) SnapshotAt(symbol string, history, agg15, agg1h []market.Candle, t int) *market.MarketSnapshot {
	bar := history[t]
	live := openOnly(bar)

	views := map[market.Timeframe]*market.TimeframeView{
		market.TF5m: {
			Timeframe: market.TF5m,
			Stable:    history[:t],
			Live:      live,
		},
		market.TF15m: {
			Timeframe: market.TF15m,
			Stable:    closedBefore(agg15, bar.OpenTime),
			Live:      live,
		},
		market.TF1h: {
			Timeframe: market.TF1h,
			Stable:    closedBefore(agg1h, bar.OpenTime),
			Live:      live,
		},
	}

	return &market.MarketSnapshot{
		Symbol:      symbol,
		Timestamp:   time.UnixMilli(bar.OpenTime),
		Views:       views,
		AlignmentOK: true, // Replay data is aligned by construction
	}
}

// applyDecision audits and executes a vote at bar t's open price
func (e *Engine) applyDecision(result *Result, v vote.Result, pos **simPosition, bar market.Candle, equity float64) float64 {
	if v.Confidence < e.tradeCfg.MinConfidence {
		return equity
	}

	openPrice := bar.Open

	// An opposite-direction vote closes the open position first
	if *pos != nil {
		opposite := ((*pos).side == exchange.SideLong && v.Action == vote.ActionShort) ||
			((*pos).side == exchange.SideShort && v.Action == vote.ActionLong)
		if opposite || v.Action == vote.ActionCloseLong || v.Action == vote.ActionCloseShort {
			equity += e.closeTrade(result, *pos, openPrice, bar, "signal")
			*pos = nil
		}
	}

	if *pos != nil || (v.Action != vote.ActionLong && v.Action != vote.ActionShort) {
		return equity
	}

	order := risk.ProposeOrder("replay", v.Action, v.Confidence, openPrice, equity,
		e.tradeCfg.PositionSizePct, e.riskCfg.DefaultStopLossPct, e.riskCfg.TakeProfitRatio,
		e.tradeCfg.DefaultLeverage)
	// Historical klines carry no funding rate, so the funding veto never
	// fires in replay
	audit := e.auditor.Audit(order, nil, equity, openPrice, 0)
	if !audit.Passed || order.Quantity <= 0 {
		return equity
	}

	side := exchange.SideLong
	if v.Action == vote.ActionShort {
		side = exchange.SideShort
	}
	*pos = &simPosition{
		side:       side,
		entryPrice: openPrice,
		quantity:   order.Quantity,
		stopLoss:   order.StopLoss,
		takeProfit: order.TakeProfit,
		entryTime:  time.UnixMilli(bar.OpenTime),
	}
	return equity - openPrice*order.Quantity*e.cfg.Commission
}

// checkExit tests the bar's range against the position's exits. When both
// could fill inside one bar the stop wins: the pessimistic assumption.
func (p *simPosition) checkExit(bar market.Candle) (bool, float64, string) {
	if p.side == exchange.SideLong {
		if bar.Low <= p.stopLoss {
			return true, p.stopLoss, "stop_loss"
		}
		if bar.High >= p.takeProfit {
			return true, p.takeProfit, "take_profit"
		}
	} else {
		if bar.High >= p.stopLoss {
			return true, p.stopLoss, "stop_loss"
		}
		if bar.Low <= p.takeProfit {
			return true, p.takeProfit, "take_profit"
		}
	}
	return false, 0, ""
}

func (e *Engine) closeTrade(result *Result, pos *simPosition, price float64, bar market.Candle, reason string) float64 {
	pnl := (price - pos.entryPrice) * pos.quantity
	if pos.side == exchange.SideShort {
		pnl = -pnl
	}
	pnl -= price * pos.quantity * e.cfg.Commission

	result.Trades = append(result.Trades, Trade{
		EntryTime:  pos.entryTime,
		ExitTime:   time.UnixMilli(bar.OpenTime),
		Side:       pos.side,
		EntryPrice: pos.entryPrice,
		ExitPrice:  price,
		Quantity:   pos.quantity,
		ProfitLoss: pnl,
		ExitReason: reason,
	})
	return pnl
}

func (e *Engine) finishMetrics(result *Result, equity float64) {
	grossProfit, grossLoss := 0.0, 0.0
	for _, trade := range result.Trades {
		if trade.ProfitLoss > 0 {
			result.WinningTrades++
			grossProfit += trade.ProfitLoss
		} else {
			result.LosingTrades++
			grossLoss += -trade.ProfitLoss
		}
	}
	result.TotalTrades = len(result.Trades)
	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades)
	}
	if grossLoss > 0 {
		result.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		result.ProfitFactor = math.Inf(1)
	}
	result.FinalEquity = equity
	result.NetProfit = equity - e.cfg.InitialCapital
}

// warmupBars is how many 5m bars must pass before the 1h view has enough
// stable history for the indicator engine
func (e *Engine) warmupBars() int {
	// Indicator warmup is dominated by the 60-bar slow EMA; one extra
	// aggregated bar covers the off-by-one at period boundaries
	const hourlyBarsNeeded = 62
	return hourlyBarsNeeded * barsPer1h
}

// openOnly collapses a bar to the information available at its start
func openOnly(bar market.Candle) market.Candle {
	return market.Candle{
		OpenTime:  bar.OpenTime,
		Open:      bar.Open,
		High:      bar.Open,
		Low:       bar.Open,
		Close:     bar.Open,
		Volume:    0,
		CloseTime: bar.CloseTime,
	}
}

// closedBefore returns the aggregated bars that fully closed before cutoff
func closedBefore(agg []market.Candle, cutoff int64) []market.Candle {
	n := len(agg)
	for n > 0 && agg[n-1].CloseTime >= cutoff {
		n--
	}
	return agg[:n]
}

// aggregate rolls complete base-bar groups into higher-timeframe candles.
// Incomplete trailing groups are omitted; they only ever become stable
// once all their base bars have closed.
func aggregate(base []market.Candle, group int) []market.Candle {
	out := make([]market.Candle, 0, len(base)/group)
	for i := 0; i+group <= len(base); i += group {
		chunk := base[i : i+group]
		agg := market.Candle{
			OpenTime:  chunk[0].OpenTime,
			Open:      chunk[0].Open,
			High:      chunk[0].High,
			Low:       chunk[0].Low,
			Close:     chunk[group-1].Close,
			CloseTime: chunk[group-1].CloseTime,
		}
		for _, c := range chunk {
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Volume += c.Volume
		}
		out = append(out, agg)
	}
	return out
}

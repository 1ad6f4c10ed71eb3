package pipeline

import (
	"fmt"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/indicator"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
	"futures-quant-bot/internal/regime"
	"futures-quant-bot/internal/signal"
	"futures-quant-bot/internal/vote"
)

// Decision is the full output of one pipeline run over a snapshot
type Decision struct {
	Vote      vote.Result
	Sentiment signal.Score
	Rows      map[market.Timeframe][]indicator.Row
}

// Pipeline is the scoring and voting chain from a MarketSnapshot to a
// vote. The live loop and the replay engine run this identical chain; it
// holds no per-cycle state, so the same snapshot always produces the same
// decision.
type Pipeline struct {
	indicatorCfg indicator.Config
	trend        map[market.Timeframe]*signal.TrendScorer
	osc          map[market.Timeframe]*signal.OscillatorScorer
	sentiment    *signal.SentimentScorer
	classifier   *regime.Classifier
	analyzer     *regime.PositionAnalyzer
	votes        *vote.Engine
	log          *logging.Logger
}

// New builds a pipeline with the configured vote weights
func New(voteCfg config.VoteConfig, log *logging.Logger) *Pipeline {
	timeframes := []market.Timeframe{market.TF5m, market.TF15m, market.TF1h}

	trend := make(map[market.Timeframe]*signal.TrendScorer, len(timeframes))
	osc := make(map[market.Timeframe]*signal.OscillatorScorer, len(timeframes))
	for _, tf := range timeframes {
		trend[tf] = signal.NewTrendScorer(tf)
		osc[tf] = signal.NewOscillatorScorer(tf)
	}

	return &Pipeline{
		indicatorCfg: indicator.DefaultConfig(),
		trend:        trend,
		osc:          osc,
		sentiment:    signal.NewSentimentScorer(),
		classifier:   regime.NewClassifier(30),
		analyzer:     regime.NewPositionAnalyzer(20),
		votes:        vote.NewEngine(voteCfg),
		log:          log.WithComponent("pipeline"),
	}
}

// Decide runs indicators, scorers, regime analysis, and the vote over one
// snapshot. Pure synchronous computation: no I/O, no suspension points.
func (p *Pipeline) Decide(snap *market.MarketSnapshot) (*Decision, error) {
	rows := make(map[market.Timeframe][]indicator.Row, len(snap.Views))
	for tf, view := range snap.Views {
		series, err := indicator.Compute(view.Stable, p.indicatorCfg)
		if err != nil {
			return nil, fmt.Errorf("indicators %s %s: %w", snap.Symbol, tf, err)
		}
		rows[tf] = series
	}

	trendScores := make(map[market.Timeframe]signal.Score, len(rows))
	oscScores := make(map[market.Timeframe]signal.Score, len(rows))
	for tf, view := range snap.Views {
		trendScores[tf] = p.trend[tf].Score(rows[tf], view.Live)
		oscScores[tf] = p.osc[tf].Score(rows[tf], p.higherRSI(tf, rows))
	}

	hourly := snap.View(market.TF1h)
	classification := p.classifier.Classify(hourly.Stable)
	position := p.analyzer.Analyze(hourly.Stable)
	sentiment := p.sentiment.Score(snap.FundingRate, rows[market.TF5m])

	result := p.votes.Vote(vote.Inputs{
		Trend:     trendScores,
		Osc:       oscScores,
		Regime:    classification,
		Position:  position,
		Alignment: snap.AlignmentOK,
	})

	p.log.Debug("vote computed", "symbol", snap.Symbol,
		"action", string(result.Action), "confidence", result.Confidence,
		"weighted_score", result.WeightedScore, "alignment", string(result.Alignment))

	return &Decision{Vote: result, Sentiment: sentiment, Rows: rows}, nil
}

// higherRSI returns the confirming timeframe's latest RSI: 15m confirms
// 5m, 1h confirms 15m, nothing confirms 1h (negative disables the check).
func (p *Pipeline) higherRSI(tf market.Timeframe, rows map[market.Timeframe][]indicator.Row) float64 {
	var higher market.Timeframe
	switch tf {
	case market.TF5m:
		higher = market.TF15m
	case market.TF15m:
		higher = market.TF1h
	default:
		return -1
	}
	series := rows[higher]
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].IsWarmup {
			return series[i].RSI
		}
	}
	return -1
}

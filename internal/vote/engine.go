package vote

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/market"
	"futures-quant-bot/internal/regime"
	"futures-quant-bot/internal/signal"
)

// Action is the trade decision produced by a vote
type Action string

const (
	ActionLong       Action = "long"
	ActionShort      Action = "short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
	ActionHold       Action = "hold"
)

// AlignmentTier describes cross-timeframe agreement among trend scores
type AlignmentTier string

const (
	AlignmentStrong AlignmentTier = "strong_aligned" // All three timeframes agree
	AlignmentMedium AlignmentTier = "aligned"        // 1h and 15m agree; 5m noise tolerated
	AlignmentNone   AlignmentTier = "not_aligned"
)

// Dead-zone for per-timeframe sign: |score| below this counts as neutral
const signDeadZone = 10.0

// Contribution is one signal's share of the weighted score
type Contribution struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Result is the immutable outcome of one vote. Confidence is 0-1.
type Result struct {
	Action             Action                 `json:"action"`
	Confidence         float64                `json:"confidence"`
	WeightedScore      float64                `json:"weighted_score"`
	Contributions      []Contribution         `json:"contributions"`
	MultiPeriodAligned bool                   `json:"multi_period_aligned"`
	Alignment          AlignmentTier          `json:"alignment"`
	Reason             string                 `json:"reason"`
	Regime             regime.Classification  `json:"regime"`
	Position           regime.RangePosition   `json:"position"`
}

// Inputs bundles the per-timeframe scores and context for one vote
type Inputs struct {
	Trend     map[market.Timeframe]signal.Score
	Osc       map[market.Timeframe]signal.Score
	Regime    regime.Classification
	Position  regime.RangePosition
	Alignment bool // MarketSnapshot.AlignmentOK; false degrades confidence
}

// Engine combines per-timeframe scores into one trade decision through
// fixed weights, an alignment check, action mapping, and confidence
// calibration. It holds no state between votes.
type Engine struct {
	weights config.VoteConfig
}

// NewEngine creates a voting engine. The weight set must already be
// validated (sum 1.0) by config loading.
func NewEngine(weights config.VoteConfig) *Engine {
	return &Engine{weights: weights}
}

// Vote runs the full decision sequence. It is pure: the same Inputs always
// produce the same Result.
func (e *Engine) Vote(in Inputs) Result {
	// Pre-filter veto: a composite score computed in a known-bad regime is
	// misleading, so short-circuit before any weighting happens
	if in.Regime.Regime == regime.Choppy && in.Position.Location == regime.LocationMiddle {
		return Result{
			Action:     ActionHold,
			Confidence: 0.10,
			Alignment:  AlignmentNone,
			Reason:     "choppy regime with price mid-range: no edge, holding",
			Regime:     in.Regime,
			Position:   in.Position,
		}
	}

	contributions := e.weigh(in)
	weighted := 0.0
	for _, c := range contributions {
		weighted += c.Weighted
	}

	tier := alignmentTier(in.Trend)
	aligned := tier != AlignmentNone

	action, baseConf := mapAction(weighted, aligned)
	confidence := e.calibrate(baseConf, action, in, aligned)

	return Result{
		Action:             action,
		Confidence:         confidence,
		WeightedScore:      weighted,
		Contributions:      contributions,
		MultiPeriodAligned: aligned,
		Alignment:          tier,
		Reason:             buildReason(contributions, tier, action),
		Regime:             in.Regime,
		Position:           in.Position,
	}
}

func (e *Engine) weigh(in Inputs) []Contribution {
	w := e.weights
	entries := []struct {
		name   string
		score  signal.Score
		weight float64
	}{
		{"trend_1h", in.Trend[market.TF1h], w.TrendWeight1h},
		{"trend_15m", in.Trend[market.TF15m], w.TrendWeight15m},
		{"trend_5m", in.Trend[market.TF5m], w.TrendWeight5m},
		{"osc_1h", in.Osc[market.TF1h], w.OscWeight1h},
		{"osc_15m", in.Osc[market.TF15m], w.OscWeight15m},
		{"osc_5m", in.Osc[market.TF5m], w.OscWeight5m},
	}

	out := make([]Contribution, 0, len(entries))
	for _, entry := range entries {
		out = append(out, Contribution{
			Name:     entry.name,
			Score:    entry.score.Value,
			Weight:   entry.weight,
			Weighted: entry.score.Value * entry.weight,
		})
	}
	return out
}

// alignmentTier checks directional agreement among trend scores. The
// tiering tolerates 5m noise: medium/long agreement still counts.
func alignmentTier(trend map[market.Timeframe]signal.Score) AlignmentTier {
	sign := func(tf market.Timeframe) int {
		v := trend[tf].Value
		if v >= signDeadZone {
			return 1
		}
		if v <= -signDeadZone {
			return -1
		}
		return 0
	}

	s5, s15, s1h := sign(market.TF5m), sign(market.TF15m), sign(market.TF1h)
	if s5 != 0 && s5 == s15 && s15 == s1h {
		return AlignmentStrong
	}
	if s1h != 0 && s1h == s15 {
		return AlignmentMedium
	}
	return AlignmentNone
}

// mapAction turns the weighted score into an action with base confidence
func mapAction(weighted float64, aligned bool) (Action, float64) {
	abs := math.Abs(weighted)

	direction := ActionLong
	if weighted < 0 {
		direction = ActionShort
	}

	switch {
	case abs > 50 && aligned:
		return direction, 0.85
	case abs > 30:
		// Linear 0.60 -> 0.75 as the score grows from 30 to 50
		conf := 0.60 + (math.Min(abs, 50)-30)/20*0.15
		return direction, conf
	default:
		return ActionHold, abs / 100
	}
}

// calibrate adjusts base confidence with regime and position signals, then
// applies a hard multiplicative penalty on direction-permission conflicts:
// those are qualitatively worse than an ordinary weak setup.
func (e *Engine) calibrate(conf float64, action Action, in Inputs, aligned bool) float64 {
	if aligned {
		conf += 0.15
	}
	if in.Regime.Regime == regime.TrendingUp || in.Regime.Regime == regime.TrendingDown {
		conf += 0.10
	}
	if in.Position.Quality == regime.QualityExcellent {
		conf += 0.15
	}
	if in.Regime.Regime == regime.Choppy {
		conf -= 0.25
	}
	if in.Position.Location == regime.LocationMiddle {
		conf -= 0.30
	}
	if in.Regime.Regime == regime.Volatile {
		conf -= 0.20
	}
	if !in.Alignment {
		// Cross-timeframe fetch skew: data is stale, trust it less
		conf -= 0.10
	}

	if (action == ActionLong && !in.Position.AllowLong) ||
		(action == ActionShort && !in.Position.AllowShort) {
		conf *= 0.3
	}

	if conf < 0.05 {
		conf = 0.05
	} else if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// buildReason names the top-2 contributors by absolute weighted share
func buildReason(contributions []Contribution, tier AlignmentTier, action Action) string {
	sorted := make([]Contribution, len(contributions))
	copy(sorted, contributions)
	sort.Slice(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Weighted) > math.Abs(sorted[j].Weighted)
	})

	parts := make([]string, 0, 3)
	for i := 0; i < len(sorted) && i < 2; i++ {
		parts = append(parts, fmt.Sprintf("%s=%.1f (w %.2f)", sorted[i].Name, sorted[i].Score, sorted[i].Weight))
	}
	parts = append(parts, string(tier))

	return fmt.Sprintf("%s: %s", action, strings.Join(parts, ", "))
}

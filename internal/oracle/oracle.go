package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"futures-quant-bot/internal/indicator"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/market"
	"futures-quant-bot/internal/vote"
)

// Decision is the oracle's structured answer. It goes through the same
// field/range validation as a locally computed decision before the risk
// audit ever sees it.
type Decision struct {
	Action          vote.Action `json:"action"`
	Confidence      float64     `json:"confidence"` // 0-1
	Reasoning       string      `json:"reasoning"`
	EntryPrice      float64     `json:"entry_price"`
	StopLoss        float64     `json:"stop_loss"`
	TakeProfit      float64     `json:"take_profit"`
	Leverage        int         `json:"leverage"`
	PositionSizePct float64     `json:"position_size_pct"` // 0-1 fraction of equity
}

// Oracle asks an LLM for a second opinion on the market context. It is a
// pluggable scoring collaborator, not part of the core algorithm: a failed
// or invalid answer degrades to a conservative hold.
type Oracle struct {
	client *Client
	log    *logging.Logger
}

// New creates an oracle over a chat client
func New(client *Client, log *logging.Logger) *Oracle {
	return &Oracle{client: client, log: log.WithComponent("oracle")}
}

const systemPrompt = `You are a crypto futures trading analyst. Reply with a single JSON object:
{"action": "long"|"short"|"hold", "confidence": 0.0-1.0, "reasoning": "...",
"entry_price": number, "stop_loss": number, "take_profit": number,
"leverage": integer, "position_size_pct": 0.0-1.0}`

// Decide formats the market context, queries the model, and validates the
// structured reply. Any validation failure returns an error; the caller
// falls back to hold.
func (o *Oracle) Decide(ctx context.Context, snap *market.MarketSnapshot, rows map[market.Timeframe][]indicator.Row) (*Decision, error) {
	prompt := buildContext(snap, rows)

	reply, err := o.client.Chat(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var decision Decision
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &decision); err != nil {
		return nil, fmt.Errorf("oracle: unparseable decision: %w", err)
	}
	if err := decision.Validate(); err != nil {
		o.log.Warn("oracle decision rejected", "error", err)
		return nil, err
	}
	return &decision, nil
}

// Validate enforces required fields and ranges. Rejection of the whole
// decision is deliberate: a partially valid decision is not salvaged.
func (d *Decision) Validate() error {
	switch d.Action {
	case vote.ActionLong, vote.ActionShort, vote.ActionHold:
	default:
		return fmt.Errorf("oracle: unknown action %q", d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("oracle: confidence %.3f out of [0,1]", d.Confidence)
	}
	if d.Action == vote.ActionHold {
		return nil
	}
	if d.EntryPrice <= 0 || d.StopLoss <= 0 || d.TakeProfit <= 0 {
		return fmt.Errorf("oracle: non-positive price field")
	}
	if d.Leverage < 1 || d.Leverage > 125 {
		return fmt.Errorf("oracle: leverage %d out of [1,125]", d.Leverage)
	}
	if d.PositionSizePct <= 0 || d.PositionSizePct > 1 {
		return fmt.Errorf("oracle: position_size_pct %.3f out of (0,1]", d.PositionSizePct)
	}
	return nil
}

// buildContext renders the snapshot and indicator tails as text
func buildContext(snap *market.MarketSnapshot, rows map[market.Timeframe][]indicator.Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nFunding rate: %.6f\nTimeframes aligned: %v\n\n",
		snap.Symbol, snap.FundingRate, snap.AlignmentOK)

	for _, tf := range []market.Timeframe{market.TF1h, market.TF15m, market.TF5m} {
		view := snap.View(tf)
		series := rows[tf]
		if view == nil || len(series) == 0 {
			continue
		}
		last := series[len(series)-1]
		fmt.Fprintf(&b, "[%s] close=%.2f ema%s rsi=%.1f macd_hist=%.4f bb_pos=%.1f kdj_j=%.1f atr=%.2f vol_ratio=%.2f\n",
			tf, last.Close, emaSummary(last), last.RSI, last.MACDHist, last.BBPosition, last.J, last.ATR, last.VolumeRatio)
		fmt.Fprintf(&b, "[%s] live: open=%.2f close=%.2f change=%.2f%%\n",
			tf, view.Live.Open, view.Live.Close, view.Live.ChangePct())
	}
	return b.String()
}

func emaSummary(row indicator.Row) string {
	rel := "below"
	if row.Close > row.EMAFast && row.Close > row.EMASlow {
		rel = "above"
	} else if row.Close > row.EMAFast || row.Close > row.EMASlow {
		rel = "between"
	}
	return fmt.Sprintf("(fast=%.2f slow=%.2f price %s)", row.EMAFast, row.EMASlow, rel)
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripCodeFence removes a markdown code block wrapper if present
func stripCodeFence(reply string) string {
	reply = strings.TrimSpace(reply)
	if m := codeFenceRe.FindStringSubmatch(reply); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return reply
}

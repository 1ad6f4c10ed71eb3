package store

import (
	"context"
	"time"
)

// CycleRecord is the persisted summary of one decision cycle. Records are
// append-only: a cycle is written once, after its outcome is known, and
// never updated.
type CycleRecord struct {
	CycleID        string    `json:"cycle_id"`
	Symbol         string    `json:"symbol"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Outcome        string    `json:"outcome"`
	Action         string    `json:"action"`
	Confidence     float64   `json:"confidence"`
	WeightedScore  float64   `json:"weighted_score"`
	Regime         string    `json:"regime"`
	Alignment      string    `json:"alignment"`
	Reason         string    `json:"reason"`
	SentimentScore float64   `json:"sentiment_score"`
	FundingRate    float64   `json:"funding_rate"`
	RiskLevel      string    `json:"risk_level,omitempty"`
	BlockedReason  string    `json:"blocked_reason,omitempty"`
	ErrorStage     string    `json:"error_stage,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	EntryPrice     float64   `json:"entry_price,omitempty"`
	Quantity       float64   `json:"quantity,omitempty"`
	Leverage       int       `json:"leverage,omitempty"`
}

// Sink persists cycle records. Persistence failures are logged by callers
// and never fail the cycle itself.
type Sink interface {
	SaveCycle(ctx context.Context, rec *CycleRecord) error
	RecentCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error)
	Close()
}

// NoopSink discards everything; used when persistence is disabled
type NoopSink struct{}

func (NoopSink) SaveCycle(context.Context, *CycleRecord) error { return nil }

func (NoopSink) RecentCycles(context.Context, string, int) ([]CycleRecord, error) {
	return nil, nil
}

func (NoopSink) Close() {}

// MultiSink writes to several sinks, returning the first error after all
// sinks were attempted. Reads come from the first sink.
type MultiSink []Sink

func (m MultiSink) SaveCycle(ctx context.Context, rec *CycleRecord) error {
	var firstErr error
	for _, s := range m {
		if err := s.SaveCycle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) RecentCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].RecentCycles(ctx, symbol, limit)
}

func (m MultiSink) Close() {
	for _, s := range m {
		s.Close()
	}
}

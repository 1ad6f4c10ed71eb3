package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"futures-quant-bot/internal/logging"
)

const cycleSchema = `
CREATE TABLE IF NOT EXISTS decision_cycles (
	id             BIGSERIAL PRIMARY KEY,
	cycle_id       TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	outcome        TEXT NOT NULL,
	action         TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	weighted_score DOUBLE PRECISION NOT NULL,
	regime         TEXT NOT NULL DEFAULT '',
	alignment      TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	funding_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_level     TEXT NOT NULL DEFAULT '',
	blocked_reason TEXT NOT NULL DEFAULT '',
	error_stage    TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	entry_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
	quantity       DOUBLE PRECISION NOT NULL DEFAULT 0,
	leverage       INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_decision_cycles_symbol_time
	ON decision_cycles (symbol, started_at DESC);
`

// PostgresStore persists cycle records in an append-only table
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewPostgresStore connects, verifies the connection, and ensures the
// schema exists
func NewPostgresStore(ctx context.Context, dsn string, log *logging.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	poolCfg.MaxConns = 5
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, cycleSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	log.WithComponent("store.postgres").Info("cycle store ready")
	return &PostgresStore{pool: pool, log: log.WithComponent("store.postgres")}, nil
}

// SaveCycle appends one cycle record
func (s *PostgresStore) SaveCycle(ctx context.Context, rec *CycleRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decision_cycles (
			cycle_id, symbol, started_at, finished_at, outcome, action,
			confidence, weighted_score, regime, alignment, reason,
			sentiment_score, funding_rate,
			risk_level, blocked_reason, error_stage, error_message,
			entry_price, quantity, leverage
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		rec.CycleID, rec.Symbol, rec.StartedAt, rec.FinishedAt, rec.Outcome, rec.Action,
		rec.Confidence, rec.WeightedScore, rec.Regime, rec.Alignment, rec.Reason,
		rec.SentimentScore, rec.FundingRate,
		rec.RiskLevel, rec.BlockedReason, rec.ErrorStage, rec.ErrorMessage,
		rec.EntryPrice, rec.Quantity, rec.Leverage)
	if err != nil {
		return fmt.Errorf("store: insert cycle %s: %w", rec.CycleID, err)
	}
	return nil
}

// RecentCycles returns the newest records for a symbol, newest first
func (s *PostgresStore) RecentCycles(ctx context.Context, symbol string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT cycle_id, symbol, started_at, finished_at, outcome, action,
			confidence, weighted_score, regime, alignment, reason,
			sentiment_score, funding_rate,
			risk_level, blocked_reason, error_stage, error_message,
			entry_price, quantity, leverage
		FROM decision_cycles
		WHERE symbol = $1
		ORDER BY started_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		if err := rows.Scan(
			&rec.CycleID, &rec.Symbol, &rec.StartedAt, &rec.FinishedAt, &rec.Outcome, &rec.Action,
			&rec.Confidence, &rec.WeightedScore, &rec.Regime, &rec.Alignment, &rec.Reason,
			&rec.SentimentScore, &rec.FundingRate,
			&rec.RiskLevel, &rec.BlockedReason, &rec.ErrorStage, &rec.ErrorMessage,
			&rec.EntryPrice, &rec.Quantity, &rec.Leverage); err != nil {
			return nil, fmt.Errorf("store: scan cycle: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

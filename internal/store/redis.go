package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"futures-quant-bot/internal/logging"
)

const (
	latestCycleKeyPrefix = "bot:cycle:latest:"
	latestCycleTTL       = 24 * time.Hour
)

// RedisMirror keeps the latest cycle per symbol in Redis so dashboards can
// read bot state without touching Postgres. It is a cache, not a system of
// record: reads of history always return empty.
type RedisMirror struct {
	client *redis.Client
	log    *logging.Logger
}

// NewRedisMirror connects and verifies the connection
func NewRedisMirror(ctx context.Context, addr, password string, db int, log *logging.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &RedisMirror{client: client, log: log.WithComponent("store.redis")}, nil
}

// SaveCycle overwrites the symbol's latest-cycle key
func (m *RedisMirror) SaveCycle(ctx context.Context, rec *CycleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal cycle %s: %w", rec.CycleID, err)
	}
	if err := m.client.Set(ctx, latestCycleKeyPrefix+rec.Symbol, data, latestCycleTTL).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

// LatestCycle returns the symbol's most recent cycle, or nil when absent
func (m *RedisMirror) LatestCycle(ctx context.Context, symbol string) (*CycleRecord, error) {
	data, err := m.client.Get(ctx, latestCycleKeyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get: %w", err)
	}
	var rec CycleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: unmarshal cycle: %w", err)
	}
	return &rec, nil
}

// RecentCycles is not served from the mirror
func (m *RedisMirror) RecentCycles(context.Context, string, int) ([]CycleRecord, error) {
	return nil, nil
}

// Close releases the client
func (m *RedisMirror) Close() {
	m.client.Close()
}

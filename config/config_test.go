package config

import (
	"math"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration failed validation: %v", err)
	}
}

func TestVoteWeightsSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	sum := 0.0
	for _, w := range cfg.VoteConfig.Weights() {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("default vote weights sum to %.9f, want 1.0", sum)
	}
}

func TestVoteConfigRejectsBadWeightSum(t *testing.T) {
	v := VoteConfig{
		TrendWeight1h:  0.35,
		TrendWeight15m: 0.25,
		TrendWeight5m:  0.15,
		OscWeight1h:    0.15,
		OscWeight15m:   0.12,
		OscWeight5m:    0.10, // Sum 1.12
	}
	if err := v.Validate(); err == nil {
		t.Error("expected validation error for weights summing to 1.12")
	}

	v.OscWeight5m = 0.08
	if err := v.Validate(); err != nil {
		t.Errorf("weights summing to 1.0 rejected: %v", err)
	}
}

func TestValidateRejectsBadStopBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RiskConfig.MinStopLossPct = 0.05
	cfg.RiskConfig.MaxStopLossPct = 0.01
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for max stop below min stop")
	}
}

func TestValidateRejectsWrongTimeframeCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradingConfig.Timeframes = []string{"5m", "15m"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for two timeframes")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "test-key")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExchangeConfig.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want env override", cfg.ExchangeConfig.APIKey)
	}
	if !cfg.TradingConfig.DryRun {
		t.Error("DRY_RUN=true not applied")
	}
	if cfg.LoggingConfig.Level != "DEBUG" {
		t.Errorf("Level = %q, want DEBUG", cfg.LoggingConfig.Level)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradingConfig.CycleInterval = 300
	cfg.TradingConfig.FetchTimeout = 20
	if got := cfg.TradingConfig.CycleIntervalDuration(); got != 5*time.Minute {
		t.Errorf("CycleIntervalDuration = %v, want 5m", got)
	}
	if got := cfg.TradingConfig.FetchTimeoutDuration(); got != 20*time.Second {
		t.Errorf("FetchTimeoutDuration = %v, want 20s", got)
	}
}

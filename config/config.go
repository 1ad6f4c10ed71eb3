package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the bot
type Config struct {
	ExchangeConfig ExchangeConfig `json:"exchange"`
	TradingConfig  TradingConfig  `json:"trading"`
	VoteConfig     VoteConfig     `json:"vote"`
	RiskConfig     RiskConfig     `json:"risk"`
	OracleConfig   OracleConfig   `json:"oracle"`
	BreakerConfig  BreakerConfig  `json:"circuit_breaker"`
	BacktestConfig BacktestConfig `json:"backtest"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	ServerConfig   ServerConfig   `json:"server"`
}

// ExchangeConfig holds exchange connectivity settings
type ExchangeConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	WSBaseURL string `json:"ws_base_url"` // Kline stream endpoint
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // Use the simulated client instead of the real exchange
}

// TradingConfig holds decision-cycle settings
type TradingConfig struct {
	Symbols         []string `json:"symbols"`
	CycleInterval   int      `json:"cycle_interval"`    // Seconds between decision cycles
	Timeframes      []string `json:"timeframes"`        // Ordered short to long, e.g. 5m,15m,1h
	KlineLimit      int      `json:"kline_limit"`       // Closed bars fetched per timeframe
	MaxSkewSeconds  int      `json:"max_skew_seconds"`  // Cross-timeframe fetch skew tolerance
	FetchTimeout    int      `json:"fetch_timeout"`     // Seconds before a data fetch degrades the cycle
	ExecuteTimeout  int      `json:"execute_timeout"`   // Seconds before order placement is abandoned
	DryRun          bool     `json:"dry_run"`           // Run the full pipeline without placing orders
	MinConfidence   float64  `json:"min_confidence"`    // Votes below this never reach execution (0-1)
	PositionSizePct float64  `json:"position_size_pct"` // Fraction of equity per position (0-1)
	DefaultLeverage int      `json:"default_leverage"`
}

// VoteConfig holds weighted voting engine settings.
// Weights must sum to 1.0; Validate enforces it at startup.
type VoteConfig struct {
	TrendWeight1h  float64 `json:"trend_weight_1h"`
	TrendWeight15m float64 `json:"trend_weight_15m"`
	TrendWeight5m  float64 `json:"trend_weight_5m"`
	OscWeight1h    float64 `json:"osc_weight_1h"`
	OscWeight15m   float64 `json:"osc_weight_15m"`
	OscWeight5m    float64 `json:"osc_weight_5m"`
}

// RiskConfig holds hard limits enforced by the risk audit
type RiskConfig struct {
	MaxLeverage        int     `json:"max_leverage"`
	MaxPositionPct     float64 `json:"max_position_pct"`      // Max fraction of equity per position (0-1)
	MinStopLossPct     float64 `json:"min_stop_loss_pct"`     // Min stop distance as fraction of entry (0-1)
	MaxStopLossPct     float64 `json:"max_stop_loss_pct"`     // Max stop distance as fraction of entry (0-1)
	DefaultStopLossPct float64 `json:"default_stop_loss_pct"` // Used when recomputing an inverted stop
	TakeProfitRatio    float64 `json:"take_profit_ratio"`     // Take-profit distance as a multiple of stop distance
	MaxRiskPerTrade    float64 `json:"max_risk_per_trade"`    // Max fraction of equity at risk per trade (0-1)
	MarginBuffer       float64 `json:"margin_buffer"`         // Safety fraction held back from available balance
	MaxFundingRate     float64 `json:"max_funding_rate"`      // Entries joining a crowd beyond this 8h rate are vetoed; 0 disables
}

// OracleConfig holds the optional LLM decision oracle settings
type OracleConfig struct {
	Enabled     bool    `json:"enabled"`
	Provider    string  `json:"provider"` // "claude", "openai", or "deepseek"
	BaseURL     string  `json:"base_url"` // Overrides the provider's default endpoint
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"` // Seconds
}

// BreakerConfig holds trading circuit breaker limits
type BreakerConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"` // Fraction of equity (0-1)
	MaxTradesPerHour     int     `json:"max_trades_per_hour"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
}

// BacktestConfig holds replay engine settings
type BacktestConfig struct {
	InitialCapital float64 `json:"initial_capital"`
	Commission     float64 `json:"commission"` // Per-side fee as a fraction of notional
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"` // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"`
}

// DatabaseConfig holds the Postgres audit-log settings
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// RedisConfig holds the latest-cycle mirror settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ServerConfig holds the status API settings
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfig returns a configuration with safe defaults
func DefaultConfig() *Config {
	return &Config{
		ExchangeConfig: ExchangeConfig{
			BaseURL:   "https://fapi.binance.com",
			WSBaseURL: "wss://fstream.binance.com",
			MockMode:  true,
		},
		TradingConfig: TradingConfig{
			Symbols:         []string{"BTCUSDT"},
			CycleInterval:   300,
			Timeframes:      []string{"5m", "15m", "1h"},
			KlineLimit:      100,
			MaxSkewSeconds:  30,
			FetchTimeout:    15,
			ExecuteTimeout:  20,
			DryRun:          true,
			MinConfidence:   0.55,
			PositionSizePct: 0.10,
			DefaultLeverage: 5,
		},
		VoteConfig: VoteConfig{
			TrendWeight1h:  0.35,
			TrendWeight15m: 0.25,
			TrendWeight5m:  0.15,
			OscWeight1h:    0.15,
			OscWeight15m:   0.12,
			OscWeight5m:    0.08,
		},
		RiskConfig: RiskConfig{
			MaxLeverage:        20,
			MaxPositionPct:     0.25,
			MinStopLossPct:     0.005,
			MaxStopLossPct:     0.05,
			DefaultStopLossPct: 0.02,
			TakeProfitRatio:    2.0,
			MaxRiskPerTrade:    0.02,
			MarginBuffer:       0.05,
			MaxFundingRate:     0.0005,
		},
		OracleConfig: OracleConfig{
			Provider:    "claude",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1024,
			Temperature: 0.3,
			Timeout:     30,
		},
		BreakerConfig: BreakerConfig{
			Enabled:              true,
			MaxConsecutiveLosses: 5,
			MaxDailyLossPct:      0.05,
			MaxTradesPerHour:     12,
			CooldownMinutes:      30,
		},
		BacktestConfig: BacktestConfig{
			InitialCapital: 10000,
			Commission:     0.0004,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		RedisConfig: RedisConfig{
			Addr: "localhost:6379",
		},
		ServerConfig: ServerConfig{
			Addr: ":8085",
		},
	}
}

// Load reads configuration from a JSON file, then applies environment overrides.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	// .env is optional; ignore absence
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.ExchangeConfig.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_SECRET_KEY"); v != "" {
		c.ExchangeConfig.SecretKey = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		c.OracleConfig.APIKey = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.DatabaseConfig.DSN = v
		c.DatabaseConfig.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisConfig.Addr = v
		c.RedisConfig.Enabled = true
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TradingConfig.DryRun = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LoggingConfig.Level = v
	}
}

// Validate checks invariants that would otherwise surface deep in the pipeline
func (c *Config) Validate() error {
	if err := c.VoteConfig.Validate(); err != nil {
		return err
	}
	if len(c.TradingConfig.Timeframes) != 3 {
		return fmt.Errorf("config: expected 3 timeframes, got %d", len(c.TradingConfig.Timeframes))
	}
	if c.TradingConfig.CycleInterval <= 0 {
		return fmt.Errorf("config: cycle_interval must be positive")
	}
	if c.RiskConfig.MinStopLossPct <= 0 || c.RiskConfig.MaxStopLossPct <= c.RiskConfig.MinStopLossPct {
		return fmt.Errorf("config: stop-loss bounds invalid (min=%.4f max=%.4f)",
			c.RiskConfig.MinStopLossPct, c.RiskConfig.MaxStopLossPct)
	}
	if c.RiskConfig.MaxLeverage < 1 {
		return fmt.Errorf("config: max_leverage must be at least 1")
	}
	return nil
}

// Validate checks the six vote weights sum to 1.0
func (v *VoteConfig) Validate() error {
	sum := v.TrendWeight1h + v.TrendWeight15m + v.TrendWeight5m +
		v.OscWeight1h + v.OscWeight15m + v.OscWeight5m
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("config: vote weights must sum to 1.0, got %.9f", sum)
	}
	return nil
}

// Weights returns the six weights keyed by timeframe and signal kind
func (v *VoteConfig) Weights() map[string]float64 {
	return map[string]float64{
		"trend_1h":  v.TrendWeight1h,
		"trend_15m": v.TrendWeight15m,
		"trend_5m":  v.TrendWeight5m,
		"osc_1h":    v.OscWeight1h,
		"osc_15m":   v.OscWeight15m,
		"osc_5m":    v.OscWeight5m,
	}
}

// CycleIntervalDuration returns the cycle interval as a duration
func (t *TradingConfig) CycleIntervalDuration() time.Duration {
	return time.Duration(t.CycleInterval) * time.Second
}

// FetchTimeoutDuration returns the data-fetch timeout as a duration
func (t *TradingConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(t.FetchTimeout) * time.Second
}

// ExecuteTimeoutDuration returns the order-placement timeout as a duration
func (t *TradingConfig) ExecuteTimeoutDuration() time.Duration {
	return time.Duration(t.ExecuteTimeout) * time.Second
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/api"
	"futures-quant-bot/internal/bot"
	"futures-quant-bot/internal/events"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/oracle"
	"futures-quant-bot/internal/store"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)
	logger.Info("starting", "symbols", cfg.TradingConfig.Symbols, "mock", cfg.ExchangeConfig.MockMode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()

	// Persistence: Postgres is the record, Redis mirrors the latest cycle.
	// Either may be disabled; both failing to connect is fatal only when
	// enabled.
	var sinks store.MultiSink
	if cfg.DatabaseConfig.Enabled {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseConfig.DSN, logger)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}
	if cfg.RedisConfig.Enabled {
		mirror, err := store.NewRedisMirror(ctx, cfg.RedisConfig.Addr, cfg.RedisConfig.Password, cfg.RedisConfig.DB, logger)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}
	var sink store.Sink = store.NoopSink{}
	if len(sinks) > 0 {
		sink = sinks
	}

	var client exchange.Adapter
	if cfg.ExchangeConfig.MockMode {
		client = exchange.NewMockClient(cfg.BacktestConfig.InitialCapital)
		logger.Info("using simulated exchange client")
	} else {
		tracker := exchange.NewOrderTracker(zerolog.New(os.Stdout).With().Timestamp().Logger())
		client = exchange.NewBinanceClient(cfg.ExchangeConfig.APIKey, cfg.ExchangeConfig.SecretKey,
			cfg.ExchangeConfig.BaseURL, tracker)
	}

	var orc *oracle.Oracle
	if cfg.OracleConfig.Enabled {
		orc = oracle.New(oracle.NewClient(oracle.ClientConfig{
			Provider:    oracle.Provider(cfg.OracleConfig.Provider),
			BaseURL:     cfg.OracleConfig.BaseURL,
			APIKey:      cfg.OracleConfig.APIKey,
			Model:       cfg.OracleConfig.Model,
			MaxTokens:   cfg.OracleConfig.MaxTokens,
			Temperature: cfg.OracleConfig.Temperature,
			Timeout:     time.Duration(cfg.OracleConfig.Timeout) * time.Second,
		}), logger)
		logger.Info("oracle enabled", "provider", cfg.OracleConfig.Provider, "model", cfg.OracleConfig.Model)
	}

	engine := bot.New(cfg, client, bus, orc, sink, logger)

	if cfg.ServerConfig.Enabled {
		server := api.NewServer(cfg.ServerConfig, sink, engine.Breaker(), logger)
		engine.AddObserver(server)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("status API stopped", "error", err)
			}
		}()
	}

	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
}

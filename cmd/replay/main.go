package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/rs/zerolog"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/exchange"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/replay"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to replay")
	bars := flag.Int("bars", 1500, "number of 5m bars to replay")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     "stderr",
		JSONFormat: false,
	})

	var source exchange.Adapter
	if cfg.ExchangeConfig.MockMode {
		source = exchange.NewMockClient(cfg.BacktestConfig.InitialCapital)
	} else {
		tracker := exchange.NewOrderTracker(zerolog.New(os.Stderr).With().Timestamp().Logger())
		source = exchange.NewBinanceClient(cfg.ExchangeConfig.APIKey, cfg.ExchangeConfig.SecretKey,
			cfg.ExchangeConfig.BaseURL, tracker)
	}

	history, err := source.GetKlines(context.Background(), *symbol, "5m", *bars)
	if err != nil {
		log.Fatalf("Failed to fetch history: %v", err)
	}

	engine := replay.NewEngine(cfg.BacktestConfig, cfg.RiskConfig, cfg.TradingConfig, cfg.VoteConfig, logger)
	result, err := engine.Run(*symbol, history)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	printReport(*symbol, len(history), cfg.BacktestConfig.InitialCapital, result)
}

func printReport(symbol string, bars int, initialCapital float64, r *replay.Result) {
	fmt.Printf("Replay report: %s over %d 5m bars\n", symbol, bars)
	fmt.Printf("  Initial capital: %.2f\n", initialCapital)
	fmt.Printf("  Final equity:    %.2f\n", r.FinalEquity)
	fmt.Printf("  Net profit:      %.2f\n", r.NetProfit)
	fmt.Printf("  Trades:          %d (won %d, lost %d)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Printf("  Win rate:        %.1f%%\n", r.WinRate*100)
	if math.IsInf(r.ProfitFactor, 1) {
		fmt.Printf("  Profit factor:   inf\n")
	} else {
		fmt.Printf("  Profit factor:   %.2f\n", r.ProfitFactor)
	}
	fmt.Printf("  Max drawdown:    %.1f%%\n", r.MaxDrawdown*100)

	for i, trade := range r.Trades {
		fmt.Printf("  #%d %s %s entry=%.2f exit=%.2f qty=%.4f pnl=%.2f (%s)\n",
			i+1, trade.EntryTime.Format("2006-01-02 15:04"), trade.Side,
			trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.ProfitLoss, trade.ExitReason)
	}
}

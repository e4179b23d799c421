package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"dcaAlertBot/config"
	"dcaAlertBot/internal/adapters/binanceclient"
	"dcaAlertBot/internal/adapters/logger"
	"dcaAlertBot/internal/adapters/sqlite"
	"dcaAlertBot/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, Console: cfg.LogFormat == "console"})
	ctx := context.Background()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UseTestnet:        cfg.IsTestnet,
		BaseURL:           cfg.BaseURL,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetryElapsed:   cfg.FetchMaxRetry,
		Location:          cfg.Location,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 4. Optional archive
	var repo *sqlite.Repository
	if cfg.ArchiveDBPath != "" {
		repo, err = sqlite.NewRepository(sqlite.Config{DBPath: cfg.ArchiveDBPath, Logger: appLogger, Location: cfg.Location})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize kline archive: %v", err)
		}
		defer repo.Close()
	}

	if err := os.MkdirAll("data", 0755); err != nil {
		log.Fatalf("FATAL: Failed to create data directory: %v", err)
	}

	stamp := time.Now().Format("20060102")
	for _, symbol := range cfg.Symbols {
		fmt.Printf("Fetching %d klines for %s %s...\n", cfg.KlineLimit, symbol, cfg.Interval)
		klines, err := binanceClient.GetKlines(ctx, symbol, cfg.Interval, cfg.KlineLimit)
		if err != nil {
			appLogger.Error(ctx, err, "Error fetching klines", map[string]interface{}{"symbol": symbol})
			continue
		}
		appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"symbol": symbol, "count": len(klines)})

		filename := fmt.Sprintf("data/%s_%s_%s.csv", symbol, cfg.Interval, stamp)
		if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"symbol": symbol})
			continue
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})

		if repo != nil {
			if err := repo.SaveKlines(ctx, klines); err != nil {
				appLogger.Error(ctx, err, "Error archiving klines", map[string]interface{}{"symbol": symbol})
			}
		}
	}
}

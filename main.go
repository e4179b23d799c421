package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"dcaAlertBot/config"
	"dcaAlertBot/internal/adapters/binanceclient"
	"dcaAlertBot/internal/adapters/logger"
	"dcaAlertBot/internal/adapters/sqlite"
	"dcaAlertBot/internal/adapters/telegram"
	"dcaAlertBot/internal/alert"
	"dcaAlertBot/internal/app"
	"dcaAlertBot/internal/ports"
	"dcaAlertBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, Console: cfg.LogFormat == "console"})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

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
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 4. Initialize optional kline archive (Database Adapter)
	var archive ports.KlineArchive
	if cfg.ArchiveDBPath != "" {
		repo, err := sqlite.NewRepository(sqlite.Config{
			DBPath:   cfg.ArchiveDBPath,
			Logger:   appLogger,
			Location: cfg.Location,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize kline archive")
			log.Fatalf("FATAL: Failed to initialize kline archive: %v", err) // Also log to stderr
		}
		defer func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing kline archive")
			}
		}()
		archive = repo
		appLogger.Info(context.Background(), "Kline archive initialized", map[string]interface{}{"path": cfg.ArchiveDBPath})
	}

	// 5. Initialize Strategy
	strat, err := strategy.New(strategy.Config{
		RSIBuyThreshold:  cfg.RSIBuyThreshold,
		RSISellThreshold: cfg.RSISellThreshold,
		DCALevels:        cfg.DCALevels,
		DCAPercentage:    cfg.DCAPercentage,
		MinHistory:       cfg.MinHistory,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize alert strategy")
		log.Fatalf("FATAL: Failed to initialize alert strategy: %v", err)
	}
	appLogger.Info(context.Background(), "Alert strategy initialized")

	// 6. Initialize Notifier (Telegram Adapter)
	notifier, err := telegram.New(telegram.Config{
		BotToken: cfg.TelegramBotToken,
		ChatID:   cfg.TelegramChatID,
		Location: cfg.Location,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Telegram notifier")
		log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
	}

	// 7. Initialize Application Service
	gate := alert.NewGate(alert.Config{
		BuyCooldown:  cfg.BuyAlertCooldown,
		SellCooldown: cfg.SellAlertCooldown,
	})
	alertService, err := app.NewAlertService(cfg, appLogger, binanceClient, strat, gate, notifier, archive)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize alert service")
		log.Fatalf("FATAL: Failed to initialize alert service: %v", err)
	}
	appLogger.Info(context.Background(), "Alert service initialized")

	// 8. Start the Service
	// Use context.Background() as the base context for the application run
	if err := alertService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Alert service exited with error")
		log.Fatalf("FATAL: Alert service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

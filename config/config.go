package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dcaAlertBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API (klines are public, keys are optional)
	APIKey    string
	SecretKey string
	IsTestnet bool
	BaseURL   string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string

	// Market data
	Symbols    []string
	Interval   string
	KlineLimit int

	// Alert rule
	RSIBuyThreshold  float64 // e.g., 30.0
	RSISellThreshold float64 // e.g., 80.0
	DCALevels        int     // e.g., 3
	DCAPercentage    float64 // e.g., 5.0 for 5% between levels
	MinHistory       int     // Klines required before any decision

	// Cooldowns
	BuyAlertCooldown  time.Duration
	SellAlertCooldown time.Duration

	// Scheduling
	PollInterval     time.Duration
	RecoveryInterval time.Duration

	// Display
	DisplayTimezone string
	Location        *time.Location

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "json" or "console"

	// Connection Settings
	RequestsPerSecond float64
	FetchMaxRetry     time.Duration

	// Optional kline archive, disabled when empty
	ArchiveDBPath string

	// Source YAML file, if any
	ConfigFile string
}

// Default values.
const (
	DefaultSymbols         = "BTCUSDT,PAXGUSDT"
	DefaultInterval        = "4h"
	DefaultKlineLimit      = 100
	DefaultDisplayTimezone = "Asia/Jakarta"
	displayFallbackOffset  = 7 * 60 * 60
)

// validIntervals are the kline intervals the Binance spot API accepts.
var validIntervals = map[string]bool{
	"1s": true, "1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// LoadConfig loads configuration from environment variables (.env file).
// When CONFIG_FILE names a YAML file its keys are used for anything the
// environment leaves unset.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readYAMLFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	cfg, err := src.load()
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = os.Getenv("CONFIG_FILE")
	return cfg, nil
}

func (s source) load() (*Config, error) {
	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = s.getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = s.getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet, err = s.getEnvAsBoolRequired("IS_TESTNET", false)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid IS_TESTNET: %v", err))
	}
	cfg.BaseURL = s.getEnv("BINANCE_BASE_URL", "")

	// Telegram
	cfg.TelegramBotToken = s.getEnv("TELEGRAM_BOT_TOKEN", "")
	if cfg.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN must be set")
	}
	cfg.TelegramChatID = s.getEnv("TELEGRAM_CHAT_ID", "")
	if cfg.TelegramChatID == "" {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set")
	}

	// Market data
	cfg.Symbols = parseSymbols(s.getEnv("SYMBOLS", DefaultSymbols))
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	cfg.Interval = s.getEnv("INTERVAL", DefaultInterval)
	if !validIntervals[cfg.Interval] {
		errs = append(errs, fmt.Sprintf("INTERVAL %q is not a Binance kline interval", cfg.Interval))
	}

	// Alert rule
	cfg.RSIBuyThreshold, err = s.getEnvAsFloatRequired("RSI_BUY_THRESHOLD", 30.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_BUY_THRESHOLD: %v", err))
	}
	cfg.RSISellThreshold, err = s.getEnvAsFloatRequired("RSI_SELL_THRESHOLD", 80.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_SELL_THRESHOLD: %v", err))
	}
	if cfg.RSISellThreshold <= cfg.RSIBuyThreshold || cfg.RSISellThreshold > 100 || cfg.RSIBuyThreshold < 0 {
		errs = append(errs, "invalid RSI thresholds (sell must be > buy, between 0-100)")
	}

	cfg.DCALevels, err = s.getEnvAsIntRequired("DCA_LEVELS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DCA_LEVELS: %v", err))
	} else if cfg.DCALevels <= 0 {
		errs = append(errs, "DCA_LEVELS must be positive")
	}
	cfg.DCAPercentage, err = s.getEnvAsFloatRequired("DCA_PERCENTAGE", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DCA_PERCENTAGE: %v", err))
	} else if cfg.DCAPercentage < 0 {
		errs = append(errs, "DCA_PERCENTAGE cannot be negative")
	} else if cfg.DCALevels > 0 && cfg.DCAPercentage*float64(cfg.DCALevels-1) >= 100 {
		errs = append(errs, "DCA_PERCENTAGE times (DCA_LEVELS-1) must stay below 100")
	}

	cfg.MinHistory, err = s.getEnvAsIntRequired("MIN_HISTORY", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_HISTORY: %v", err))
	} else if cfg.MinHistory < 50 {
		errs = append(errs, "MIN_HISTORY must be at least 50 (EMA50 warm-up)")
	}
	cfg.KlineLimit, err = s.getEnvAsIntRequired("KLINE_LIMIT", DefaultKlineLimit)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid KLINE_LIMIT: %v", err))
	} else if cfg.KlineLimit < cfg.MinHistory || cfg.KlineLimit > 1000 {
		errs = append(errs, fmt.Sprintf("KLINE_LIMIT must be between MIN_HISTORY (%d) and 1000", cfg.MinHistory))
	}

	// Cooldowns
	cfg.BuyAlertCooldown, err = s.getEnvAsSeconds("BUY_ALERT_COOLDOWN_SECONDS", 3600)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.SellAlertCooldown, err = s.getEnvAsSeconds("SELL_ALERT_COOLDOWN_SECONDS", 3600)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Scheduling
	cfg.PollInterval, err = s.getEnvAsSeconds("POLL_INTERVAL_SECONDS", 300)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.RecoveryInterval, err = s.getEnvAsSeconds("RECOVERY_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Display
	cfg.DisplayTimezone = s.getEnv("DISPLAY_TIMEZONE", DefaultDisplayTimezone)
	cfg.Location = LoadLocation(cfg.DisplayTimezone)

	// Logging
	cfg.LogLevel = logger.ParseLevel(s.getEnv("LOG_LEVEL", "INFO")) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(s.getEnv("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}

	// Connection Settings
	cfg.RequestsPerSecond, err = s.getEnvAsFloatRequired("REQUESTS_PER_SECOND", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}
	cfg.FetchMaxRetry, err = s.getEnvAsSeconds("FETCH_MAX_RETRY_SECONDS", 30)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Archive
	cfg.ArchiveDBPath = s.getEnv("ARCHIVE_DB_PATH", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// LoadLocation resolves name to a timezone. When the zone database cannot
// resolve it, a fixed UTC+7 zone is returned.
func LoadLocation(name string) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("UTC+7", displayFallbackOffset)
}

// parseSymbols splits a comma separated list, upper-cases entries and drops
// blanks and duplicates while keeping the configured order.
func parseSymbols(raw string) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols
}

// --- YAML file ---

// readYAMLFile reads a flat mapping of configuration keys. Lists are joined
// with commas so "SYMBOLS: [BTCUSDT, ETHUSDT]" works like the env form.
func readYAMLFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, value := range raw {
		switch v := value.(type) {
		case nil:
		case []interface{}:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		case map[string]interface{}:
			return nil, fmt.Errorf("parse config file %s: key %s must be a scalar or a list", path, k)
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// --- Env Var Helpers ---

// source resolves keys from the environment first, then from the YAML file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getEnv(key, defaultValue string) string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (s source) getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := s.lookup(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func (s source) getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func (s source) getEnvAsBoolRequired(key string, defaultValue bool) (bool, error) {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return false, fmt.Errorf("invalid boolean value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsSeconds reads a positive whole number of seconds.
func (s source) getEnvAsSeconds(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := s.getEnvAsIntRequired(key, defaultSeconds)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(seconds) * time.Second, nil
}

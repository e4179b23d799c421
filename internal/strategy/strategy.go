package strategy

import (
	"context"
	"fmt"

	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"
	"dcaAlertBot/internal/strategy/indicators"
)

// Config holds parameters for the DCA alert rule.
type Config struct {
	RSIBuyThreshold  float64 // e.g., 30.0
	RSISellThreshold float64 // e.g., 80.0
	DCALevels        int     // e.g., 3
	DCAPercentage    float64 // Step between ladder levels in percent, e.g., 5.0
	MinHistory       int     // Minimum klines before any decision; 0 selects the EMA50 warm-up
}

// DefaultConfig returns the rule parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		RSIBuyThreshold:  30,
		RSISellThreshold: 80,
		DCALevels:        3,
		DCAPercentage:    5.0,
		MinHistory:       indicators.DefaultMinHistory,
	}
}

// Strategy evaluates the buy/sell rule against the latest indicator snapshot.
type Strategy struct {
	cfg    Config
	engine *indicators.Engine
	logger ports.Logger
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.RSIBuyThreshold < 0 || cfg.RSISellThreshold > 100 || cfg.RSIBuyThreshold >= cfg.RSISellThreshold {
		return nil, fmt.Errorf("invalid RSI thresholds (buy must be < sell, between 0-100)")
	}
	if cfg.DCALevels <= 0 {
		return nil, fmt.Errorf("DCA levels must be positive")
	}
	if cfg.DCAPercentage < 0 || cfg.DCAPercentage*float64(cfg.DCALevels-1) >= 100 {
		return nil, fmt.Errorf("DCA percentage %.2f with %d levels would reach a non-positive price", cfg.DCAPercentage, cfg.DCALevels)
	}
	engine, err := indicators.NewEngine(cfg.MinHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to create indicator engine: %w", err)
	}
	return &Strategy{cfg: cfg, engine: engine, logger: logger}, nil
}

// RequiredDataPoints returns the minimum number of klines needed for the strategy calculations.
func (s *Strategy) RequiredDataPoints() int {
	return s.engine.MinHistory()
}

// Evaluate computes the indicators for klines and evaluates the latest snapshot.
// Insufficient history is returned as an error wrapping ports.ErrInsufficientData.
func (s *Strategy) Evaluate(ctx context.Context, klines []*domain.Kline) (domain.Decision, error) {
	snapshot, err := s.engine.Latest(ctx, klines)
	if err != nil {
		return domain.Decision{Kind: domain.SignalNone}, err
	}
	decision := s.EvaluateSnapshot(snapshot)

	fields := map[string]interface{}{
		"close":         snapshot.Close,
		"ema7":          snapshot.EMA7,
		"ema14":         snapshot.EMA14,
		"rsi":           snapshot.RSI,
		"volatilityPct": snapshot.VolatilityPct,
		"decision":      decision.Kind.String(),
	}
	if !snapshot.Ready() {
		s.logger.Warn(ctx, "Latest indicator snapshot has undefined values, no decision", fields)
	} else {
		s.logger.Debug(ctx, "Signal evaluated", fields)
	}
	return decision, nil
}

// EvaluateSnapshot applies the threshold rule to one snapshot.
// A snapshot with any undefined value never fires. Buy and sell are exclusive;
// buy is checked first.
func (s *Strategy) EvaluateSnapshot(snap domain.IndicatorSnapshot) domain.Decision {
	if !snap.Ready() {
		return domain.Decision{Kind: domain.SignalNone}
	}

	info := domain.PriceInfo{
		EntryPrice:    snap.Close,
		EMA7:          snap.EMA7,
		EMA14:         snap.EMA14,
		RSI:           snap.RSI,
		VolatilityPct: snap.VolatilityPct,
	}

	isBelowEMAs := snap.Close < snap.EMA7 && snap.Close < snap.EMA14
	isAboveEMAs := snap.Close > snap.EMA7 && snap.Close > snap.EMA14

	switch {
	case isBelowEMAs && snap.RSI < s.cfg.RSIBuyThreshold:
		info.DCALevels = DCALadder(snap.Close, s.cfg.DCALevels, s.cfg.DCAPercentage)
		return domain.Decision{Kind: domain.SignalBuy, Info: info}
	case isAboveEMAs && snap.RSI > s.cfg.RSISellThreshold:
		return domain.Decision{Kind: domain.SignalSell, Info: info}
	default:
		return domain.Decision{Kind: domain.SignalNone}
	}
}

// DCALadder returns levels prices starting at entry, each step percent of the
// entry price below the previous one: level i = entry * (1 - i*step/100).
func DCALadder(entry float64, levels int, step float64) []float64 {
	if levels <= 0 {
		return nil
	}
	ladder := make([]float64, levels)
	for i := range ladder {
		ladder[i] = entry * (1 - float64(i)*step/100)
	}
	return ladder
}

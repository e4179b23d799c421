package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dcaAlertBot/config"
	"dcaAlertBot/internal/adapters/logger"
	"dcaAlertBot/internal/alert"
	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"
)

// SymbolResult is the outcome of processing one symbol in a cycle.
type SymbolResult struct {
	Symbol     string
	Decision   domain.Decision
	Dispatched bool  // Cooldown consumed and delivery attempted
	Suppressed bool  // Decision fired but the gate held it back
	Err        error // Fetch, evaluation or delivery failure
}

// CycleReport aggregates the per-symbol results of one cycle.
type CycleReport struct {
	CycleID  string
	Started  time.Time
	Duration time.Duration
	Results  []SymbolResult
}

// Counts returns how many symbols were dispatched, suppressed and failed.
func (r CycleReport) Counts() (dispatched, suppressed, failed int) {
	for _, res := range r.Results {
		if res.Dispatched {
			dispatched++
		}
		if res.Suppressed {
			suppressed++
		}
		if res.Err != nil {
			failed++
		}
	}
	return dispatched, suppressed, failed
}

// AlertService polls market data, evaluates every symbol and sends alerts.
type AlertService struct {
	cfg      *config.Config
	logger   ports.Logger
	source   ports.MarketDataSource
	strategy ports.SignalEvaluator
	gate     *alert.Gate
	notifier ports.Notifier
	archive  ports.KlineArchive // Optional

	now func() time.Time
}

// NewAlertService creates a new application service instance.
// archive may be nil.
func NewAlertService(
	cfg *config.Config,
	logger ports.Logger,
	source ports.MarketDataSource,
	strat ports.SignalEvaluator,
	gate *alert.Gate,
	notifier ports.Notifier,
	archive ports.KlineArchive,
) (*AlertService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || source == nil || strat == nil || gate == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for AlertService")
	}

	// Validate config values needed by service
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols configured", ports.ErrConfigurationError)
	}
	if cfg.PollInterval <= 0 || cfg.RecoveryInterval <= 0 {
		return nil, fmt.Errorf("%w: poll and recovery intervals must be positive", ports.ErrConfigurationError)
	}
	if cfg.KlineLimit < strat.RequiredDataPoints() {
		return nil, fmt.Errorf("%w: kline limit %d is below the %d klines the strategy needs",
			ports.ErrConfigurationError, cfg.KlineLimit, strat.RequiredDataPoints())
	}

	return &AlertService{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		strategy: strat,
		gate:     gate,
		notifier: notifier,
		archive:  archive,
		now:      time.Now,
	}, nil
}

// Start runs the alert loop until SIGINT/SIGTERM or ctx cancellation.
func (s *AlertService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Alert Service...", map[string]interface{}{
		"symbols":  s.cfg.Symbols,
		"interval": s.cfg.Interval,
	})

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel() // Cancel the main context
		case <-ctx.Done():
		}
	}()

	// Connectivity check, a failure here is not fatal
	if err := s.source.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "Market data source ping failed, continuing", map[string]interface{}{"error": err.Error()})
	} else {
		s.logger.Info(ctx, "Market data source reachable")
	}

	err := s.Run(ctx)
	s.logger.Info(context.Background(), "Alert Service stopped.")
	return err
}

// Run executes cycles until ctx is cancelled. A healthy cycle is followed by
// the poll interval, a failed one by the recovery interval.
func (s *AlertService) Run(ctx context.Context) error {
	for {
		report, err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := s.cfg.PollInterval
		if err != nil {
			delay = s.cfg.RecoveryInterval
			s.logger.Error(ctx, err, "Alert cycle failed, waiting before retry", map[string]interface{}{
				"cycleID": report.CycleID,
				"retryIn": delay.String(),
			})
		} else {
			dispatched, suppressed, failed := report.Counts()
			s.logger.Info(ctx, "Alert cycle completed", map[string]interface{}{
				"cycleID":    report.CycleID,
				"symbols":    len(report.Results),
				"dispatched": dispatched,
				"suppressed": suppressed,
				"failed":     failed,
				"duration":   report.Duration.String(),
				"nextIn":     delay.String(),
			})
		}

		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunCycle processes every configured symbol once, in order. Per-symbol
// failures are recorded in the report and never stop the cycle. The returned
// error is non-nil only for cancellation or a failure of the cycle itself.
func (s *AlertService) RunCycle(ctx context.Context) (report CycleReport, err error) {
	report = CycleReport{CycleID: uuid.NewString(), Started: s.now()}
	ctx = logger.ContextWithFields(ctx, map[string]interface{}{"cycleID": report.CycleID})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ports.ErrLoop, r)
			s.logger.Error(ctx, err, "Recovered from panic in alert cycle")
		}
		report.Duration = s.now().Sub(report.Started)
	}()

	s.logger.Debug(ctx, "Alert cycle started", map[string]interface{}{"symbols": len(s.cfg.Symbols)})
	for _, symbol := range s.cfg.Symbols {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctxErr)
		}
		report.Results = append(report.Results, s.processSymbol(ctx, symbol))
	}
	return report, nil
}

// processSymbol runs fetch, evaluate, gate and notify for one symbol.
func (s *AlertService) processSymbol(ctx context.Context, symbol string) SymbolResult {
	ctx = logger.ContextWithFields(ctx, map[string]interface{}{"symbol": symbol})
	result := SymbolResult{Symbol: symbol, Decision: domain.Decision{Kind: domain.SignalNone}}

	klines, err := s.source.GetKlines(ctx, symbol, s.cfg.Interval, s.cfg.KlineLimit)
	if err != nil {
		result.Err = fmt.Errorf("fetch klines for %s failed: %w: %w", symbol, ports.ErrFetch, err)
		s.logger.Error(ctx, result.Err, "Failed to fetch klines, skipping symbol")
		return result
	}

	if s.archive != nil {
		if err := s.archive.SaveKlines(ctx, klines); err != nil {
			s.logger.Warn(ctx, "Failed to archive klines", map[string]interface{}{"error": err.Error()})
		}
	}

	decision, err := s.strategy.Evaluate(ctx, klines)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientData) {
			s.logger.Warn(ctx, "Not enough history to evaluate, no decision", map[string]interface{}{
				"klines":   len(klines),
				"required": s.strategy.RequiredDataPoints(),
			})
			return result
		}
		result.Err = fmt.Errorf("evaluate %s failed: %w", symbol, err)
		s.logger.Error(ctx, result.Err, "Failed to evaluate signal")
		return result
	}
	decision = decision.WithSymbol(symbol)
	result.Decision = decision

	direction, fired := decision.Kind.Direction()
	if !fired {
		s.logger.Debug(ctx, "No signal")
		return result
	}

	now := s.now()
	if !s.gate.ShouldFire(symbol, direction, now) {
		result.Suppressed = true
		fields := map[string]interface{}{"direction": string(direction)}
		if last, ok := s.gate.LastFired(symbol, direction); ok {
			fields["lastFired"] = last.Format(time.RFC3339)
			fields["cooldown"] = s.gate.Cooldown(direction).String()
		}
		s.logger.Info(ctx, "Signal suppressed by cooldown", fields)
		return result
	}

	// The cooldown is consumed before delivery; a failed send is not retried.
	s.gate.RecordFired(symbol, direction, now)
	result.Dispatched = true

	a := domain.Alert{Decision: decision, Interval: s.cfg.Interval, At: now}
	if err := s.notifier.Notify(ctx, a); err != nil {
		result.Err = fmt.Errorf("notify %s %s failed: %w: %w", symbol, direction, ports.ErrDelivery, err)
		s.logger.Error(ctx, result.Err, "Failed to deliver alert")
		return result
	}

	s.logger.Info(ctx, "Alert dispatched", map[string]interface{}{
		"direction": string(direction),
		"price":     decision.Info.EntryPrice,
		"rsi":       decision.Info.RSI,
	})
	return result
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcaAlertBot/config"
	"dcaAlertBot/internal/alert"
	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"
	"dcaAlertBot/internal/strategy"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSource struct {
	klines  map[string][]*domain.Kline
	errs    map[string]error
	pingErr error
	onGet   func(symbol string) // Runs before each fetch
	calls   []string
}

func (m *mockSource) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	m.calls = append(m.calls, symbol)
	if m.onGet != nil {
		m.onGet(symbol)
	}
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	return m.klines[symbol], nil
}

func (m *mockSource) Ping(ctx context.Context) error {
	return m.pingErr
}

type mockEvaluator struct {
	decisions map[string]domain.Decision
	errs      map[string]error
}

func (m *mockEvaluator) RequiredDataPoints() int {
	return 50
}

func (m *mockEvaluator) Evaluate(ctx context.Context, klines []*domain.Kline) (domain.Decision, error) {
	if len(klines) == 0 {
		return domain.Decision{}, fmt.Errorf("%w: need 50 klines, got 0", ports.ErrInsufficientData)
	}
	symbol := klines[0].Symbol
	if err := m.errs[symbol]; err != nil {
		return domain.Decision{}, err
	}
	return m.decisions[symbol], nil
}

type mockNotifier struct {
	alerts []domain.Alert // Every attempt, including failed ones
	err    error
}

func (m *mockNotifier) Notify(ctx context.Context, a domain.Alert) error {
	m.alerts = append(m.alerts, a)
	return m.err
}

type mockArchive struct {
	saved int
	err   error
}

func (m *mockArchive) SaveKlines(ctx context.Context, klines []*domain.Kline) error {
	if m.err != nil {
		return m.err
	}
	m.saved += len(klines)
	return nil
}

func (m *mockArchive) FindKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	return nil, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Symbols:          []string{"BTCUSDT", "PAXGUSDT"},
		Interval:         "4h",
		KlineLimit:       100,
		PollInterval:     300 * time.Second,
		RecoveryInterval: 60 * time.Second,
	}
}

func klinesFor(symbol string, closes ...float64) []*domain.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * 4 * time.Hour)
		out[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(4*time.Hour - time.Millisecond),
			Symbol:    symbol,
			Interval:  "4h",
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

// trend returns flat bars at 100 followed by moves bars changing by step each.
func trend(symbol string, moves int, step float64) []*domain.Kline {
	closes := make([]float64, 0, 50+moves)
	for i := 0; i < 50; i++ {
		closes = append(closes, 100)
	}
	for i := 1; i <= moves; i++ {
		closes = append(closes, 100+float64(i)*step)
	}
	return klinesFor(symbol, closes...)
}

func buyDecision() domain.Decision {
	return domain.Decision{Kind: domain.SignalBuy, Info: domain.PriceInfo{
		EntryPrice: 95, EMA7: 100, EMA14: 102, RSI: 25, VolatilityPct: 2,
		DCALevels: []float64{95, 90.25, 85.5},
	}}
}

func sellDecision() domain.Decision {
	return domain.Decision{Kind: domain.SignalSell, Info: domain.PriceInfo{
		EntryPrice: 2500, EMA7: 2400, EMA14: 2350, RSI: 85, VolatilityPct: 1,
	}}
}

type fixture struct {
	svc      *AlertService
	logger   *mockLogger
	source   *mockSource
	eval     *mockEvaluator
	gate     *alert.Gate
	notifier *mockNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T, cfg *config.Config, archive ports.KlineArchive) *fixture {
	t.Helper()
	f := &fixture{
		logger: &mockLogger{},
		source: &mockSource{
			klines: map[string][]*domain.Kline{
				"BTCUSDT":  klinesFor("BTCUSDT", 1, 2, 3),
				"PAXGUSDT": klinesFor("PAXGUSDT", 1, 2, 3),
			},
			errs: map[string]error{},
		},
		eval:     &mockEvaluator{decisions: map[string]domain.Decision{}, errs: map[string]error{}},
		gate:     alert.NewGate(alert.Config{}),
		notifier: &mockNotifier{},
		clock:    &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	svc, err := NewAlertService(cfg, f.logger, f.source, f.eval, f.gate, f.notifier, archive)
	require.NoError(t, err)
	svc.now = f.clock.Now
	f.svc = svc
	return f
}

// --- Tests ---

func TestNewAlertService_Validation(t *testing.T) {
	logger := &mockLogger{}
	source := &mockSource{}
	eval := &mockEvaluator{}
	gate := alert.NewGate(alert.Config{})
	notifier := &mockNotifier{}

	_, err := NewAlertService(nil, logger, source, eval, gate, notifier, nil)
	assert.Error(t, err)

	_, err = NewAlertService(testConfig(), logger, source, eval, gate, nil, nil)
	assert.Error(t, err)

	noSymbols := testConfig()
	noSymbols.Symbols = nil
	_, err = NewAlertService(noSymbols, logger, source, eval, gate, notifier, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	shortLimit := testConfig()
	shortLimit.KlineLimit = 49
	_, err = NewAlertService(shortLimit, logger, source, eval, gate, notifier, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	svc, err := NewAlertService(testConfig(), logger, source, eval, gate, notifier, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRunCycle_CooldownSuppressesRepeat(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.eval.decisions["BTCUSDT"] = buyDecision()
	ctx := context.Background()

	report, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.NotEmpty(t, report.CycleID)
	assert.True(t, report.Results[0].Dispatched)
	assert.False(t, report.Results[1].Decision.Fired())
	require.Len(t, f.notifier.alerts, 1)

	sent := f.notifier.alerts[0]
	assert.Equal(t, "BTCUSDT", sent.Decision.Info.Symbol)
	assert.Equal(t, "4h", sent.Interval)
	assert.Equal(t, f.clock.Now(), sent.At)

	// 30 minutes later the same buy is held back
	f.clock.Advance(30 * time.Minute)
	report, err = f.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Suppressed)
	assert.False(t, report.Results[0].Dispatched)
	assert.Len(t, f.notifier.alerts, 1)

	// Past the window it fires again
	f.clock.Advance(time.Hour)
	report, err = f.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Dispatched)
	assert.Len(t, f.notifier.alerts, 2)
}

func TestRunCycle_DirectionsAreGatedSeparately(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	f.eval.decisions["BTCUSDT"] = buyDecision()
	_, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.eval.decisions["BTCUSDT"] = sellDecision()
	report, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Dispatched)
	require.Len(t, f.notifier.alerts, 2)
	assert.Equal(t, domain.SignalSell, f.notifier.alerts[1].Decision.Kind)
}

func TestRunCycle_FetchFailureIsIsolated(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.source.errs["BTCUSDT"] = fmt.Errorf("GetKlines failed: %w", ports.ErrTimeout)
	f.eval.decisions["PAXGUSDT"] = sellDecision()

	report, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, []string{"BTCUSDT", "PAXGUSDT"}, f.source.calls)

	btc := report.Results[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.ErrorIs(t, btc.Err, ports.ErrFetch)
	assert.ErrorIs(t, btc.Err, ports.ErrTimeout)
	assert.False(t, btc.Dispatched)

	paxg := report.Results[1]
	assert.NoError(t, paxg.Err)
	assert.True(t, paxg.Dispatched)
	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "PAXGUSDT", f.notifier.alerts[0].Decision.Info.Symbol)

	dispatched, suppressed, failed := report.Counts()
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, 0, suppressed)
	assert.Equal(t, 1, failed)
}

func TestRunCycle_DeliveryFailureConsumesCooldown(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.eval.decisions["BTCUSDT"] = buyDecision()
	f.notifier.err = errors.New("telegram down")
	ctx := context.Background()

	report, err := f.svc.RunCycle(ctx)
	require.NoError(t, err)
	btc := report.Results[0]
	assert.True(t, btc.Dispatched)
	assert.ErrorIs(t, btc.Err, ports.ErrDelivery)

	last, ok := f.gate.LastFired("BTCUSDT", domain.Buy)
	require.True(t, ok)
	assert.Equal(t, f.clock.Now(), last)

	// No retry: the next cycle inside the window is suppressed
	f.notifier.err = nil
	f.clock.Advance(5 * time.Minute)
	report, err = f.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Suppressed)
	assert.Len(t, f.notifier.alerts, 1)
}

func TestRunCycle_InsufficientDataIsNoDecision(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.eval.errs["BTCUSDT"] = fmt.Errorf("%w: need 50 klines, got 3", ports.ErrInsufficientData)

	report, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	btc := report.Results[0]
	assert.NoError(t, btc.Err)
	assert.Equal(t, domain.SignalNone, btc.Decision.Kind)
	assert.Empty(t, f.notifier.alerts)
	assert.Contains(t, f.logger.warnMsgs, "Not enough history to evaluate, no decision")
}

func TestRunCycle_EvaluationErrorIsRecorded(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.eval.errs["BTCUSDT"] = errors.New("boom")
	f.eval.decisions["PAXGUSDT"] = buyDecision()

	report, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Error(t, report.Results[0].Err)
	assert.True(t, report.Results[1].Dispatched)
}

func TestRunCycle_ArchiveIsBestEffort(t *testing.T) {
	archive := &mockArchive{}
	f := newFixture(t, testConfig(), archive)

	_, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, archive.saved)

	archive.err = errors.New("disk full")
	f.eval.decisions["BTCUSDT"] = buyDecision()
	report, err := f.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NoError(t, report.Results[0].Err)
	assert.True(t, report.Results[0].Dispatched)
	assert.Contains(t, f.logger.warnMsgs, "Failed to archive klines")
}

func TestRunCycle_RecoversFromPanic(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.source.onGet = func(symbol string) {
		panic("unexpected state")
	}

	_, err := f.svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrLoop)
}

func TestRunCycle_CancelledContext(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.svc.RunCycle(ctx)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.Empty(t, report.Results)
	assert.Empty(t, f.source.calls)
}

func TestRunCycle_WithRealStrategy(t *testing.T) {
	cfg := testConfig()
	logger := &mockLogger{}
	strat, err := strategy.New(strategy.DefaultConfig(), logger)
	require.NoError(t, err)

	source := &mockSource{klines: map[string][]*domain.Kline{
		"BTCUSDT":  trend("BTCUSDT", 10, -2), // Steady decline
		"PAXGUSDT": trend("PAXGUSDT", 10, 2), // Steady rally
	}}
	notifier := &mockNotifier{}
	svc, err := NewAlertService(cfg, logger, source, strat, alert.NewGate(alert.Config{}), notifier, nil)
	require.NoError(t, err)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, domain.SignalBuy, report.Results[0].Decision.Kind)
	assert.Equal(t, domain.SignalSell, report.Results[1].Decision.Kind)

	require.Len(t, notifier.alerts, 2)
	buy := notifier.alerts[0].Decision.Info
	assert.Equal(t, "BTCUSDT", buy.Symbol)
	assert.Equal(t, 80.0, buy.EntryPrice)
	assert.InDeltaSlice(t, []float64{80, 76, 72}, buy.DCALevels, 1e-9)
	assert.Equal(t, 120.0, notifier.alerts[1].Decision.Info.EntryPrice)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	f := newFixture(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cycles := 0
	f.source.onGet = func(symbol string) {
		if symbol == "BTCUSDT" {
			cycles++
			if cycles == 3 {
				cancel()
			}
		}
	}

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, 3, cycles)
}

func TestRun_UsesRecoveryIntervalAfterFailure(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	cfg.RecoveryInterval = 5 * time.Millisecond
	f := newFixture(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	f.source.onGet = func(symbol string) {
		calls++
		if calls == 1 {
			panic("first cycle fails")
		}
		cancel()
	}

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not retry after the recovery interval")
	}
	assert.Equal(t, 2, calls)
	assert.Contains(t, f.logger.errorMsgs, "Recovered from panic in alert cycle")
}

func TestStart_PingFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	f := newFixture(t, cfg, nil)
	f.source.pingErr = errors.New("unreachable")

	ctx, cancel := context.WithCancel(context.Background())
	f.source.onGet = func(symbol string) {
		if symbol == "PAXGUSDT" {
			cancel()
		}
	}

	err := f.svc.Start(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "PAXGUSDT"}, f.source.calls)
	assert.Contains(t, f.logger.warnMsgs, "Market data source ping failed, continuing")
}

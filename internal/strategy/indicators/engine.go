package indicators

import (
	"context"
	"fmt"
	"sort"

	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"
)

// Fixed indicator periods of the alert rule.
const (
	EMAFastPeriod = 7
	EMAMidPeriod  = 14
	EMASlowPeriod = 50
	RSIPeriod     = 14
	ATRPeriod     = 14

	// DefaultMinHistory is the EMA50 warm-up; RSI and ATR are ready well before it.
	DefaultMinHistory = EMASlowPeriod
)

// WarmupIndex is the first index at which every snapshot value is defined.
func WarmupIndex() int {
	return EMASlowPeriod - 1
}

// Engine derives the per-kline indicator snapshots used by the alert rule.
type Engine struct {
	minHistory int
	ema7       Indicator
	ema14      Indicator
	ema50      Indicator
	rsi        Indicator
	atr        *ATR
}

// NewEngine creates an engine that refuses series shorter than minHistory.
// Zero selects DefaultMinHistory.
func NewEngine(minHistory int) (*Engine, error) {
	if minHistory == 0 {
		minHistory = DefaultMinHistory
	}
	if minHistory < DefaultMinHistory {
		return nil, fmt.Errorf("minimum history %d is below the EMA%d warm-up of %d", minHistory, EMASlowPeriod, DefaultMinHistory)
	}
	return &Engine{
		minHistory: minHistory,
		ema7:       NewEMA(IndicatorConfig{Period: EMAFastPeriod}),
		ema14:      NewEMA(IndicatorConfig{Period: EMAMidPeriod}),
		ema50:      NewEMA(IndicatorConfig{Period: EMASlowPeriod}),
		rsi:        NewRSI(IndicatorConfig{Period: RSIPeriod}),
		atr:        NewATR(IndicatorConfig{Period: ATRPeriod}),
	}, nil
}

// MinHistory returns the minimum number of klines Compute accepts.
func (e *Engine) MinHistory() int {
	return e.minHistory
}

// Compute returns one snapshot per kline, aligned with the normalised series
// (sorted by open time, duplicates removed).
func (e *Engine) Compute(ctx context.Context, klines []*domain.Kline) ([]domain.IndicatorSnapshot, error) {
	series := Normalize(klines)
	if len(series) < e.minHistory {
		return nil, fmt.Errorf("%w: need %d klines, got %d", ports.ErrInsufficientData, e.minHistory, len(series))
	}

	ema7, err := e.ema7.Calculate(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", e.ema7.Name(), err)
	}
	ema14, err := e.ema14.Calculate(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", e.ema14.Name(), err)
	}
	ema50, err := e.ema50.Calculate(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", e.ema50.Name(), err)
	}
	rsi, err := e.rsi.Calculate(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", e.rsi.Name(), err)
	}
	atr, err := e.atr.Calculate(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", e.atr.Name(), err)
	}

	snapshots := make([]domain.IndicatorSnapshot, len(series))
	for i, k := range series {
		snapshots[i] = domain.IndicatorSnapshot{
			OpenTime:      k.OpenTime,
			Close:         k.Close,
			EMA7:          ema7[i],
			EMA14:         ema14[i],
			EMA50:         ema50[i],
			RSI:           rsi[i],
			ATR:           atr[i],
			VolatilityPct: atr[i] / k.Close * 100,
		}
	}
	return snapshots, nil
}

// Latest computes the snapshots and returns the most recent one.
func (e *Engine) Latest(ctx context.Context, klines []*domain.Kline) (domain.IndicatorSnapshot, error) {
	snapshots, err := e.Compute(ctx, klines)
	if err != nil {
		return domain.IndicatorSnapshot{}, err
	}
	return snapshots[len(snapshots)-1], nil
}

// Normalize returns the klines ordered by open time with nil entries and
// duplicate open times removed. For duplicates the later copy wins.
// The input slice is not modified.
func Normalize(klines []*domain.Kline) []*domain.Kline {
	out := make([]*domain.Kline, 0, len(klines))
	for _, k := range klines {
		if k != nil {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})

	deduped := out[:0]
	for _, k := range out {
		if n := len(deduped); n > 0 && deduped[n-1].OpenTime.Equal(k.OpenTime) {
			deduped[n-1] = k
			continue
		}
		deduped = append(deduped, k)
	}
	return deduped
}

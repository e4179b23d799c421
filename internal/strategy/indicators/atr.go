package indicators

import (
	"context"
	"fmt"
	"math"

	"dcaAlertBot/internal/domain"
)

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config IndicatorConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints is one more than the period: true range needs the previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range series for the given klines
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	period := a.Config.Period
	if period <= 0 {
		return nil, fmt.Errorf("invalid ATR period %d", period)
	}
	if len(klines) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(klines))
	}

	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	for i, k := range klines {
		highs[i] = k.High
		lows[i] = k.Low
	}
	return ATRValues(highs, lows, closes(klines), period), nil
}

// ATRValues returns the Wilder smoothed average true range. True range starts
// at index 1 (it needs a previous close); the first ATR, at index period, is
// the mean of the first period true ranges.
func ATRValues(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n <= period || len(highs) != n || len(lows) != n {
		return out
	}

	trueRange := func(i int) float64 {
		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. |Current High - Previous Close|
		// 3. |Current Low - Previous Close|
		prevClose := closes[i-1]
		return math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(i)
	}
	atr /= float64(period)
	out[period] = atr

	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
		out[i] = atr
	}
	return out
}

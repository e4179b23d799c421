package indicators

import (
	"context"
	"math"

	"dcaAlertBot/internal/domain"
)

// Indicator represents a technical indicator computed over a kline series.
// The returned slice is aligned with the input: index i belongs to klines[i]
// and holds NaN until the indicator has warmed up.
type Indicator interface {
	// Calculate computes the indicator series for the given klines
	Calculate(ctx context.Context, klines []*domain.Kline) ([]float64, error)

	// RequiredDataPoints returns the minimum number of klines needed for one defined value
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func closes(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

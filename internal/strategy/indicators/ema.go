package indicators

import (
	"context"
	"fmt"

	"dcaAlertBot/internal/domain"
)

// MovingAverage implements the exponential moving average of closes.
type MovingAverage struct {
	BaseIndicator
}

// NewEMA creates a new EMA indicator instance
func NewEMA(config IndicatorConfig) *MovingAverage {
	return &MovingAverage{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("EMA%d", m.Config.Period)
}

// Calculate computes the EMA series of the kline closes.
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	if m.Config.Period <= 0 {
		return nil, fmt.Errorf("invalid EMA period %d", m.Config.Period)
	}
	if len(klines) < m.Config.Period {
		return nil, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(klines), m.Config.Period)
	}
	return EMA(closes(klines), m.Config.Period), nil
}

// EMA returns the exponential moving average of values.
// The seed at index period-1 is the simple average of the first period values;
// every later value is smoothed with factor 2/(period+1).
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	ema := seed / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

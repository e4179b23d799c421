package indicators

import (
	"context"
	"fmt"

	"dcaAlertBot/internal/domain"
)

// RSI implements the Relative Strength Index indicator
type RSI struct {
	BaseIndicator
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config IndicatorConfig) *RSI {
	return &RSI{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints is one more than the period: RSI works on price changes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes the RSI series using Wilder's smoothing method
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	if r.Config.Period <= 0 {
		return nil, fmt.Errorf("invalid RSI period %d", r.Config.Period)
	}
	if len(klines) <= r.Config.Period {
		return nil, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(klines), r.Config.Period)
	}
	return RSIValues(closes(klines), r.Config.Period), nil
}

// RSIValues returns Wilder's RSI of values. The first defined value is at
// index period, seeded with the mean gain and loss of the first period changes.
func RSIValues(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // Neutral if no change
		}
		return 100 // Max RSI if only gains
	}
	rsi := 100 - (100 / (1 + avgGain/avgLoss))

	// Ensure RSI is within bounds
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return rsi
}

package ports

import (
	"context"

	"dcaAlertBot/internal/domain"
)

// SignalEvaluator decides whether a kline series warrants an alert.
type SignalEvaluator interface {
	// RequiredDataPoints returns the minimum number of klines needed for the calculations.
	RequiredDataPoints() int

	// Evaluate returns the decision for the most recent kline. Too short a
	// series is reported as an error wrapping ErrInsufficientData.
	Evaluate(ctx context.Context, klines []*domain.Kline) (domain.Decision, error)
}

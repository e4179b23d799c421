package ports

import (
	"context"

	"dcaAlertBot/internal/domain"
)

// MarketDataSource supplies klines for a symbol.
// This abstraction allows decoupling the alert logic from specific exchange implementations.
type MarketDataSource interface {
	// GetKlines retrieves the most recent klines for the given symbol, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}

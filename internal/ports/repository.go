package ports

import (
	"context"

	"dcaAlertBot/internal/domain"
)

// KlineArchive stores fetched klines for later inspection.
// It holds market data only; alert state is never read back from it.
type KlineArchive interface {
	// SaveKlines upserts klines keyed by symbol, interval and open time.
	SaveKlines(ctx context.Context, klines []*domain.Kline) error
	// FindKlines returns up to limit of the most recent archived klines, oldest first.
	FindKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)
}

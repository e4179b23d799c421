package ports

import (
	"context"

	"dcaAlertBot/internal/domain"
)

// Notifier renders an alert into a message and delivers it to a chat.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}

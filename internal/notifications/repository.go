// Package notifications delivers incident notifications through a persistent queue.
package notifications

import (
	"context"
	"time"
)

// Repository defines the interface for notification queue access.
type Repository interface {
	EnqueueNotification(ctx context.Context, item *QueueItem) error
	// FetchPendingNotifications claims due items and moves them to processing.
	FetchPendingNotifications(ctx context.Context, limit int) ([]*QueueItem, error)
	MarkAsSent(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, sendErr error) error
	MarkForRetry(ctx context.Context, id string, sendErr error, nextAttemptAt time.Time) error
	GetQueueStats(ctx context.Context) (*QueueStats, error)
	// DeleteFinishedBefore removes sent and failed items last updated before the given time.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

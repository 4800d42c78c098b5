// Package postgres provides PostgreSQL implementation of the notification queue.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// stuckAfter is how long an item may stay in processing before it is fetched again.
const stuckAfter = 10 * time.Minute

const queueColumns = `id, incident_id, channel_type, target, payload, status, attempts, max_attempts,
	next_attempt_at, COALESCE(last_error, ''), created_at, updated_at, sent_at`

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnqueueNotification inserts a pending item into the queue.
func (r *Repository) EnqueueNotification(ctx context.Context, item *notifications.QueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO notification_queue (incident_id, channel_type, target, payload, status, max_attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING id, status, attempts, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		item.IncidentID,
		item.ChannelType,
		item.Target,
		payload,
		item.MaxAttempts,
		item.NextAttemptAt,
	).Scan(&item.ID, &item.Status, &item.Attempts, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// FetchPendingNotifications claims due items using SKIP LOCKED so that
// concurrent workers never receive the same item.
func (r *Repository) FetchPendingNotifications(ctx context.Context, limit int) ([]*notifications.QueueItem, error) {
	query := `
		UPDATE notification_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_queue
			WHERE (status = 'pending' AND next_attempt_at <= NOW())
			   OR (status = 'processing' AND updated_at < $2)
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.db.Query(ctx, query, limit, time.Now().Add(-stuckAfter))
	if err != nil {
		return nil, fmt.Errorf("fetch pending notifications: %w", err)
	}
	defer rows.Close()

	var items []*notifications.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

// MarkAsSent marks an item as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, id string) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent', attempts = attempts + 1, sent_at = NOW(), updated_at = NOW(), last_error = NULL
		WHERE id = $1
	`
	return r.exec(ctx, "mark as sent", query, id)
}

// MarkAsFailed marks an item as permanently failed.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, sendErr error) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "mark as failed", query, id, errorText(sendErr))
}

// MarkForRetry returns an item to pending with a new attempt time.
func (r *Repository) MarkForRetry(ctx context.Context, id string, sendErr error, nextAttemptAt time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "mark for retry", query, id, errorText(sendErr), nextAttemptAt)
}

// GetQueueStats counts items per status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_queue
	`
	var stats notifications.QueueStats
	if err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// DeleteFinishedBefore removes sent and failed items older than before.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM notification_queue WHERE status IN ('sent', 'failed') AND updated_at < $1`
	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrQueueItemNotFound
	}
	return nil
}

func scanQueueItem(row pgx.Row) (*notifications.QueueItem, error) {
	var (
		item    notifications.QueueItem
		payload []byte
	)
	err := row.Scan(
		&item.ID,
		&item.IncidentID,
		&item.ChannelType,
		&item.Target,
		&payload,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.NextAttemptAt,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &item, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}

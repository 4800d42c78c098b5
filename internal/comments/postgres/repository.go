// Package postgres provides PostgreSQL implementation of the comments repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/comments"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
)

// Repository implements the comments.Repository interface using PostgreSQL.
type Repository struct {
	tx *postgres.TxManager
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(tx *postgres.TxManager) *Repository {
	return &Repository{tx: tx}
}

// Create inserts a comment and fills in its ID.
func (r *Repository) Create(ctx context.Context, comment *domain.Comment) error {
	query := `
		INSERT INTO comments (incident_id, author, message, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.tx.Queryer(ctx).QueryRow(ctx, query,
		comment.IncidentID,
		comment.Author,
		comment.Message,
		comment.CreatedAt,
	).Scan(&comment.ID)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// Get retrieves a comment by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Comment, error) {
	query := `
		SELECT id, incident_id, author, message, created_at
		FROM comments
		WHERE id = $1
	`
	var c domain.Comment
	err := r.tx.Queryer(ctx).QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.IncidentID,
		&c.Author,
		&c.Message,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, comments.ErrCommentNotFound
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}

// ListByIncident returns comments of an incident ordered by creation time.
func (r *Repository) ListByIncident(ctx context.Context, incidentID string) ([]domain.Comment, error) {
	query := `
		SELECT id, incident_id, author, message, created_at
		FROM comments
		WHERE incident_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.tx.Queryer(ctx).Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Comment, 0)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.Author, &c.Message, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return result, nil
}

// Update writes author and message.
func (r *Repository) Update(ctx context.Context, comment *domain.Comment) error {
	result, err := r.tx.Queryer(ctx).Exec(ctx,
		`UPDATE comments SET author = $2, message = $3 WHERE id = $1`,
		comment.ID, comment.Author, comment.Message,
	)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return comments.ErrCommentNotFound
	}
	return nil
}

// Delete removes a comment.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.tx.Queryer(ctx).Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return comments.ErrCommentNotFound
	}
	return nil
}

// CountByIncident returns the number of comments on an incident.
func (r *Repository) CountByIncident(ctx context.Context, incidentID string) (int64, error) {
	var n int64
	err := r.tx.Queryer(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM comments WHERE incident_id = $1`, incidentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// TouchIncident sets updated_at of an incident.
func (r *Repository) TouchIncident(ctx context.Context, incidentID string, at time.Time) error {
	result, err := r.tx.Queryer(ctx).Exec(ctx,
		`UPDATE incidents SET updated_at = $2 WHERE id = $1`, incidentID, at,
	)
	if err != nil {
		return fmt.Errorf("touch incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

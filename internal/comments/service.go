// Package comments provides HTTP handlers and business logic for incident comments.
package comments

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
)

// IncidentReader loads the incident a comment belongs to.
type IncidentReader interface {
	Get(ctx context.Context, id string) (*domain.Incident, error)
}

// Notifier is informed about new comments.
type Notifier interface {
	OnIncidentCommented(ctx context.Context, incident *domain.Incident, comment *domain.Comment) error
}

// Input holds data for creating or updating a comment.
type Input struct {
	Author  string
	Message string
}

// Service implements comment business logic.
type Service struct {
	repo      Repository
	incidents IncidentReader
	tx        postgres.Transactor
	notifier  Notifier
	now       func() time.Time
}

// NewService creates a new comment service. notifier may be nil.
func NewService(repo Repository, incidents IncidentReader, tx postgres.Transactor, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		incidents: incidents,
		tx:        tx,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a comment to an existing incident and touches the incident.
func (s *Service) Create(ctx context.Context, incidentID string, input Input) (*domain.Comment, error) {
	incident, err := s.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	comment := &domain.Comment{
		IncidentID: incident.ID,
		Author:     input.Author,
		Message:    input.Message,
		CreatedAt:  now,
	}

	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, comment); err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		if err := s.repo.TouchIncident(ctx, incident.ID, now); err != nil {
			return fmt.Errorf("touch incident: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		incident.UpdatedAt = now
		if err := s.notifier.OnIncidentCommented(ctx, incident, comment); err != nil {
			ctxlog.FromContext(ctx).Error("failed to notify comment", "incident_id", incident.ID, "comment_id", comment.ID, "error", err)
		}
	}

	return comment, nil
}

// Get retrieves a comment by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Comment, error) {
	return s.repo.Get(ctx, id)
}

// ListByIncident returns the comments of an incident, oldest first.
func (s *Service) ListByIncident(ctx context.Context, incidentID string) ([]domain.Comment, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListByIncident(ctx, incidentID)
}

// CountByIncident returns the number of comments on an incident.
func (s *Service) CountByIncident(ctx context.Context, incidentID string) (int64, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return 0, err
	}
	return s.repo.CountByIncident(ctx, incidentID)
}

// Update changes author and message of a comment and touches the incident.
func (s *Service) Update(ctx context.Context, id string, input Input) (*domain.Comment, error) {
	comment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	comment.Author = input.Author
	comment.Message = input.Message

	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, comment); err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		if err := s.repo.TouchIncident(ctx, comment.IncidentID, s.now()); err != nil {
			return fmt.Errorf("touch incident: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return comment, nil
}

// Delete removes a comment and touches the incident.
func (s *Service) Delete(ctx context.Context, id string) error {
	comment, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, comment.ID); err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if err := s.repo.TouchIncident(ctx, comment.IncidentID, s.now()); err != nil {
			return fmt.Errorf("touch incident: %w", err)
		}
		return nil
	})
}

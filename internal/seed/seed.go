// Package seed creates the bootstrap administrator and optional demo data.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/identity"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
)

// Config controls what gets seeded.
type Config struct {
	AdminUsername string
	AdminPassword string
	DemoData      bool
	// DemoPassword is used for the demo BASIC users.
	DemoPassword string
}

// Users is the part of the identity service the seeder needs.
type Users interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, input identity.CreateUserInput) (*domain.User, error)
}

// IncidentStore writes incidents without triggering notifications.
type IncidentStore interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, incident *domain.Incident) error
}

// CommentStore writes comments.
type CommentStore interface {
	Create(ctx context.Context, comment *domain.Comment) error
}

// Seeder populates an empty installation.
type Seeder struct {
	cfg       Config
	users     Users
	incidents IncidentStore
	comments  CommentStore
	tx        postgres.Transactor
	now       func() time.Time
}

// New creates a Seeder.
func New(cfg Config, users Users, incidentStore IncidentStore, commentStore CommentStore, tx postgres.Transactor) *Seeder {
	return &Seeder{
		cfg:       cfg,
		users:     users,
		incidents: incidentStore,
		comments:  commentStore,
		tx:        tx,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run ensures the admin user exists and, when enabled, loads demo data.
func (s *Seeder) Run(ctx context.Context) error {
	if s.cfg.AdminUsername != "" {
		if _, err := s.ensureUser(ctx, s.cfg.AdminUsername, s.cfg.AdminPassword, domain.RoleAdmin); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	if !s.cfg.DemoData {
		return nil
	}

	for _, username := range demoUsers {
		if _, err := s.ensureUser(ctx, username, s.cfg.DemoPassword, domain.RoleBasic); err != nil {
			return fmt.Errorf("demo user %s: %w", username, err)
		}
	}

	return s.seedIncidents(ctx)
}

// ensureUser creates the user unless the username is already taken.
// It reports whether a user was created.
func (s *Seeder) ensureUser(ctx context.Context, username, password string, role domain.Role) (bool, error) {
	_, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		slog.Debug("seed user already exists", "username", username)
		return false, nil
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return false, err
	}

	if password == "" {
		return false, errors.New("password is empty")
	}

	_, err = s.users.CreateUser(ctx, identity.CreateUserInput{
		Username: username,
		Password: password,
		Roles:    []string{string(role)},
	})
	if errors.Is(err, identity.ErrUsernameExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	slog.Info("seed user created", "username", username, "role", role)
	return true, nil
}

func (s *Seeder) seedIncidents(ctx context.Context) error {
	count, err := s.incidents.Count(ctx)
	if err != nil {
		return fmt.Errorf("count incidents: %w", err)
	}
	if count > 0 {
		slog.Debug("incidents exist, skipping demo data", "count", count)
		return nil
	}

	var created, commented int
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		now := s.now()
		for i, demo := range demoIncidents {
			inc := &domain.Incident{
				Title:            demo.title,
				Description:      demo.description,
				Priority:         demo.priority,
				Status:           demo.status,
				ResponsibleEmail: demo.email,
				Tags:             incidents.NormalizeTags(demo.tags),
			}
			// Spread creation times so default sorting is stable and readable.
			incidents.TouchCreate(inc, now.Add(-time.Duration(len(demoIncidents)-i)*time.Hour))
			if n := len(demo.comments); n > 0 {
				incidents.TouchUpdate(inc, commentTime(inc, n-1))
			}
			if err := s.incidents.Create(ctx, inc); err != nil {
				return fmt.Errorf("create incident %q: %w", demo.title, err)
			}
			created++

			for j, c := range demo.comments {
				comment := &domain.Comment{
					IncidentID: inc.ID,
					Author:     c.author,
					Message:    c.message,
					CreatedAt:  commentTime(inc, j),
				}
				if err := s.comments.Create(ctx, comment); err != nil {
					return fmt.Errorf("create comment: %w", err)
				}
				commented++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("demo data created", "incidents", created, "comments", commented)
	return nil
}

func commentTime(inc *domain.Incident, index int) time.Time {
	return inc.CreatedAt.Add(time.Duration(index+1) * 10 * time.Minute)
}

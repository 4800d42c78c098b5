package comments

import (
	"context"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Repository defines the interface for comment storage.
// Writes pick up the transaction from ctx when called inside a Transactor.
type Repository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	Get(ctx context.Context, id string) (*domain.Comment, error)
	ListByIncident(ctx context.Context, incidentID string) ([]domain.Comment, error)
	Update(ctx context.Context, comment *domain.Comment) error
	Delete(ctx context.Context, id string) error
	CountByIncident(ctx context.Context, incidentID string) (int64, error)

	// TouchIncident sets updated_at of the parent incident.
	TouchIncident(ctx context.Context, incidentID string, at time.Time) error
}

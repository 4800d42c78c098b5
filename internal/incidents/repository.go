package incidents

import (
	"context"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Get(ctx context.Context, id string) (*domain.Incident, error)
	Update(ctx context.Context, incident *domain.Incident) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, criteria Criteria, page domain.PageRequest) ([]domain.Incident, int64, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.IncidentStatus]int64, error)
	CountByPriority(ctx context.Context) (map[domain.IncidentPriority]int64, error)
}

// TermField selects which text columns a search term is matched against.
type TermField string

// Term fields.
const (
	TermInTitle       TermField = "title"
	TermInDescription TermField = "description"
	TermInAny         TermField = "any"
)

// Criteria is a single repository query built from a Filter.
// Term matching is case-insensitive substring matching.
type Criteria struct {
	Status   *domain.IncidentStatus
	Priority *domain.IncidentPriority
	Term     string
	Field    TermField
}

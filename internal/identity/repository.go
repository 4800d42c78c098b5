package identity

import (
	"context"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Repository defines the interface for user storage.
// CreateUser and UpdateUser persist the role set along with the user.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context, page domain.PageRequest) ([]domain.User, int64, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id string) error
}

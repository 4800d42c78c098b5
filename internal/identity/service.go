// Package identity provides user management and authentication.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Service implements identity business logic.
type Service struct {
	repo Repository
	auth Authenticator
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{
		repo: repo,
		auth: auth,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput holds data for self-registration.
type RegisterInput struct {
	Username string
	Password string
}

// CreateUserInput holds data for creating a user with explicit roles.
type CreateUserInput struct {
	Username string
	Password string
	Roles    []string
}

// UpdateUserInput holds data for updating a user.
// Empty Password keeps the current one; nil Roles keeps the current set.
type UpdateUserInput struct {
	Username string
	Password string
	Roles    []string
}

// LoginInput holds login credentials.
type LoginInput struct {
	Username string
	Password string
}

// Register creates a user with the BASIC role.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	return s.CreateUser(ctx, CreateUserInput{
		Username: input.Username,
		Password: input.Password,
	})
}

// CreateUser creates a user. Roles default to BASIC.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	roles, err := parseRoles(input.Roles)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUsernameFree(ctx, input.Username); err != nil {
		return nil, err
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		Username:  input.Username,
		Password:  hash,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Token, error) {
	user, err := s.repo.GetUserByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates an access token and returns the user ID and roles.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, []domain.Role, error) {
	return s.auth.ValidateAccessToken(ctx, token)
}

// GetUserByID retrieves a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// FindByUsername retrieves a user by username.
func (s *Service) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, page domain.PageRequest) (domain.Page[domain.User], error) {
	users, total, err := s.repo.ListUsers(ctx, page)
	if err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	return domain.NewPage(users, total, page), nil
}

// UpdateUser changes username, and optionally password and roles.
func (s *Service) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Username != user.Username {
		if err := s.ensureUsernameFree(ctx, input.Username); err != nil {
			return nil, err
		}
		user.Username = input.Username
	}

	if input.Password != "" {
		hash, err := hashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	}

	if input.Roles != nil {
		roles, err := parseRoles(input.Roles)
		if err != nil {
			return nil, err
		}
		user.Roles = roles
	}

	user.UpdatedAt = s.now()

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// DeleteUser removes a user.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.repo.DeleteUser(ctx, id)
}

func (s *Service) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.repo.GetUserByUsername(ctx, username)
	if err == nil {
		return ErrUsernameExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("check username: %w", err)
	}
	return nil
}

// parseRoles converts role names, defaulting to BASIC when none are given.
func parseRoles(names []string) ([]domain.Role, error) {
	if len(names) == 0 {
		return []domain.Role{domain.RoleBasic}, nil
	}

	roles := make([]domain.Role, 0, len(names))
	for _, name := range names {
		role := domain.Role(name)
		if !role.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRole, name)
		}
		if !domain.HasRole(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// maxPasswordBytes is the bcrypt input limit. Validation counts runes, so
// multibyte passwords are checked again here.
const maxPasswordBytes = 72

func hashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

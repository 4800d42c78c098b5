package identity

import (
	"context"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticator issues and validates access tokens.
type Authenticator interface {
	GenerateToken(ctx context.Context, user *domain.User) (*Token, error)
	ValidateAccessToken(ctx context.Context, token string) (userID string, roles []domain.Role, err error)
}

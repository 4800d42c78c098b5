// Package jwt implements RS256 access tokens for the identity module.
package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

// Defaults.
const (
	DefaultIssuer              = "incident-tracker"
	DefaultAccessTokenDuration = 300 * time.Second
	DefaultKeyBits             = 2048
)

// Config contains JWT configuration.
// When PrivateKeyPath is empty a key of KeyBits bits is generated at startup.
type Config struct {
	PrivateKeyPath      string
	Issuer              string
	AccessTokenDuration time.Duration
	KeyBits             int
}

// Claims are the access token claims. Scope holds space-separated role names.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Authenticator implements identity.Authenticator with RSA-signed JWTs.
type Authenticator struct {
	config     Config
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// NewAuthenticator loads or generates the signing key.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTokenDuration <= 0 {
		cfg.AccessTokenDuration = DefaultAccessTokenDuration
	}
	if cfg.KeyBits <= 0 {
		cfg.KeyBits = DefaultKeyBits
	}

	key, err := loadOrGenerateKey(cfg)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		config:     cfg,
		privateKey: key,
		now:        time.Now,
	}, nil
}

func loadOrGenerateKey(cfg Config) (*rsa.PrivateKey, error) {
	if cfg.PrivateKeyPath == "" {
		key, err := rsa.GenerateKey(rand.Reader, cfg.KeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate rsa key: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// GenerateToken issues an access token for user.
func (a *Authenticator) GenerateToken(_ context.Context, user *domain.User) (*identity.Token, error) {
	now := a.now()

	scopes := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		scopes = append(scopes, string(r))
	}

	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.config.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &identity.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(a.config.AccessTokenDuration.Seconds()),
	}, nil
}

// ValidateAccessToken verifies signature, issuer and expiry and returns subject and roles.
func (a *Authenticator) ValidateAccessToken(_ context.Context, tokenString string) (string, []domain.Role, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (interface{}, error) {
			return &a.privateKey.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", identity.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", nil, identity.ErrInvalidToken
	}

	roles := make([]domain.Role, 0)
	for _, s := range strings.Fields(claims.Scope) {
		role := domain.Role(s)
		if !role.IsValid() {
			return "", nil, errors.Join(identity.ErrInvalidToken, fmt.Errorf("unknown role %q", s))
		}
		roles = append(roles, role)
	}

	return claims.Subject, roles, nil
}

// Package postgres provides PostgreSQL implementation of the identity repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/identity"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// userSelect loads users with their role names aggregated.
const userSelect = `
	SELECT u.id, u.username, u.password_hash, u.created_at, u.updated_at,
	       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id
`

var sortColumns = map[string]string{
	"username":   "u.username",
	"created_at": "u.created_at",
}

// Repository implements the identity.Repository interface using PostgreSQL.
type Repository struct {
	tx *postgres.TxManager
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(tx *postgres.TxManager) *Repository {
	return &Repository{tx: tx}
}

// CreateUser inserts a user and its roles in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	return r.tx.Do(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO users (username, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		err := r.tx.Queryer(ctx).QueryRow(ctx, query,
			user.Username,
			user.Password,
			user.CreatedAt,
			user.UpdatedAt,
		).Scan(&user.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return identity.ErrUsernameExists
			}
			return fmt.Errorf("insert user: %w", err)
		}

		return r.setRoles(ctx, user.ID, user.Roles)
	})
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE u.id = $1`, id)
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE u.username = $1`, username)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := userSelect + where + ` GROUP BY u.id`

	user, err := scanUser(r.tx.Queryer(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListUsers returns one page of users and the total count.
func (r *Repository) ListUsers(ctx context.Context, page domain.PageRequest) ([]domain.User, int64, error) {
	q := r.tx.Queryer(ctx)

	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	column, ok := sortColumns[page.SortField]
	if !ok {
		column = "u.username"
	}
	dir := "ASC"
	if page.SortDir == domain.SortDesc {
		dir = "DESC"
	}

	query := userSelect + fmt.Sprintf(` GROUP BY u.id ORDER BY %s %s, u.id LIMIT $1 OFFSET $2`, column, dir)
	rows, err := q.Query(ctx, query, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, page.Size)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	return users, total, nil
}

// UpdateUser writes username, password hash and replaces roles.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	return r.tx.Do(ctx, func(ctx context.Context) error {
		result, err := r.tx.Queryer(ctx).Exec(ctx,
			`UPDATE users SET username = $2, password_hash = $3, updated_at = $4 WHERE id = $1`,
			user.ID, user.Username, user.Password, user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return identity.ErrUsernameExists
			}
			return fmt.Errorf("update user: %w", err)
		}
		if result.RowsAffected() == 0 {
			return identity.ErrUserNotFound
		}

		if _, err := r.tx.Queryer(ctx).Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("clear roles: %w", err)
		}
		return r.setRoles(ctx, user.ID, user.Roles)
	})
}

// DeleteUser removes a user. Role links cascade.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.tx.Queryer(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func (r *Repository) setRoles(ctx context.Context, userID string, roles []domain.Role) error {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}

	result, err := r.tx.Queryer(ctx).Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = ANY($2)
	`, userID, names)
	if err != nil {
		return fmt.Errorf("assign roles: %w", err)
	}
	if result.RowsAffected() != int64(len(names)) {
		return identity.ErrInvalidRole
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var roles []string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.CreatedAt,
		&user.UpdatedAt,
		&roles,
	)
	if err != nil {
		return nil, err
	}

	user.Roles = make([]domain.Role, 0, len(roles))
	for _, name := range roles {
		user.Roles = append(user.Roles, domain.Role(name))
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

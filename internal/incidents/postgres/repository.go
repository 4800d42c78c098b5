// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
)

// sortColumns whitelists ORDER BY columns.
var sortColumns = map[string]bool{
	"title":             true,
	"priority":          true,
	"status":            true,
	"responsible_email": true,
	"created_at":        true,
	"updated_at":        true,
}

const incidentColumns = `id, title, description, priority, status, responsible_email, tags, created_at, updated_at`

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	tx *postgres.TxManager
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(tx *postgres.TxManager) *Repository {
	return &Repository{tx: tx}
}

// Create inserts a new incident and fills in its ID.
func (r *Repository) Create(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (title, description, priority, status, responsible_email, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.tx.Queryer(ctx).QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Priority,
		incident.Status,
		incident.ResponsibleEmail,
		incident.Tags,
		incident.CreatedAt,
		incident.UpdatedAt,
	).Scan(&incident.ID)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Get retrieves an incident by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	incident, err := scanIncident(r.tx.Queryer(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// Update writes all mutable fields and timestamps.
func (r *Repository) Update(ctx context.Context, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, priority = $4, status = $5,
		    responsible_email = $6, tags = $7, created_at = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := r.tx.Queryer(ctx).Exec(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		incident.Priority,
		incident.Status,
		incident.ResponsibleEmail,
		incident.Tags,
		incident.CreatedAt,
		incident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// Delete removes an incident. Comments are removed by the foreign key cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.tx.Queryer(ctx).Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// Search returns one page of incidents matching criteria and the total match count.
func (r *Repository) Search(ctx context.Context, criteria incidents.Criteria, page domain.PageRequest) ([]domain.Incident, int64, error) {
	where, args := buildWhere(criteria)

	var total int64
	countQuery := `SELECT COUNT(*) FROM incidents` + where
	if err := r.tx.Queryer(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	if total == 0 {
		return []domain.Incident{}, 0, nil
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents` + where + orderBy(page)
	args = append(args, page.Size, page.Offset())
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.tx.Queryer(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search incidents: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Incident, 0, page.Size)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, *incident)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate incidents: %w", err)
	}

	return result, total, nil
}

// Count returns the number of incidents.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.tx.Queryer(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return total, nil
}

// CountByStatus returns incident counts grouped by status.
func (r *Repository) CountByStatus(ctx context.Context) (map[domain.IncidentStatus]int64, error) {
	rows, err := r.tx.Queryer(ctx).Query(ctx, `SELECT status, COUNT(*) FROM incidents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.IncidentStatus]int64)
	for rows.Next() {
		var status domain.IncidentStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountByPriority returns incident counts grouped by priority.
func (r *Repository) CountByPriority(ctx context.Context) (map[domain.IncidentPriority]int64, error) {
	rows, err := r.tx.Queryer(ctx).Query(ctx, `SELECT priority, COUNT(*) FROM incidents GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("count by priority: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.IncidentPriority]int64)
	for rows.Next() {
		var priority domain.IncidentPriority
		var n int64
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, fmt.Errorf("scan priority count: %w", err)
		}
		counts[priority] = n
	}
	return counts, rows.Err()
}

func buildWhere(c incidents.Criteria) (string, []any) {
	var conds []string
	var args []any

	if c.Status != nil {
		args = append(args, *c.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if c.Priority != nil {
		args = append(args, *c.Priority)
		conds = append(conds, fmt.Sprintf("priority = $%d", len(args)))
	}
	if c.Term != "" {
		args = append(args, "%"+escapeLike(c.Term)+"%")
		n := len(args)
		switch c.Field {
		case incidents.TermInTitle:
			conds = append(conds, fmt.Sprintf("title ILIKE $%d", n))
		case incidents.TermInDescription:
			conds = append(conds, fmt.Sprintf("description ILIKE $%d", n))
		default:
			conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(page domain.PageRequest) string {
	column := page.SortField
	if !sortColumns[column] {
		column = "created_at"
	}
	dir := "ASC"
	if page.SortDir == domain.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, dir, dir)
}

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&incident.Priority,
		&incident.Status,
		&incident.ResponsibleEmail,
		&incident.Tags,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

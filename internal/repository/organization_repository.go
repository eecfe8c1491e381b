package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// OrganizationRepository provides persistence for campus organizations.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, abbreviation, scope, course_abbr, admin_id, author_id, status, start_year, end_year, active_year, created_at, updated_at`

// List returns organizations matching provided filters.
func (r *OrganizationRepository) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error) {
	base := "FROM organizations WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, filter.Scope)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Period != nil {
		conditions = append(conditions, "start_year = ? AND end_year = ?")
		args = append(args, filter.Period.StartYear, filter.Period.EndYear)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(name LIKE ? OR abbreviation LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":         true,
		"abbreviation": true,
		"status":       true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", organizationColumns, base, sortBy, order, size, offset)

	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	return orgs, total, nil
}

// FindByID loads an organization by identifier.
func (r *OrganizationRepository) FindByID(ctx context.Context, id int64) (*models.Organization, error) {
	query := fmt.Sprintf("SELECT %s FROM organizations WHERE id = ?", organizationColumns)
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

// ExistsByAbbreviation checks abbreviation uniqueness within one year span.
func (r *OrganizationRepository) ExistsByAbbreviation(ctx context.Context, abbreviation string, period models.Period, excludeID int64) (bool, error) {
	base := "SELECT 1 FROM organizations WHERE LOWER(abbreviation) = LOWER(?) AND start_year = ? AND end_year = ?"
	args := []interface{}{abbreviation, period.StartYear, period.EndYear}
	if excludeID > 0 {
		base += " AND id <> ?"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check organization uniqueness: %w", err)
	}
	return true, nil
}

// Create inserts a new organization row.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	if org.Status == "" {
		org.Status = models.OrgStatusPending
	}

	const query = `INSERT INTO organizations (name, abbreviation, scope, course_abbr, admin_id, author_id, status, start_year, end_year, active_year, created_at, updated_at)
VALUES (:name, :abbreviation, :scope, :course_abbr, :admin_id, :author_id, :status, :start_year, :end_year, :active_year, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, org)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		org.ID = id
	}
	return nil
}

// Update modifies an existing organization.
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now().UTC()
	const query = `UPDATE organizations SET name = :name, abbreviation = :abbreviation, scope = :scope, course_abbr = :course_abbr,
admin_id = :admin_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, org); err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return nil
}

// UpdateStatus sets only the accreditation status column.
func (r *OrganizationRepository) UpdateStatus(ctx context.Context, id int64, status models.OrgStatus) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE organizations SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	return nil
}

// CountByStatus aggregates organizations per status for one year span.
func (r *OrganizationRepository) CountByStatus(ctx context.Context, period models.Period) (map[models.OrgStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM organizations WHERE start_year = ? AND end_year = ? GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query, period.StartYear, period.EndYear)
	if err != nil {
		return nil, fmt.Errorf("count organizations by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.OrgStatus]int)
	for rows.Next() {
		var status models.OrgStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan organization status count: %w", err)
		}
		counts[status] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization status counts: %w", err)
	}
	return counts, nil
}

// Delete removes an organization permanently.
func (r *OrganizationRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return nil
}

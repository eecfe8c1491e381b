package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// FeeRepository provides persistence for organization fees.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository creates the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

const feeColumns = `id, org_id, name, amount, due_date, start_year, end_year, active_year, created_by, created_at, updated_at`

// List returns fees matching the filter.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, int, error) {
	base := "FROM fees WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.OrgID > 0 {
		conditions = append(conditions, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.Period != nil {
		conditions = append(conditions, "start_year = ? AND end_year = ?")
		args = append(args, filter.Period.StartYear, filter.Period.EndYear)
	}
	if filter.Search != "" {
		conditions = append(conditions, "name LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", feeColumns, base, size, offset)
	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fees: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fees: %w", err)
	}
	return fees, total, nil
}

// FindByID loads a fee by identifier.
func (r *FeeRepository) FindByID(ctx context.Context, id int64) (*models.Fee, error) {
	query := fmt.Sprintf("SELECT %s FROM fees WHERE id = ?", feeColumns)
	var fee models.Fee
	if err := r.db.GetContext(ctx, &fee, query, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// Create inserts a new fee.
func (r *FeeRepository) Create(ctx context.Context, fee *models.Fee) error {
	now := time.Now().UTC()
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now

	const query = `INSERT INTO fees (org_id, name, amount, due_date, start_year, end_year, active_year, created_by, created_at, updated_at)
VALUES (:org_id, :name, :amount, :due_date, :start_year, :end_year, :active_year, :created_by, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, fee)
	if err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		fee.ID = id
	}
	return nil
}

// Update modifies a fee record.
func (r *FeeRepository) Update(ctx context.Context, fee *models.Fee) error {
	fee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fees SET name = :name, amount = :amount, due_date = :due_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("update fee: %w", err)
	}
	return nil
}

// Delete removes a fee.
func (r *FeeRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fees WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete fee: %w", err)
	}
	return nil
}

// CountPayments returns how many payments reference the fee.
func (r *FeeRepository) CountPayments(ctx context.Context, id int64) (int, error) {
	const query = `SELECT COUNT(*) FROM payments WHERE fee_id = ?`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count fee payments: %w", err)
	}
	return count, nil
}

// CollectionSummary aggregates recorded payments per fee for one organization.
func (r *FeeRepository) CollectionSummary(ctx context.Context, orgID int64, period models.Period) ([]models.FeeCollectionSummary, error) {
	const query = `SELECT f.id AS fee_id, f.name AS fee_name, f.amount,
COUNT(p.id) AS payer_count, COALESCE(SUM(p.amount), 0) AS collected
FROM fees f
LEFT JOIN payments p ON p.fee_id = f.id
WHERE f.org_id = ? AND f.start_year = ? AND f.end_year = ?
GROUP BY f.id, f.name, f.amount
ORDER BY f.name ASC`
	var summaries []models.FeeCollectionSummary
	if err := r.db.SelectContext(ctx, &summaries, query, orgID, period.StartYear, period.EndYear); err != nil {
		return nil, fmt.Errorf("fee collection summary: %w", err)
	}
	return summaries, nil
}

// TotalCollected sums every payment recorded for one year span.
func (r *FeeRepository) TotalCollected(ctx context.Context, period models.Period) (float64, error) {
	const query = `SELECT COALESCE(SUM(p.amount), 0) FROM payments p
JOIN fees f ON f.id = p.fee_id
WHERE f.start_year = ? AND f.end_year = ?`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, period.StartYear, period.EndYear); err != nil {
		return 0, fmt.Errorf("total collected: %w", err)
	}
	return total, nil
}

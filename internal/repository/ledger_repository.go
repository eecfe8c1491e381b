package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// LedgerRepository provides persistence for event credit/debit bookkeeping.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `id, org_id, event_name, entry_type, amount, description, start_year, end_year, active_year, recorded_by, created_at`

// List returns ledger entries matching the filter.
func (r *LedgerRepository) List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error) {
	base := "FROM ledger_entries WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.OrgID > 0 {
		conditions = append(conditions, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.EntryType != "" {
		conditions = append(conditions, "entry_type = ?")
		args = append(args, filter.EntryType)
	}
	if filter.EventName != "" {
		conditions = append(conditions, "event_name LIKE ?")
		args = append(args, "%"+filter.EventName+"%")
	}
	if filter.Period != nil {
		conditions = append(conditions, "start_year = ? AND end_year = ?")
		args = append(args, filter.Period.StartYear, filter.Period.EndYear)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", ledgerColumns, base, size, offset)
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return entries, total, nil
}

// Create appends a ledger entry. Entries are never updated or deleted.
func (r *LedgerRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO ledger_entries (org_id, event_name, entry_type, amount, description, start_year, end_year, active_year, recorded_by, created_at)
VALUES (:org_id, :event_name, :entry_type, :amount, :description, :start_year, :end_year, :active_year, :recorded_by, :created_at)`
	res, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// Balance computes credit/debit totals for one organization and period.
func (r *LedgerRepository) Balance(ctx context.Context, orgID int64, period models.Period) (*models.LedgerBalance, error) {
	const query = `SELECT ? AS org_id,
COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE 0 END), 0) AS total_credit,
COALESCE(SUM(CASE WHEN entry_type = 'DEBIT' THEN amount ELSE 0 END), 0) AS total_debit,
COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE -amount END), 0) AS balance
FROM ledger_entries WHERE org_id = ? AND start_year = ? AND end_year = ?`
	var balance models.LedgerBalance
	if err := r.db.GetContext(ctx, &balance, query, orgID, orgID, period.StartYear, period.EndYear); err != nil {
		return nil, fmt.Errorf("ledger balance: %w", err)
	}
	return &balance, nil
}

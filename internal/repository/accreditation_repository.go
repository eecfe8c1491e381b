package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// AccreditationRepository provides persistence for accreditation documents
// and the transactional store the review engine runs against.
type AccreditationRepository struct {
	db *sqlx.DB
}

// NewAccreditationRepository creates the repository.
func NewAccreditationRepository(db *sqlx.DB) *AccreditationRepository {
	return &AccreditationRepository{db: db}
}

const accreditationColumns = `id, org_id, doc_group, doc_type, file_path, status, reason, start_year, end_year, active_year, created_at, updated_at`

// cycleCondition matches every row of one (org, doc_group, period) cycle.
// Rows written before spans were denormalized carry no start/end year; those
// legacy rows are matched by active_year instead.
const cycleCondition = `org_id = ? AND doc_group = ? AND ((start_year = ? AND end_year = ?) OR (start_year IS NULL AND active_year = ?))`

// FindFileByID loads one document row.
func (r *AccreditationRepository) FindFileByID(ctx context.Context, id int64) (*models.AccreditationFile, error) {
	query := fmt.Sprintf("SELECT %s FROM accreditation_files WHERE id = ?", accreditationColumns)
	var file models.AccreditationFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}

// ListFiles returns document rows matching the filter.
func (r *AccreditationRepository) ListFiles(ctx context.Context, filter models.AccreditationFileFilter) ([]models.AccreditationFile, int, error) {
	base := "FROM accreditation_files WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.OrgID > 0 {
		conditions = append(conditions, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.DocGroup != "" {
		conditions = append(conditions, "doc_group = ?")
		args = append(args, filter.DocGroup)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Period != nil {
		conditions = append(conditions, "((start_year = ? AND end_year = ?) OR (start_year IS NULL AND active_year = ?))")
		args = append(args, filter.Period.StartYear, filter.Period.EndYear, filter.Period.ActiveYear)
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
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY doc_type ASC, created_at ASC LIMIT %d OFFSET %d", accreditationColumns, base, size, offset)
	var files []models.AccreditationFile
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list accreditation files: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count accreditation files: %w", err)
	}
	return files, total, nil
}

// ListCycleFiles returns every row of one submission cycle.
func (r *AccreditationRepository) ListCycleFiles(ctx context.Context, orgID int64, group models.DocGroup, period models.Period) ([]models.AccreditationFile, error) {
	query := fmt.Sprintf("SELECT %s FROM accreditation_files WHERE %s", accreditationColumns, cycleCondition)
	var files []models.AccreditationFile
	if err := r.db.SelectContext(ctx, &files, query, orgID, group, period.StartYear, period.EndYear, period.ActiveYear); err != nil {
		return nil, fmt.Errorf("list cycle files: %w", err)
	}
	return files, nil
}

// CreateFile registers a newly uploaded document row.
func (r *AccreditationRepository) CreateFile(ctx context.Context, file *models.AccreditationFile) error {
	now := time.Now().UTC()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	if file.Status == "" {
		file.Status = models.FileStatusSubmitted
	}

	const query = `INSERT INTO accreditation_files (org_id, doc_group, doc_type, file_path, status, reason, start_year, end_year, active_year, created_at, updated_at)
VALUES (:org_id, :doc_group, :doc_type, :file_path, :status, :reason, :start_year, :end_year, :active_year, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, file)
	if err != nil {
		return fmt.Errorf("create accreditation file: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		file.ID = id
	}
	return nil
}

// ReplaceFile swaps a declined document's path and resets it to submitted.
func (r *AccreditationRepository) ReplaceFile(ctx context.Context, id int64, filePath string) error {
	const query = `UPDATE accreditation_files SET file_path = ?, status = 'submitted', reason = NULL, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, filePath, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("replace accreditation file: %w", err)
	}
	return nil
}

// CountPendingFiles returns how many rows of a period still await a decision.
func (r *AccreditationRepository) CountPendingFiles(ctx context.Context, period models.Period) (int, error) {
	const query = `SELECT COUNT(*) FROM accreditation_files
WHERE status IN ('submitted', 'reviewed') AND ((start_year = ? AND end_year = ?) OR (start_year IS NULL AND active_year = ?))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, period.StartYear, period.EndYear, period.ActiveYear); err != nil {
		return 0, fmt.Errorf("count pending files: %w", err)
	}
	return count, nil
}

// ReviewStore exposes the row-locked operations a review decision needs. All
// methods run inside the single transaction opened by InReviewTx.
type ReviewStore interface {
	GetFileForUpdate(ctx context.Context, id int64) (*models.AccreditationFile, error)
	UpdateFileStatus(ctx context.Context, id int64, status models.FileStatus, reason *string) error
	ListCycleFiles(ctx context.Context, orgID int64, group models.DocGroup, period models.Period) ([]models.AccreditationFile, error)
	GetOrganizationForUpdate(ctx context.Context, id int64) (*models.Organization, error)
	UpdateOrganizationStatus(ctx context.Context, id int64, status models.OrgStatus) error
}

// InReviewTx runs fn within one database transaction so a crash mid-review
// can never leave the organization promoted without the triggering document
// update, or vice versa.
func (r *AccreditationRepository) InReviewTx(ctx context.Context, fn func(store ReviewStore) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review tx: %w", err)
	}
	if err := fn(&reviewTxStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review tx: %w", err)
	}
	return nil
}

type reviewTxStore struct {
	tx *sqlx.Tx
}

func (s *reviewTxStore) GetFileForUpdate(ctx context.Context, id int64) (*models.AccreditationFile, error) {
	query := fmt.Sprintf("SELECT %s FROM accreditation_files WHERE id = ? FOR UPDATE", accreditationColumns)
	var file models.AccreditationFile
	if err := s.tx.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *reviewTxStore) UpdateFileStatus(ctx context.Context, id int64, status models.FileStatus, reason *string) error {
	const query = `UPDATE accreditation_files SET status = ?, reason = ?, updated_at = ? WHERE id = ?`
	if _, err := s.tx.ExecContext(ctx, query, status, reason, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}

func (s *reviewTxStore) ListCycleFiles(ctx context.Context, orgID int64, group models.DocGroup, period models.Period) ([]models.AccreditationFile, error) {
	query := fmt.Sprintf("SELECT %s FROM accreditation_files WHERE %s", accreditationColumns, cycleCondition)
	var files []models.AccreditationFile
	if err := s.tx.SelectContext(ctx, &files, query, orgID, group, period.StartYear, period.EndYear, period.ActiveYear); err != nil {
		return nil, fmt.Errorf("list cycle files: %w", err)
	}
	return files, nil
}

func (s *reviewTxStore) GetOrganizationForUpdate(ctx context.Context, id int64) (*models.Organization, error) {
	query := fmt.Sprintf("SELECT %s FROM organizations WHERE id = ? FOR UPDATE", organizationColumns)
	var org models.Organization
	if err := s.tx.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *reviewTxStore) UpdateOrganizationStatus(ctx context.Context, id int64, status models.OrgStatus) error {
	const query = `UPDATE organizations SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := s.tx.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// AcademicYearRepository handles persistence for academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository instantiates an academic year repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// FindActive returns the most recent academic year marked ACTIVE.
func (r *AcademicYearRepository) FindActive(ctx context.Context) (*models.AcademicYear, error) {
	const query = `SELECT id, start_year, end_year, active_year, status, created_at, updated_at
FROM academic_years WHERE status = 'ACTIVE' ORDER BY start_year DESC LIMIT 1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindByID loads an academic year by identifier.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id int64) (*models.AcademicYear, error) {
	const query = `SELECT id, start_year, end_year, active_year, status, created_at, updated_at
FROM academic_years WHERE id = ?`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// List returns all academic years, newest span first.
func (r *AcademicYearRepository) List(ctx context.Context) ([]models.AcademicYear, error) {
	const query = `SELECT id, start_year, end_year, active_year, status, created_at, updated_at
FROM academic_years ORDER BY start_year DESC, active_year DESC`
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}

// ExistsBySpan checks whether a year row already covers the span/active triple.
func (r *AcademicYearRepository) ExistsBySpan(ctx context.Context, startYear, endYear, activeYear int) (bool, error) {
	const query = `SELECT COUNT(*) FROM academic_years WHERE start_year = ? AND end_year = ? AND active_year = ?`
	var count int
	if err := r.db.GetContext(ctx, &count, query, startYear, endYear, activeYear); err != nil {
		return false, fmt.Errorf("check academic year uniqueness: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new academic year record.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (start_year, end_year, active_year, status, created_at, updated_at)
VALUES (:start_year, :end_year, :active_year, :status, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, year)
	if err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		year.ID = id
	}
	return nil
}

// SetActive marks the provided year as the single ACTIVE one and closes the rest.
func (r *AcademicYearRepository) SetActive(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET status = 'CLOSED', updated_at = ? WHERE status = 'ACTIVE' AND id <> ?`, now, id); err != nil {
		return fmt.Errorf("close other academic years: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET status = 'ACTIVE', updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("activate academic year: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active tx: %w", err)
	}
	return nil
}

// Close marks a single academic year as CLOSED.
func (r *AcademicYearRepository) Close(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE academic_years SET status = 'CLOSED', updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("close academic year: %w", err)
	}
	return nil
}

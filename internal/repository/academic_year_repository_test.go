package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
)

func newAcademicYearRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAcademicYearRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newAcademicYearRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM academic_years WHERE status = 'ACTIVE'").
		WillReturnRows(sqlmock.NewRows([]string{"id", "start_year", "end_year", "active_year", "status", "created_at", "updated_at"}).
			AddRow(3, 2025, 2026, 2025, "ACTIVE", now, now))

	year, err := repo.FindActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), year.ID)
	assert.Equal(t, 2025, year.StartYear)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryFindActiveNone(t *testing.T) {
	db, mock, cleanup := newAcademicYearRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM academic_years WHERE status = 'ACTIVE'").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActive(context.Background())
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryExistsBySpan(t *testing.T) {
	db, mock, cleanup := newAcademicYearRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM academic_years WHERE start_year = ? AND end_year = ? AND active_year = ?")).
		WithArgs(2025, 2026, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsBySpan(context.Background(), 2025, 2026, 2025)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAcademicYearRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectExec("INSERT INTO academic_years").
		WithArgs(2026, 2027, 2026, models.AcademicYearClosed, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(4, 1))

	year := &models.AcademicYear{StartYear: 2026, EndYear: 2027, ActiveYear: 2026, Status: models.AcademicYearClosed}
	require.NoError(t, repo.Create(context.Background(), year))
	assert.Equal(t, int64(4), year.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositorySetActive(t *testing.T) {
	db, mock, cleanup := newAcademicYearRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE academic_years SET status = 'CLOSED'").
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE academic_years SET status = 'ACTIVE'").
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetActive(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryClose(t *testing.T) {
	db, mock, cleanup := newAcademicYearRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectExec("UPDATE academic_years SET status = 'CLOSED'").
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Close(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

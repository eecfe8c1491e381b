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

func newOrganizationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func organizationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "abbreviation", "scope", "course_abbr", "admin_id", "author_id", "status", "start_year", "end_year", "active_year", "created_at", "updated_at"})
}

func TestOrganizationRepositoryList(t *testing.T) {
	db, mock, cleanup := newOrganizationRepoMock(t)
	defer cleanup()
	repo := NewOrganizationRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE 1=1 AND start_year = \\? AND end_year = \\? ORDER BY name ASC LIMIT 20 OFFSET 0").
		WithArgs(2025, 2026).
		WillReturnRows(organizationRows().
			AddRow(1, "Robotics Guild", "RG", "general", nil, 50, 51, "PENDING", 2025, 2026, 2025, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM organizations WHERE 1=1 AND start_year = ? AND end_year = ?")).
		WithArgs(2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	orgs, total, err := repo.List(context.Background(), models.OrganizationFilter{
		Period: &models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025},
	})
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newOrganizationRepoMock(t)
	defer cleanup()
	repo := NewOrganizationRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id = \\?").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepositoryExistsByAbbreviation(t *testing.T) {
	db, mock, cleanup := newOrganizationRepoMock(t)
	defer cleanup()
	repo := NewOrganizationRepository(db)

	period := models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025}

	mock.ExpectQuery("SELECT 1 FROM organizations WHERE LOWER\\(abbreviation\\) = LOWER\\(\\?\\)").
		WithArgs("RG", 2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByAbbreviation(context.Background(), "RG", period, 0)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM organizations WHERE LOWER\\(abbreviation\\) = LOWER\\(\\?\\)").
		WithArgs("NOPE", 2025, 2026).
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByAbbreviation(context.Background(), "NOPE", period, 0)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newOrganizationRepoMock(t)
	defer cleanup()
	repo := NewOrganizationRepository(db)

	mock.ExpectExec("UPDATE organizations SET status = \\?").
		WithArgs(models.OrgStatusAccredited, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), 1, models.OrgStatusAccredited))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newOrganizationRepoMock(t)
	defer cleanup()
	repo := NewOrganizationRepository(db)

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS total FROM organizations").
		WithArgs(2025, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow("PENDING", 4).
			AddRow("ACCREDITED", 2))

	counts, err := repo.CountByStatus(context.Background(), models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025})
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.OrgStatusPending])
	assert.Equal(t, 2, counts[models.OrgStatusAccredited])
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
)

func newAccreditationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func accreditationFileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "org_id", "doc_group", "doc_type", "file_path", "status", "reason", "start_year", "end_year", "active_year", "created_at", "updated_at"})
}

func TestAccreditationRepositoryListCycleFiles(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	now := time.Now()
	rows := accreditationFileRows().
		AddRow(1, 7, "new", "vmgo", "org_7/new/vmgo_a.pdf", "approved", nil, 2025, 2026, 2025, now, now).
		AddRow(2, 7, "new", "cbl", "org_7/new/cbl_b.pdf", "submitted", nil, nil, nil, 2025, now, now)
	mock.ExpectQuery("SELECT (.+) FROM accreditation_files WHERE org_id = \\?").
		WithArgs(int64(7), models.DocGroupNew, 2025, 2026, 2025).
		WillReturnRows(rows)

	files, err := repo.ListCycleFiles(context.Background(), 7, models.DocGroupNew, models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Nil(t, files[1].StartYear)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccreditationRepositoryCountPendingFiles(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accreditation_files")).
		WithArgs(2025, 2026, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountPendingFiles(context.Background(), models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccreditationRepositoryCreateFile(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	mock.ExpectExec("INSERT INTO accreditation_files").
		WithArgs(int64(7), models.DocGroupNew, "vmgo", "org_7/new/vmgo_a.pdf", models.FileStatusSubmitted,
			nil, sqlmock.AnyArg(), sqlmock.AnyArg(), 2025, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	start, end := 2025, 2026
	file := &models.AccreditationFile{
		OrgID:      7,
		DocGroup:   models.DocGroupNew,
		DocType:    "vmgo",
		FilePath:   "org_7/new/vmgo_a.pdf",
		StartYear:  &start,
		EndYear:    &end,
		ActiveYear: 2025,
	}
	require.NoError(t, repo.CreateFile(context.Background(), file))
	assert.Equal(t, int64(42), file.ID)
	assert.Equal(t, models.FileStatusSubmitted, file.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccreditationRepositoryReplaceFile(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	mock.ExpectExec("UPDATE accreditation_files SET file_path = \\?, status = 'submitted', reason = NULL").
		WithArgs("org_7/new/vmgo_v2.pdf", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReplaceFile(context.Background(), 1, "org_7/new/vmgo_v2.pdf"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccreditationRepositoryInReviewTxCommits(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM accreditation_files WHERE id = \\? FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(accreditationFileRows().
			AddRow(1, 7, "new", "vmgo", "org_7/new/vmgo_a.pdf", "submitted", nil, 2025, 2026, 2025, now, now))
	mock.ExpectExec("UPDATE accreditation_files SET status = \\?").
		WithArgs(models.FileStatusApproved, nil, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InReviewTx(context.Background(), func(store ReviewStore) error {
		file, err := store.GetFileForUpdate(context.Background(), 1)
		if err != nil {
			return err
		}
		return store.UpdateFileStatus(context.Background(), file.ID, models.FileStatusApproved, nil)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccreditationRepositoryInReviewTxRollsBack(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	boom := errors.New("decision rejected")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.InReviewTx(context.Background(), func(store ReviewStore) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccreditationRepositoryReviewStoreTouchesOrganization(t *testing.T) {
	db, mock, cleanup := newAccreditationRepoMock(t)
	defer cleanup()
	repo := NewAccreditationRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id = \\? FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "abbreviation", "scope", "course_abbr", "admin_id", "author_id", "status", "start_year", "end_year", "active_year", "created_at", "updated_at"}).
			AddRow(7, "Robotics Guild", "RG", "general", nil, 50, 51, "PENDING", 2025, 2026, 2025, now, now))
	mock.ExpectExec("UPDATE organizations SET status = \\?").
		WithArgs(models.OrgStatusAccredited, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InReviewTx(context.Background(), func(store ReviewStore) error {
		org, err := store.GetOrganizationForUpdate(context.Background(), 7)
		if err != nil {
			return err
		}
		return store.UpdateOrganizationStatus(context.Background(), org.ID, models.OrgStatusAccredited)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

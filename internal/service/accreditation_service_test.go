package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/storage"
)

type mockFileRepo struct {
	files      map[int64]*models.AccreditationFile
	nextID     int64
	replaced   map[int64]string
	listErr    error
	cycleFiles []models.AccreditationFile
}

func newMockFileRepo() *mockFileRepo {
	return &mockFileRepo{files: map[int64]*models.AccreditationFile{}, nextID: 1, replaced: map[int64]string{}}
}

func (m *mockFileRepo) FindFileByID(_ context.Context, id int64) (*models.AccreditationFile, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *f
	return &copied, nil
}

func (m *mockFileRepo) ListFiles(_ context.Context, _ models.AccreditationFileFilter) ([]models.AccreditationFile, int, error) {
	out := make([]models.AccreditationFile, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, *f)
	}
	return out, len(out), m.listErr
}

func (m *mockFileRepo) ListCycleFiles(_ context.Context, _ int64, _ models.DocGroup, _ models.Period) ([]models.AccreditationFile, error) {
	return m.cycleFiles, m.listErr
}

func (m *mockFileRepo) CreateFile(_ context.Context, file *models.AccreditationFile) error {
	file.ID = m.nextID
	m.nextID++
	stored := *file
	m.files[file.ID] = &stored
	return nil
}

func (m *mockFileRepo) ReplaceFile(_ context.Context, id int64, filePath string) error {
	m.replaced[id] = filePath
	if f, ok := m.files[id]; ok {
		f.FilePath = filePath
		f.Status = models.FileStatusSubmitted
		f.Reason = nil
	}
	return nil
}

type mockOrgReader struct {
	orgs map[int64]*models.Organization
}

func (m *mockOrgReader) FindByID(_ context.Context, id int64) (*models.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *org
	return &copied, nil
}

type fixedPeriod struct{ period models.Period }

func (f fixedPeriod) ResolvePeriod(_ context.Context) (models.Period, error) {
	return f.period, nil
}

// uploadHeader builds a real multipart file header by round-tripping a form.
func uploadHeader(t *testing.T, filename, content string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() }) //nolint:errcheck
	return form.File["file"][0]
}

func newAccreditationFixture(t *testing.T) (*AccreditationService, *mockFileRepo, *mockOrgReader, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)

	files := newMockFileRepo()
	orgs := &mockOrgReader{orgs: map[int64]*models.Organization{
		7: {
			ID: 7, Name: "Robotics Guild", Abbreviation: "RG", Scope: models.OrgScopeGeneral,
			AdminID: testOrgAdminID, AuthorID: testOrgAuthorID,
			Status: models.OrgStatusPending, StartYear: 2025, EndYear: 2026, ActiveYear: 2025,
		},
	}}
	years := fixedPeriod{period: models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025}}
	svc := NewAccreditationService(files, orgs, years, store, signer, nil, nil, 1<<20, nil)
	return svc, files, orgs, dir
}

func orgAdminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: testOrgAdminID, Role: models.RoleOrgAdmin}
}

func TestSubmitStoresFileAndRecordsRow(t *testing.T) {
	svc, files, _, dir := newAccreditationFixture(t)

	header := uploadHeader(t, "vmgo.pdf", "vision mission goals")
	file, err := svc.Submit(context.Background(), SubmitDocumentRequest{
		OrgID:    7,
		DocGroup: models.DocGroupNew,
		DocType:  "vmgo",
		Filename: "vmgo.pdf",
		Size:     header.Size,
	}, header, orgAdminClaims())
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusSubmitted, file.Status)
	require.NotNil(t, file.StartYear)
	assert.Equal(t, 2025, *file.StartYear)
	assert.Equal(t, 2025, file.ActiveYear)
	assert.True(t, strings.HasPrefix(file.FilePath, filepath.Join("org_7", "new")), file.FilePath)
	assert.Contains(t, files.files, file.ID)

	data, err := os.ReadFile(filepath.Join(dir, file.FilePath))
	require.NoError(t, err)
	assert.Equal(t, "vision mission goals", string(data))
}

func TestSubmitRejectsUnknownDocType(t *testing.T) {
	svc, _, _, _ := newAccreditationFixture(t)

	header := uploadHeader(t, "x.pdf", "x")
	_, err := svc.Submit(context.Background(), SubmitDocumentRequest{
		OrgID:    7,
		DocGroup: models.DocGroupNew,
		DocType:  "tax_return",
		Filename: "x.pdf",
		Size:     header.Size,
	}, header, orgAdminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitDuplicateTypeConflicts(t *testing.T) {
	svc, files, _, _ := newAccreditationFixture(t)
	files.cycleFiles = []models.AccreditationFile{{ID: 1, OrgID: 7, DocGroup: models.DocGroupNew, DocType: "vmgo", Status: models.FileStatusSubmitted}}

	header := uploadHeader(t, "vmgo.pdf", "second copy")
	_, err := svc.Submit(context.Background(), SubmitDocumentRequest{
		OrgID:    7,
		DocGroup: models.DocGroupNew,
		DocType:  "vmgo",
		Filename: "vmgo.pdf",
		Size:     header.Size,
	}, header, orgAdminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitMultiAllowedTypeAcceptsSecondRow(t *testing.T) {
	svc, files, _, _ := newAccreditationFixture(t)
	files.cycleFiles = []models.AccreditationFile{{ID: 1, OrgID: 7, DocGroup: models.DocGroupNew, DocType: models.DocTypePDSOfficers, Status: models.FileStatusApproved}}

	header := uploadHeader(t, "pds2.pdf", "second officer")
	_, err := svc.Submit(context.Background(), SubmitDocumentRequest{
		OrgID:    7,
		DocGroup: models.DocGroupNew,
		DocType:  models.DocTypePDSOfficers,
		Filename: "pds2.pdf",
		Size:     header.Size,
	}, header, orgAdminClaims())
	require.NoError(t, err)
}

func TestSubmitForeignOrgAdminForbidden(t *testing.T) {
	svc, _, _, _ := newAccreditationFixture(t)

	header := uploadHeader(t, "vmgo.pdf", "x")
	_, err := svc.Submit(context.Background(), SubmitDocumentRequest{
		OrgID:    7,
		DocGroup: models.DocGroupNew,
		DocType:  "vmgo",
		Filename: "vmgo.pdf",
		Size:     header.Size,
	}, header, &models.JWTClaims{UserID: 999, Role: models.RoleOrgAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestResubmitApprovedConflicts(t *testing.T) {
	svc, files, _, _ := newAccreditationFixture(t)
	files.files[3] = &models.AccreditationFile{ID: 3, OrgID: 7, DocGroup: models.DocGroupNew, DocType: "vmgo", Status: models.FileStatusApproved}

	header := uploadHeader(t, "vmgo.pdf", "new content")
	_, err := svc.Resubmit(context.Background(), 3, header, orgAdminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestResubmitResetsDeclinedFile(t *testing.T) {
	svc, files, _, dir := newAccreditationFixture(t)

	reason := "blurry scan"
	oldRel := filepath.Join("org_7", "new", "vmgo_old.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, oldRel)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, oldRel), []byte("old"), 0o644))
	files.files[3] = &models.AccreditationFile{
		ID: 3, OrgID: 7, DocGroup: models.DocGroupNew, DocType: "vmgo",
		FilePath: oldRel, Status: models.FileStatusDeclined, Reason: &reason,
	}

	header := uploadHeader(t, "vmgo-v2.pdf", "sharper scan")
	file, err := svc.Resubmit(context.Background(), 3, header, orgAdminClaims())
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusSubmitted, file.Status)
	assert.Nil(t, file.Reason)
	assert.NotEqual(t, oldRel, file.FilePath)
	assert.Equal(t, file.FilePath, files.replaced[3])

	_, err = os.Stat(filepath.Join(dir, oldRel))
	assert.True(t, os.IsNotExist(err), "superseded upload should be removed")
}

func TestRequirementsReportsProgress(t *testing.T) {
	svc, files, _, _ := newAccreditationFixture(t)

	checklist, ok := models.ChecklistFor(models.DocGroupNew)
	require.True(t, ok)
	cycle := make([]models.AccreditationFile, 0, len(checklist.Required))
	for i, docType := range checklist.Required {
		status := models.FileStatusApproved
		if docType == "cbl" {
			status = models.FileStatusSubmitted
		}
		cycle = append(cycle, models.AccreditationFile{
			ID: int64(i + 1), OrgID: 7, DocGroup: models.DocGroupNew, DocType: docType, Status: status,
		})
	}
	files.cycleFiles = cycle

	progress, err := svc.Requirements(context.Background(), 7, models.DocGroupNew)
	require.NoError(t, err)
	assert.False(t, progress.Result.Met)
	assert.Equal(t, 1, progress.Result.PendingRows)
	assert.Empty(t, progress.Result.MissingTypes)
	assert.Equal(t, models.OrgStatusPending, progress.OrgStatus)
	assert.Len(t, progress.Files, len(checklist.Required))
}

func TestSignedDownloadRoundTrip(t *testing.T) {
	svc, files, _, _ := newAccreditationFixture(t)

	header := uploadHeader(t, "cbl.pdf", "constitution and by-laws")
	file, err := svc.Submit(context.Background(), SubmitDocumentRequest{
		OrgID:    7,
		DocGroup: models.DocGroupNew,
		DocType:  "cbl",
		Filename: "cbl.pdf",
		Size:     header.Size,
	}, header, orgAdminClaims())
	require.NoError(t, err)
	require.Contains(t, files.files, file.ID)

	grant, err := svc.SignDownload(context.Background(), file.ID, orgAdminClaims())
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
	assert.True(t, grant.ExpiresAt.After(time.Now()))

	reader, name, err := svc.OpenSigned(grant.Token)
	require.NoError(t, err)
	defer reader.Close() //nolint:errcheck

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "constitution and by-laws", string(data))
	assert.Equal(t, filepath.Base(file.FilePath), name)
}

func TestOpenSignedRejectsTamperedToken(t *testing.T) {
	svc, _, _, _ := newAccreditationFixture(t)

	_, _, err := svc.OpenSigned("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

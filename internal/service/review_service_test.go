package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
	"github.com/Serrius/Educore-sub002/internal/repository"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type mockReviewStore struct {
	files      map[int64]*models.AccreditationFile
	orgs       map[int64]*models.Organization
	orgUpdates []models.OrgStatus
}

func (m *mockReviewStore) GetFileForUpdate(ctx context.Context, id int64) (*models.AccreditationFile, error) {
	file, ok := m.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *file
	return &copied, nil
}

func (m *mockReviewStore) UpdateFileStatus(ctx context.Context, id int64, status models.FileStatus, reason *string) error {
	file := m.files[id]
	file.Status = status
	file.Reason = reason
	return nil
}

func (m *mockReviewStore) ListCycleFiles(ctx context.Context, orgID int64, group models.DocGroup, period models.Period) ([]models.AccreditationFile, error) {
	var out []models.AccreditationFile
	for _, file := range m.files {
		if file.OrgID == orgID && file.DocGroup == group && file.ActiveYear == period.ActiveYear {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (m *mockReviewStore) GetOrganizationForUpdate(ctx context.Context, id int64) (*models.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *org
	return &copied, nil
}

func (m *mockReviewStore) UpdateOrganizationStatus(ctx context.Context, id int64, status models.OrgStatus) error {
	m.orgs[id].Status = status
	m.orgUpdates = append(m.orgUpdates, status)
	return nil
}

type mockReviewTx struct {
	store     *mockReviewStore
	commits   int
	rollbacks int
}

func (m *mockReviewTx) InReviewTx(ctx context.Context, fn func(store repository.ReviewStore) error) error {
	if err := fn(m.store); err != nil {
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

type mockFinalizeOrgStore struct {
	orgs map[int64]*models.Organization
}

func (m *mockFinalizeOrgStore) FindByID(ctx context.Context, id int64) (*models.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *org
	return &copied, nil
}

func (m *mockFinalizeOrgStore) UpdateStatus(ctx context.Context, id int64, status models.OrgStatus) error {
	m.orgs[id].Status = status
	return nil
}

type sinkRecorder struct {
	sent []models.Notification
}

func (s *sinkRecorder) Send(ctx context.Context, n models.Notification) {
	s.sent = append(s.sent, n)
}

type auditRecorder struct {
	logs []models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return nil
}

const (
	testOrgAdminID     = int64(50)
	testOrgAuthorID    = int64(51)
	testSuperAdminID   = int64(1)
	testReviewerUserID = int64(9)
)

func reviewerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: testReviewerUserID, Role: models.RoleAdmin}
}

// newCycleFixture builds an org with one file per required new-cycle type,
// everything approved except the types listed in overrides.
func newCycleFixture(overrides map[string]models.FileStatus) (*mockReviewStore, int64) {
	store := &mockReviewStore{
		files: make(map[int64]*models.AccreditationFile),
		orgs: map[int64]*models.Organization{
			1: {
				ID: 1, Name: "Robotics Guild", Abbreviation: "RG",
				AdminID: testOrgAdminID, AuthorID: testOrgAuthorID,
				Status:    models.OrgStatusPending,
				StartYear: 2025, EndYear: 2026, ActiveYear: 2025,
			},
		},
	}
	checklist, _ := models.ChecklistFor(models.DocGroupNew)
	start, end := 2025, 2026
	var id int64
	var lastID int64
	for _, docType := range checklist.Required {
		id++
		status := models.FileStatusApproved
		if s, ok := overrides[docType]; ok {
			status = s
		}
		store.files[id] = &models.AccreditationFile{
			ID: id, OrgID: 1, DocGroup: models.DocGroupNew, DocType: docType,
			FilePath: "org_1/new/" + docType + ".pdf", Status: status,
			StartYear: &start, EndYear: &end, ActiveYear: 2025,
		}
		if _, ok := overrides[docType]; ok {
			lastID = id
		}
	}
	return store, lastID
}

func newReviewService(tx *mockReviewTx, sink *sinkRecorder, audit *auditRecorder) *ReviewService {
	return NewReviewService(tx, nil, sink, audit, nil, nil, testSuperAdminID)
}

func TestReviewDocumentMarksReviewedWithoutTouchingOrg(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"cbl": models.FileStatusSubmitted})
	tx := &mockReviewTx{store: store}
	sink := &sinkRecorder{}
	svc := newReviewService(tx, sink, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionReview,
	}, reviewerClaims())
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusReviewed, result.FileStatus)
	assert.False(t, result.OrgStatusUpdated)
	assert.Equal(t, models.OrgStatusPending, store.orgs[1].Status)
	assert.Empty(t, store.orgUpdates)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, models.NotifTypeDocumentReviewed, sink.sent[0].NotifType)
	assert.Equal(t, testOrgAdminID, sink.sent[0].RecipientID)
	assert.Equal(t, 1, tx.commits)
}

func TestApproveLastRequiredDocumentPromotes(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusSubmitted})
	tx := &mockReviewTx{store: store}
	sink := &sinkRecorder{}
	audit := &auditRecorder{}
	svc := newReviewService(tx, sink, audit)

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusApproved, result.FileStatus)
	assert.True(t, result.RequirementsMet)
	assert.True(t, result.OrgStatusUpdated)
	require.NotNil(t, result.OrgNewStatus)
	assert.Equal(t, models.OrgStatusAccredited, *result.OrgNewStatus)
	assert.Equal(t, models.OrgStatusAccredited, store.orgs[1].Status)

	// one document-approved notification plus promotion fan-out to
	// admin, author and superadmin
	require.Len(t, sink.sent, 4)
	assert.Equal(t, models.NotifTypeDocumentApproved, sink.sent[0].NotifType)
	recipients := []int64{sink.sent[1].RecipientID, sink.sent[2].RecipientID, sink.sent[3].RecipientID}
	assert.ElementsMatch(t, []int64{testOrgAdminID, testOrgAuthorID, testSuperAdminID}, recipients)
	for _, n := range sink.sent[1:] {
		assert.Equal(t, models.NotifTypeOrgAccredited, n.NotifType)
	}

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionDocumentReview, audit.logs[0].Action)
}

func TestApproveWithPendingRowDoesNotPromote(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{
		"evaluation": models.FileStatusSubmitted,
		"cbl":        models.FileStatusReviewed,
	})
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	// approving evaluation leaves cbl still awaiting a decision
	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)

	assert.False(t, result.RequirementsMet)
	assert.False(t, result.OrgStatusUpdated)
	assert.Equal(t, models.OrgStatusPending, store.orgs[1].Status)
}

func TestApproveWithDeclinedTypeDoesNotPromote(t *testing.T) {
	store, _ := newCycleFixture(map[string]models.FileStatus{
		"evaluation": models.FileStatusSubmitted,
		"cbl":        models.FileStatusDeclined,
	})
	var evalID int64
	for id, f := range store.files {
		if f.DocType == "evaluation" {
			evalID = id
		}
	}
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: evalID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)

	// the declined cbl leaves its checklist item unsatisfied
	assert.False(t, result.RequirementsMet)
	assert.Equal(t, models.OrgStatusPending, store.orgs[1].Status)
}

func TestDeclineResetsOrganizationToPending(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusSubmitted})
	store.orgs[1].Status = models.OrgStatusAccredited
	tx := &mockReviewTx{store: store}
	sink := &sinkRecorder{}
	svc := newReviewService(tx, sink, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionDecline,
		Reason: "document is unsigned",
	}, reviewerClaims())
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusDeclined, result.FileStatus)
	assert.True(t, result.OrgStatusUpdated)
	require.NotNil(t, result.OrgNewStatus)
	assert.Equal(t, models.OrgStatusPending, *result.OrgNewStatus)
	assert.Equal(t, models.OrgStatusPending, store.orgs[1].Status)

	require.NotNil(t, store.files[fileID].Reason)
	assert.Equal(t, "document is unsigned", *store.files[fileID].Reason)

	require.Len(t, sink.sent, 1)
	assert.Equal(t, models.NotifTypeDocumentDeclined, sink.sent[0].NotifType)
	assert.Contains(t, sink.sent[0].Message, "document is unsigned")
}

func TestDeclineRequiresReason(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusSubmitted})
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	_, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionDecline,
		Reason: "   ",
	}, reviewerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.FileStatusSubmitted, store.files[fileID].Status)
}

func TestRepeatedTerminalDecisionConflicts(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusDeclined})
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	_, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionDecline,
		Reason: "still wrong",
	}, reviewerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, tx.rollbacks)

	store2, approvedID := newCycleFixture(nil)
	// pick any approved file
	if approvedID == 0 {
		approvedID = 1
	}
	svc2 := newReviewService(&mockReviewTx{store: store2}, &sinkRecorder{}, &auditRecorder{})
	_, err = svc2.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: approvedID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestApproveDeclinedFileReversesDecline(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusDeclined})
	reason := "previously declined"
	store.files[fileID].Reason = &reason
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusApproved, result.FileStatus)
	assert.Nil(t, store.files[fileID].Reason)
	assert.True(t, result.RequirementsMet)
	assert.Equal(t, models.OrgStatusAccredited, store.orgs[1].Status)
}

func TestReviewMissingFileReturnsNotFound(t *testing.T) {
	store, _ := newCycleFixture(nil)
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	_, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: 9999,
		Action: models.ActionReview,
	}, reviewerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMultiAllowedTypeNeedsOneApprovedRow(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusSubmitted})
	// a second pds_officers row that was declined must not block promotion
	start, end := 2025, 2026
	store.files[100] = &models.AccreditationFile{
		ID: 100, OrgID: 1, DocGroup: models.DocGroupNew, DocType: models.DocTypePDSOfficers,
		Status: models.FileStatusDeclined, StartYear: &start, EndYear: &end, ActiveYear: 2025,
	}
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)

	assert.True(t, result.RequirementsMet)
	assert.Equal(t, models.OrgStatusAccredited, store.orgs[1].Status)
}

func TestReaccreditationPromotesToReaccredited(t *testing.T) {
	store := &mockReviewStore{
		files: make(map[int64]*models.AccreditationFile),
		orgs: map[int64]*models.Organization{
			2: {
				ID: 2, Name: "Chess Circle", Abbreviation: "CC",
				AdminID: testOrgAdminID, AuthorID: testOrgAuthorID,
				Status:    models.OrgStatusAccredited,
				StartYear: 2025, EndYear: 2026, ActiveYear: 2026,
			},
		},
	}
	checklist, _ := models.ChecklistFor(models.DocGroupReaccreditation)
	start, end := 2025, 2026
	var id, lastID int64
	for _, docType := range checklist.Required {
		id++
		status := models.FileStatusApproved
		if docType == "contact_details" {
			status = models.FileStatusSubmitted
			lastID = id
		}
		store.files[id] = &models.AccreditationFile{
			ID: id, OrgID: 2, DocGroup: models.DocGroupReaccreditation, DocType: docType,
			Status: status, StartYear: &start, EndYear: &end, ActiveYear: 2026,
		}
	}
	tx := &mockReviewTx{store: store}
	sink := &sinkRecorder{}
	svc := newReviewService(tx, sink, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: lastID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)

	require.NotNil(t, result.OrgNewStatus)
	assert.Equal(t, models.OrgStatusReaccredited, *result.OrgNewStatus)
	assert.Equal(t, models.OrgStatusReaccredited, store.orgs[2].Status)
	for _, n := range sink.sent[1:] {
		assert.Equal(t, models.NotifTypeOrgReaccredited, n.NotifType)
	}
}

func TestLegacyRowsWithoutSpanStillCount(t *testing.T) {
	store, fileID := newCycleFixture(map[string]models.FileStatus{"evaluation": models.FileStatusSubmitted})
	// strip the span from the file being decided; the org's span takes over
	store.files[fileID].StartYear = nil
	store.files[fileID].EndYear = nil
	tx := &mockReviewTx{store: store}
	svc := newReviewService(tx, &sinkRecorder{}, &auditRecorder{})

	result, err := svc.ReviewDocument(context.Background(), ReviewDocumentRequest{
		FileID: fileID,
		Action: models.ActionApprove,
	}, reviewerClaims())
	require.NoError(t, err)
	assert.True(t, result.RequirementsMet)
}

func TestFinalizeForcesStatus(t *testing.T) {
	orgs := &mockFinalizeOrgStore{orgs: map[int64]*models.Organization{
		7: {ID: 7, Name: "Dance Troupe", AdminID: testOrgAdminID, AuthorID: testOrgAuthorID, Status: models.OrgStatusPending},
	}}
	sink := &sinkRecorder{}
	audit := &auditRecorder{}
	svc := NewReviewService(&mockReviewTx{store: &mockReviewStore{}}, orgs, sink, audit, nil, nil, testSuperAdminID)

	org, err := svc.Finalize(context.Background(), FinalizeRequest{OrgID: 7, Mode: "reaccredit"}, reviewerClaims())
	require.NoError(t, err)

	assert.Equal(t, models.OrgStatusReaccredited, org.Status)
	assert.Equal(t, models.OrgStatusReaccredited, orgs.orgs[7].Status)
	assert.NotEmpty(t, sink.sent)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionOrgFinalize, audit.logs[0].Action)
}

func TestFinalizeMissingOrgNotFound(t *testing.T) {
	orgs := &mockFinalizeOrgStore{orgs: map[int64]*models.Organization{}}
	svc := NewReviewService(&mockReviewTx{store: &mockReviewStore{}}, orgs, &sinkRecorder{}, &auditRecorder{}, nil, nil, testSuperAdminID)

	_, err := svc.Finalize(context.Background(), FinalizeRequest{OrgID: 404, Mode: "accredit"}, reviewerClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEvaluateChecklistReportsMissingTypes(t *testing.T) {
	checklist, ok := models.ChecklistFor(models.DocGroupNew)
	require.True(t, ok)

	result := evaluateChecklist(checklist, []models.AccreditationFile{
		{DocType: "cbl", Status: models.FileStatusApproved},
		{DocType: "vmgo", Status: models.FileStatusDeclined},
	})

	assert.False(t, result.Met)
	assert.Zero(t, result.PendingRows)
	assert.Contains(t, result.MissingTypes, "vmgo")
	assert.Contains(t, result.MissingTypes, models.DocTypePDSOfficers)
	assert.NotContains(t, result.MissingTypes, "cbl")
	assert.Equal(t, 1, result.ApprovedPerType["cbl"])
}

func TestEvaluateChecklistPendingTypeNotMissing(t *testing.T) {
	checklist, ok := models.ChecklistFor(models.DocGroupNew)
	require.True(t, ok)

	result := evaluateChecklist(checklist, []models.AccreditationFile{
		{DocType: "cbl", Status: models.FileStatusSubmitted},
	})

	assert.False(t, result.Met)
	assert.Equal(t, 1, result.PendingRows)
	assert.NotContains(t, result.MissingTypes, "cbl")
	assert.Contains(t, result.MissingTypes, "vmgo")
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/storage"
)

type accreditationFileRepository interface {
	FindFileByID(ctx context.Context, id int64) (*models.AccreditationFile, error)
	ListFiles(ctx context.Context, filter models.AccreditationFileFilter) ([]models.AccreditationFile, int, error)
	ListCycleFiles(ctx context.Context, orgID int64, group models.DocGroup, period models.Period) ([]models.AccreditationFile, error)
	CreateFile(ctx context.Context, file *models.AccreditationFile) error
	ReplaceFile(ctx context.Context, id int64, filePath string) error
}

type accreditationOrgReader interface {
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
}

// SubmitDocumentRequest uploads one document into an organization's cycle.
type SubmitDocumentRequest struct {
	OrgID    int64           `validate:"required"`
	DocGroup models.DocGroup `validate:"required,oneof=new reaccreditation"`
	DocType  string          `validate:"required"`
	Filename string          `validate:"required"`
	Size     int64
}

// SignedDownload is a ready-to-use time-limited download grant.
type SignedDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequirementsProgress reports how far an organization's cycle is from
// promotion.
type RequirementsProgress struct {
	OrgID     int64                      `json:"org_id"`
	DocGroup  models.DocGroup            `json:"doc_group"`
	OrgStatus models.OrgStatus           `json:"org_status"`
	Result    models.RequirementResult   `json:"result"`
	Files     []models.AccreditationFile `json:"files"`
}

// AccreditationService handles document intake, listing, resubmission and
// signed downloads. Review decisions live in ReviewService.
type AccreditationService struct {
	files        accreditationFileRepository
	orgs         accreditationOrgReader
	years        periodResolver
	store        *storage.LocalStorage
	signer       *storage.SignedURLSigner
	validator    *validator.Validate
	logger       *zap.Logger
	maxFileSize  int64
	allowedMIMEs map[string]bool
}

// NewAccreditationService constructs the document intake service.
func NewAccreditationService(files accreditationFileRepository, orgs accreditationOrgReader, years periodResolver, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, maxFileSize int64, allowedMIMEs []string) *AccreditationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	mimes := make(map[string]bool, len(allowedMIMEs))
	for _, m := range allowedMIMEs {
		mimes[strings.ToLower(m)] = true
	}
	return &AccreditationService{
		files:        files,
		orgs:         orgs,
		years:        years,
		store:        store,
		signer:       signer,
		validator:    validate,
		logger:       logger,
		maxFileSize:  maxFileSize,
		allowedMIMEs: mimes,
	}
}

// Submit stores an uploaded document and records its row in submitted state.
func (s *AccreditationService) Submit(ctx context.Context, req SubmitDocumentRequest, header *multipart.FileHeader, actor *models.JWTClaims) (*models.AccreditationFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	checklist, ok := models.ChecklistFor(req.DocGroup)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document group")
	}
	if !checklist.KnownDocType(req.DocType) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("document type %q does not belong to the %s checklist", req.DocType, req.DocGroup))
	}
	if req.Size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}

	org, err := s.orgs.FindByID(ctx, req.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeSubmit(org, actor); err != nil {
		return nil, err
	}

	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}

	// One active row per (type, cycle) except for multi-allowed types.
	// Re-uploading an existing row goes through Resubmit instead.
	if !checklist.MultiAllowed[req.DocType] {
		existing, err := s.files.ListCycleFiles(ctx, org.ID, req.DocGroup, period)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect cycle documents")
		}
		for _, f := range existing {
			if f.DocType == req.DocType {
				return nil, appErrors.Clone(appErrors.ErrConflict,
					fmt.Sprintf("a %s document already exists for this cycle; resubmit it instead", req.DocType))
			}
		}
	}

	relPath, err := s.storeUpload(org.ID, req, header)
	if err != nil {
		return nil, err
	}

	file := &models.AccreditationFile{
		OrgID:      org.ID,
		DocGroup:   req.DocGroup,
		DocType:    req.DocType,
		FilePath:   relPath,
		Status:     models.FileStatusSubmitted,
		StartYear:  &period.StartYear,
		EndYear:    &period.EndYear,
		ActiveYear: period.ActiveYear,
	}
	if err := s.files.CreateFile(ctx, file); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	s.logger.Info("document submitted",
		zap.Int64("file_id", file.ID),
		zap.Int64("org_id", org.ID),
		zap.String("doc_type", req.DocType),
		zap.String("doc_group", string(req.DocGroup)))
	return file, nil
}

// Resubmit replaces a document's stored file and resets it to submitted,
// clearing any decline reason. This is the organization's path back after a
// decline.
func (s *AccreditationService) Resubmit(ctx context.Context, fileID int64, header *multipart.FileHeader, actor *models.JWTClaims) (*models.AccreditationFile, error) {
	file, err := s.files.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "accreditation file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load accreditation file")
	}
	if file.Status == models.FileStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "approved documents cannot be replaced")
	}
	if header == nil || header.Size > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is missing or exceeds the maximum allowed size")
	}

	org, err := s.orgs.FindByID(ctx, file.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeSubmit(org, actor); err != nil {
		return nil, err
	}

	relPath, err := s.storeUpload(org.ID, SubmitDocumentRequest{
		OrgID:    org.ID,
		DocGroup: file.DocGroup,
		DocType:  file.DocType,
		Filename: header.Filename,
		Size:     header.Size,
	}, header)
	if err != nil {
		return nil, err
	}

	oldPath := file.FilePath
	if err := s.files.ReplaceFile(ctx, file.ID, relPath); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace document")
	}
	if oldPath != "" && oldPath != relPath {
		if err := s.store.Delete(oldPath); err != nil {
			s.logger.Warn("failed to delete superseded upload", zap.String("path", oldPath), zap.Error(err))
		}
	}

	file.FilePath = relPath
	file.Status = models.FileStatusSubmitted
	file.Reason = nil
	s.logger.Info("document resubmitted", zap.Int64("file_id", file.ID), zap.Int64("org_id", org.ID))
	return file, nil
}

// List returns documents matching the filter, scoped to the active year when
// no period is given.
func (s *AccreditationService) List(ctx context.Context, filter models.AccreditationFileFilter) ([]models.AccreditationFile, *models.Pagination, error) {
	if filter.Period == nil {
		period, err := s.years.ResolvePeriod(ctx)
		if err != nil {
			return nil, nil, err
		}
		filter.Period = &period
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	files, total, err := s.files.ListFiles(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return files, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Requirements evaluates an organization's cycle against its checklist
// without changing anything, for progress display.
func (s *AccreditationService) Requirements(ctx context.Context, orgID int64, group models.DocGroup) (*RequirementsProgress, error) {
	checklist, ok := models.ChecklistFor(group)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document group")
	}

	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}

	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListCycleFiles(ctx, orgID, group, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cycle documents")
	}

	return &RequirementsProgress{
		OrgID:     orgID,
		DocGroup:  group,
		OrgStatus: org.Status,
		Result:    evaluateChecklist(checklist, files),
		Files:     files,
	}, nil
}

// SignDownload issues a time-limited download token for a stored document.
func (s *AccreditationService) SignDownload(ctx context.Context, fileID int64, actor *models.JWTClaims) (*SignedDownload, error) {
	file, err := s.files.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "accreditation file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load accreditation file")
	}

	org, err := s.orgs.FindByID(ctx, file.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeDownload(org, actor); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(fmt.Sprintf("accreditation:%d", file.ID), file.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &SignedDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenSigned validates a signed token and opens the referenced file stream.
// The caller owns closing the reader.
func (s *AccreditationService) OpenSigned(token string) (io.ReadCloser, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	reader, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "stored file not found")
	}
	return reader, filepath.Base(relPath), nil
}

func (s *AccreditationService) storeUpload(orgID int64, req SubmitDocumentRequest, header *multipart.FileHeader) (string, error) {
	if header == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file upload is required")
	}
	if len(s.allowedMIMEs) > 0 {
		contentType := strings.ToLower(header.Header.Get("Content-Type"))
		if contentType != "" && !s.allowedMIMEs[contentType] {
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("content type %s is not allowed", contentType))
		}
	}

	src, err := header.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	defer src.Close() //nolint:errcheck

	ext := filepath.Ext(req.Filename)
	relPath := filepath.Join(
		fmt.Sprintf("org_%d", orgID),
		string(req.DocGroup),
		fmt.Sprintf("%s_%s%s", req.DocType, uuid.NewString(), ext),
	)
	if _, err := s.store.SaveStream(relPath, src); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return relPath, nil
}

func (s *AccreditationService) authorizeSubmit(org *models.Organization, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleOrgAdmin:
		if org.AdminID == actor.UserID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to submit for this organization")
}

func (s *AccreditationService) authorizeDownload(org *models.Organization, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleOrgAdmin:
		if org.AdminID == actor.UserID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to download this document")
}

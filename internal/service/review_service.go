package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	"github.com/Serrius/Educore-sub002/internal/repository"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type reviewDocumentStore interface {
	InReviewTx(ctx context.Context, fn func(store repository.ReviewStore) error) error
}

type reviewOrganizationStore interface {
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
	UpdateStatus(ctx context.Context, id int64, status models.OrgStatus) error
}

// NotificationSink receives workflow notifications. Implementations must be
// fire-and-forget: a failed send is logged, never surfaced, so a reviewer's
// decision is never blocked by notification delivery.
type NotificationSink interface {
	Send(ctx context.Context, notification models.Notification)
}

// NotificationSinkFunc allows using plain functions as sinks.
type NotificationSinkFunc func(ctx context.Context, notification models.Notification)

// Send implements NotificationSink.
func (f NotificationSinkFunc) Send(ctx context.Context, notification models.Notification) {
	f(ctx, notification)
}

// ReviewDocumentRequest is a reviewer's decision on one document.
type ReviewDocumentRequest struct {
	FileID int64               `json:"file_id" validate:"required"`
	Action models.ReviewAction `json:"action" validate:"required,oneof=review approve decline"`
	Reason string              `json:"reason"`
}

// FinalizeRequest forces an organization's accreditation status regardless of
// document state.
type FinalizeRequest struct {
	OrgID int64  `json:"org_id" validate:"required"`
	Mode  string `json:"mode" validate:"required,oneof=accredit reaccredit"`
}

// ReviewService is the accreditation review engine. It applies per-document
// decisions, re-evaluates the cycle's requirement checklist and promotes or
// demotes the owning organization inside one transaction.
//
// Promotion policy: automatic. A satisfied checklist promotes the
// organization on the approving call itself; Finalize remains available as a
// manual escape hatch but the engine never requires it.
type ReviewService struct {
	docs         reviewDocumentStore
	orgs         reviewOrganizationStore
	sink         NotificationSink
	audit        auditLogger
	validator    *validator.Validate
	logger       *zap.Logger
	superAdminID int64
}

// NewReviewService constructs the review engine.
func NewReviewService(docs reviewDocumentStore, orgs reviewOrganizationStore, sink NotificationSink, audit auditLogger, validate *validator.Validate, logger *zap.Logger, superAdminID int64) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NotificationSinkFunc(func(context.Context, models.Notification) {})
	}
	return &ReviewService{
		docs:         docs,
		orgs:         orgs,
		sink:         sink,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		superAdminID: superAdminID,
	}
}

// ReviewDocument applies one reviewer decision and returns its effect.
func (s *ReviewService) ReviewDocument(ctx context.Context, req ReviewDocumentRequest, reviewer *models.JWTClaims) (*models.ReviewResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Action == models.ActionDecline && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decline requires a reason")
	}

	result := &models.ReviewResult{FileID: req.FileID}
	var org *models.Organization
	var file *models.AccreditationFile

	err := s.docs.InReviewTx(ctx, func(store repository.ReviewStore) error {
		var err error
		file, err = store.GetFileForUpdate(ctx, req.FileID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "accreditation file not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load accreditation file")
		}

		if !transitionAllowed(file.Status, req.Action) {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot %s a %s document", req.Action, file.Status))
		}

		target := targetStatus(req.Action)
		var reasonPtr *string
		if req.Action == models.ActionDecline {
			reasonPtr = &reason
		}
		if err := store.UpdateFileStatus(ctx, file.ID, target, reasonPtr); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document status")
		}
		result.FileStatus = target

		org, err = store.GetOrganizationForUpdate(ctx, file.OrgID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "organization not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
		}

		switch req.Action {
		case models.ActionDecline:
			// A single declined document invalidates the whole cycle
			// until resubmitted and re-approved.
			if err := store.UpdateOrganizationStatus(ctx, org.ID, models.OrgStatusPending); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset organization status")
			}
			if org.Status != models.OrgStatusPending {
				result.OrgStatusUpdated = true
				pending := models.OrgStatusPending
				result.OrgNewStatus = &pending
			}

		case models.ActionApprove:
			checklist, ok := models.ChecklistFor(file.DocGroup)
			if !ok {
				return appErrors.Clone(appErrors.ErrValidation, "unknown document group")
			}
			period := cyclePeriod(file, org)
			files, err := store.ListCycleFiles(ctx, org.ID, file.DocGroup, period)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cycle documents")
			}
			evaluation := evaluateChecklist(checklist, files)
			result.RequirementsMet = evaluation.Met
			if evaluation.Met {
				promoted := checklist.PromotedStatus()
				if org.Status != promoted {
					if err := store.UpdateOrganizationStatus(ctx, org.ID, promoted); err != nil {
						return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote organization")
					}
					result.OrgStatusUpdated = true
					result.OrgNewStatus = &promoted
				}
			}

		case models.ActionReview:
			// Marking a document reviewed is an intermediate human
			// checkpoint; the organization status never moves here.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDecision(ctx, req.Action, reason, file, org, result, reviewer)
	s.emitAudit(ctx, reviewer, models.AuditActionDocumentReview, "accreditation_file", file.ID,
		[]byte(fmt.Sprintf(`{"action":%q,"file_status":%q}`, req.Action, result.FileStatus)))

	return result, nil
}

// Finalize unconditionally sets an organization's accreditation status. It is
// the manual escape hatch next to the automatic promotion path.
func (s *ReviewService) Finalize(ctx context.Context, req FinalizeRequest, actor *models.JWTClaims) (*models.Organization, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finalize payload")
	}

	org, err := s.orgs.FindByID(ctx, req.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}

	status := models.OrgStatusAccredited
	if req.Mode == "reaccredit" {
		status = models.OrgStatusReaccredited
	}
	if err := s.orgs.UpdateStatus(ctx, org.ID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize organization")
	}
	org.Status = status

	s.notifyPromotion(ctx, org, status, actor)
	s.emitAudit(ctx, actor, models.AuditActionOrgFinalize, "organization", org.ID,
		[]byte(fmt.Sprintf(`{"mode":%q,"status":%q}`, req.Mode, status)))

	return org, nil
}

// transitionAllowed guards the per-document state machine:
// submitted -> {reviewed, approved, declined}; reviewed -> {approved,
// declined}; re-reviewing a reviewed file is a no-op, repeating a terminal
// decision is a conflict. A reviewer may approve a declined file directly,
// reversing the decline without forcing resubmission.
func transitionAllowed(current models.FileStatus, action models.ReviewAction) bool {
	switch action {
	case models.ActionReview:
		return current == models.FileStatusSubmitted || current == models.FileStatusReviewed
	case models.ActionApprove:
		return current != models.FileStatusApproved
	case models.ActionDecline:
		return current != models.FileStatusDeclined
	}
	return false
}

func targetStatus(action models.ReviewAction) models.FileStatus {
	switch action {
	case models.ActionApprove:
		return models.FileStatusApproved
	case models.ActionDecline:
		return models.FileStatusDeclined
	default:
		return models.FileStatusReviewed
	}
}

// cyclePeriod resolves the year span a document belongs to, falling back to
// the organization's denormalized span for legacy rows without one.
func cyclePeriod(file *models.AccreditationFile, org *models.Organization) models.Period {
	period := models.Period{ActiveYear: file.ActiveYear}
	if file.StartYear != nil && file.EndYear != nil {
		period.StartYear = *file.StartYear
		period.EndYear = *file.EndYear
		return period
	}
	period.StartYear = org.StartYear
	period.EndYear = org.EndYear
	return period
}

// evaluateChecklist compares a cycle's document rows against its checklist.
// The requirement is met when every required type has at least one approved
// row and no row of the cycle still awaits a decision. A type whose only rows
// are pending is counted in PendingRows, not MissingTypes; declined rows do
// not block the pending count but leave their checklist item missing until
// resubmitted.
func evaluateChecklist(checklist models.Checklist, files []models.AccreditationFile) models.RequirementResult {
	approved := make(map[string]int)
	pendingByType := make(map[string]int)
	pending := 0
	for _, file := range files {
		switch file.Status {
		case models.FileStatusApproved:
			approved[file.DocType]++
		case models.FileStatusDeclined:
			// outstanding but not pending
		default:
			pendingByType[file.DocType]++
			pending++
		}
	}

	var missing []string
	for _, docType := range checklist.Required {
		if approved[docType] == 0 && pendingByType[docType] == 0 {
			missing = append(missing, docType)
		}
	}

	return models.RequirementResult{
		Met:             len(missing) == 0 && pending == 0,
		MissingTypes:    missing,
		PendingRows:     pending,
		ApprovedPerType: approved,
	}
}

func (s *ReviewService) notifyDecision(ctx context.Context, action models.ReviewAction, reason string, file *models.AccreditationFile, org *models.Organization, result *models.ReviewResult, reviewer *models.JWTClaims) {
	var actorID int64
	if reviewer != nil {
		actorID = reviewer.UserID
	}
	fileID := file.ID
	docLabel := strings.ReplaceAll(file.DocType, "_", " ")

	switch action {
	case models.ActionReview:
		s.sink.Send(ctx, models.Notification{
			RecipientID: org.AdminID,
			ActorID:     actorID,
			Title:       "Document under review",
			Message:     fmt.Sprintf("Your %s for %s has been reviewed and returned for revision.", docLabel, org.Name),
			NotifType:   models.NotifTypeDocumentReviewed,
			PayloadID:   &fileID,
		})
	case models.ActionApprove:
		s.sink.Send(ctx, models.Notification{
			RecipientID: org.AdminID,
			ActorID:     actorID,
			Title:       "Document approved",
			Message:     fmt.Sprintf("Your %s for %s has been approved.", docLabel, org.Name),
			NotifType:   models.NotifTypeDocumentApproved,
			PayloadID:   &fileID,
		})
	case models.ActionDecline:
		s.sink.Send(ctx, models.Notification{
			RecipientID: org.AdminID,
			ActorID:     actorID,
			Title:       "Document declined",
			Message:     fmt.Sprintf("Your %s for %s was declined: %s", docLabel, org.Name, reason),
			NotifType:   models.NotifTypeDocumentDeclined,
			PayloadID:   &fileID,
		})
	}

	if result.OrgStatusUpdated && result.OrgNewStatus != nil &&
		(*result.OrgNewStatus == models.OrgStatusAccredited || *result.OrgNewStatus == models.OrgStatusReaccredited) {
		s.notifyPromotion(ctx, org, *result.OrgNewStatus, reviewer)
	}
}

func (s *ReviewService) notifyPromotion(ctx context.Context, org *models.Organization, status models.OrgStatus, actor *models.JWTClaims) {
	var actorID int64
	if actor != nil {
		actorID = actor.UserID
	}
	orgID := org.ID

	notifType := models.NotifTypeOrgAccredited
	verb := "accredited"
	if status == models.OrgStatusReaccredited {
		notifType = models.NotifTypeOrgReaccredited
		verb = "reaccredited"
	}
	title := fmt.Sprintf("Organization %s", verb)
	message := fmt.Sprintf("%s has been %s for the current academic year.", org.Name, verb)

	recipients := []int64{org.AdminID}
	if org.AuthorID != 0 && org.AuthorID != org.AdminID {
		recipients = append(recipients, org.AuthorID)
	}
	if s.superAdminID != 0 && s.superAdminID != org.AdminID && s.superAdminID != org.AuthorID {
		recipients = append(recipients, s.superAdminID)
	}
	for _, recipient := range recipients {
		s.sink.Send(ctx, models.Notification{
			RecipientID: recipient,
			ActorID:     actorID,
			Title:       title,
			Message:     message,
			NotifType:   notifType,
			PayloadID:   &orgID,
		})
	}
}

func (s *ReviewService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resource string, resourceID int64, payload []byte) {
	if s.audit == nil {
		return
	}
	var userID *int64
	if actor != nil {
		userID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

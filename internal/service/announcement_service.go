package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id int64) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id int64) error
}

type announcementRecipientSource interface {
	ListIDsByRole(ctx context.Context, roles ...models.UserRole) ([]int64, error)
}

type announcementOrgReader interface {
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
}

type notificationBroadcaster interface {
	Broadcast(ctx context.Context, recipients []int64, template models.Notification) error
}

// CreateAnnouncementRequest publishes a new announcement.
type CreateAnnouncementRequest struct {
	Title       string     `json:"title" validate:"required,min=3,max=200"`
	Content     string     `json:"content" validate:"required"`
	Audience    string     `json:"audience" validate:"required,oneof=ALL ORG_ADMINS STUDENTS ORG"`
	TargetOrgID *int64     `json:"target_org_id"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	IsPinned    bool       `json:"is_pinned"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UpdateAnnouncementRequest edits an announcement in place.
type UpdateAnnouncementRequest struct {
	Title     string     `json:"title" validate:"required,min=3,max=200"`
	Content   string     `json:"content" validate:"required"`
	Priority  string     `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	IsPinned  bool       `json:"is_pinned"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// AnnouncementService publishes audience-targeted announcements and fans the
// corresponding notifications out to each recipient.
type AnnouncementService struct {
	repo      announcementRepository
	users     announcementRecipientSource
	orgs      announcementOrgReader
	broadcast notificationBroadcaster
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the announcement service.
func NewAnnouncementService(repo announcementRepository, users announcementRecipientSource, orgs announcementOrgReader, broadcast notificationBroadcaster, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, users: users, orgs: orgs, broadcast: broadcast, validator: validate, logger: logger}
}

// ListVisible returns the announcements the caller's role and organizations
// can see, pinned and newest first.
func (s *AnnouncementService) ListVisible(ctx context.Context, actor *models.JWTClaims, orgIDs []int64, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	filter := models.AnnouncementFilter{
		AudienceRoles: []models.UserRole{actor.Role},
		OrgIDs:        orgIDs,
		Page:          page,
		PageSize:      pageSize,
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get loads one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id int64) (*models.Announcement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

// Create publishes an announcement and notifies its audience.
func (s *AnnouncementService) Create(ctx context.Context, req CreateAnnouncementRequest, author *models.JWTClaims) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	audience := models.AnnouncementAudience(req.Audience)
	if audience == models.AnnouncementAudienceOrg && req.TargetOrgID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "org-targeted announcements require a target organization")
	}

	priority := models.AnnouncementPriority(req.Priority)
	if priority == "" {
		priority = models.AnnouncementPriorityNormal
	}

	var authorID int64
	if author != nil {
		authorID = author.UserID
	}
	announcement := &models.Announcement{
		Title:       req.Title,
		Content:     req.Content,
		Audience:    audience,
		TargetOrgID: req.TargetOrgID,
		Priority:    priority,
		IsPinned:    req.IsPinned,
		PublishedAt: time.Now().UTC(),
		ExpiresAt:   req.ExpiresAt,
		CreatedBy:   authorID,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}

	s.fanOut(ctx, announcement)
	s.logger.Info("announcement published",
		zap.Int64("id", announcement.ID),
		zap.String("audience", string(announcement.Audience)))
	return announcement, nil
}

// Update edits an announcement. Audience is immutable after publication so
// already-delivered notifications keep matching the row.
func (s *AnnouncementService) Update(ctx context.Context, id int64, req UpdateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	announcement.Title = req.Title
	announcement.Content = req.Content
	if req.Priority != "" {
		announcement.Priority = models.AnnouncementPriority(req.Priority)
	}
	announcement.IsPinned = req.IsPinned
	announcement.ExpiresAt = req.ExpiresAt
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	return announcement, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

func (s *AnnouncementService) fanOut(ctx context.Context, announcement *models.Announcement) {
	if s.broadcast == nil {
		return
	}
	recipients, err := s.resolveRecipients(ctx, announcement)
	if err != nil {
		s.logger.Warn("failed to resolve announcement recipients",
			zap.Int64("announcement_id", announcement.ID), zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	announcementID := announcement.ID
	if err := s.broadcast.Broadcast(ctx, recipients, models.Notification{
		ActorID:   announcement.CreatedBy,
		Title:     announcement.Title,
		Message:   announcement.Content,
		NotifType: models.NotifTypeAnnouncement,
		PayloadID: &announcementID,
	}); err != nil {
		s.logger.Warn("failed to broadcast announcement",
			zap.Int64("announcement_id", announcement.ID), zap.Error(err))
	}
}

func (s *AnnouncementService) resolveRecipients(ctx context.Context, announcement *models.Announcement) ([]int64, error) {
	switch announcement.Audience {
	case models.AnnouncementAudienceAll:
		return s.users.ListIDsByRole(ctx, models.RoleOrgAdmin, models.RoleStudent)
	case models.AnnouncementAudienceOrgAdmins:
		return s.users.ListIDsByRole(ctx, models.RoleOrgAdmin)
	case models.AnnouncementAudienceStudents:
		return s.users.ListIDsByRole(ctx, models.RoleStudent)
	case models.AnnouncementAudienceOrg:
		if announcement.TargetOrgID == nil {
			return nil, nil
		}
		org, err := s.orgs.FindByID(ctx, *announcement.TargetOrgID)
		if err != nil {
			return nil, err
		}
		return []int64{org.AdminID}, nil
	default:
		return nil, nil
	}
}

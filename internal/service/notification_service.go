package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
	"github.com/Serrius/Educore-sub002/pkg/jobs"
)

type notificationRepository interface {
	Insert(ctx context.Context, notification *models.Notification) error
	InsertBatch(ctx context.Context, recipients []int64, template models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, id, recipientID int64) (bool, error)
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type unreadCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const jobTypeNotification = "notification.deliver"

// NotificationService persists and queries notifications. Workflow services
// hand it notifications through the Sink; delivery runs on a background worker
// queue so decisions never wait on the insert.
type NotificationService struct {
	repo   notificationRepository
	cache  unreadCache
	queue  *jobs.Queue
	logger *zap.Logger
	ttl    time.Duration
}

// NewNotificationService wires the notification store, the unread-count cache
// and the async dispatch queue.
func NewNotificationService(repo notificationRepository, cache unreadCache, logger *zap.Logger, queueCfg jobs.QueueConfig, unreadTTL time.Duration) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if unreadTTL <= 0 {
		unreadTTL = time.Minute
	}
	s := &NotificationService{repo: repo, cache: cache, logger: logger, ttl: unreadTTL}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.deliver, queueCfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Send implements NotificationSink. It enqueues the notification for
// asynchronous delivery and never returns an error; an enqueue failure is
// logged and the notification dropped, since sender workflows must not block
// on it.
func (s *NotificationService) Send(_ context.Context, notification models.Notification) {
	if notification.RecipientID == 0 {
		return
	}
	if notification.Status == "" {
		notification.Status = models.NotificationUnread
	}
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeNotification,
		Payload: notification,
	}); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.Int64("recipient_id", notification.RecipientID),
			zap.String("notif_type", notification.NotifType),
			zap.Error(err))
	}
}

// Broadcast inserts the same notification for every recipient in one batch,
// used by announcements. Runs synchronously since callers already run in a
// background-tolerant path.
func (s *NotificationService) Broadcast(ctx context.Context, recipients []int64, template models.Notification) error {
	if len(recipients) == 0 {
		return nil
	}
	if template.Status == "" {
		template.Status = models.NotificationUnread
	}
	if err := s.repo.InsertBatch(ctx, recipients, template); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to broadcast notification")
	}
	s.invalidateUnread(ctx, recipients...)
	return nil
}

// List returns a recipient's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if filter.RecipientID == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "recipient is required")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// CountUnread returns the unread badge count, served from cache when warm.
func (s *NotificationService) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	key := unreadCacheKey(recipientID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, s.ttl); err != nil {
			s.logger.Debug("failed to cache unread count", zap.Int64("recipient_id", recipientID), zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead flips one notification to read for its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID int64) error {
	updated, err := s.repo.MarkRead(ctx, id, recipientID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}

// MarkAllRead flips every unread notification of the recipient.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, recipientID)
	return updated, nil
}

// Prune deletes notifications older than the cutoff, returning how many rows
// went away. Meant for a periodic maintenance job.
func (s *NotificationService) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	deleted, err := s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prune notifications")
	}
	if deleted > 0 {
		s.logger.Info("pruned notifications", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload type", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Insert(ctx, &notification); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	s.invalidateUnread(ctx, notification.RecipientID)
	return nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, recipients ...int64) {
	if s.cache == nil {
		return
	}
	for _, recipient := range recipients {
		if err := s.cache.DeleteByPattern(ctx, unreadCacheKey(recipient)); err != nil {
			s.logger.Debug("failed to invalidate unread cache", zap.Int64("recipient_id", recipient), zap.Error(err))
		}
	}
}

func unreadCacheKey(recipientID int64) string {
	return fmt.Sprintf("notifications:unread:%d", recipientID)
}

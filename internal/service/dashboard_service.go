package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type dashboardOrgSource interface {
	CountByStatus(ctx context.Context, period models.Period) (map[models.OrgStatus]int, error)
}

type dashboardFileSource interface {
	CountPendingFiles(ctx context.Context, period models.Period) (int, error)
}

type dashboardFeeSource interface {
	TotalCollected(ctx context.Context, period models.Period) (float64, error)
}

type dashboardNotificationSource interface {
	CountUnread(ctx context.Context, recipientID int64) (int, error)
}

// DashboardSummary is the admin landing-page snapshot for the active year.
// UnreadNotifications is computed per viewer and never cached with the rest.
type DashboardSummary struct {
	Period              models.Period            `json:"period"`
	OrgCounts           map[models.OrgStatus]int `json:"org_counts"`
	PendingDocuments    int                      `json:"pending_documents"`
	TotalCollected      float64                  `json:"total_collected"`
	UnreadNotifications int                      `json:"unread_notifications"`
	GeneratedAt         time.Time                `json:"generated_at"`
}

// DashboardService aggregates counts for the admin overview, cached briefly
// since the queries cross three tables.
type DashboardService struct {
	orgs          dashboardOrgSource
	files         dashboardFileSource
	fees          dashboardFeeSource
	notifications dashboardNotificationSource
	years         periodResolver
	cache         unreadCache
	metrics       *MetricsService
	logger        *zap.Logger
	ttl           time.Duration
}

// NewDashboardService constructs the dashboard aggregator.
func NewDashboardService(orgs dashboardOrgSource, files dashboardFileSource, fees dashboardFeeSource, notifications dashboardNotificationSource, years periodResolver, cache unreadCache, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &DashboardService{
		orgs:          orgs,
		files:         files,
		fees:          fees,
		notifications: notifications,
		years:         years,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		ttl:           cacheTTL,
	}
}

// Summary builds the active-year snapshot, served from cache when warm. The
// second return reports whether the aggregate came from cache.
func (s *DashboardService) Summary(ctx context.Context, viewer *models.JWTClaims) (*DashboardSummary, bool, error) {
	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, false, err
	}

	key := fmt.Sprintf("dashboard:summary:%d:%d:%d", period.StartYear, period.EndYear, period.ActiveYear)
	if s.cache != nil {
		var cached DashboardSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			s.overlayUnread(ctx, &cached, viewer)
			return &cached, true, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	counts, err := s.orgs.CountByStatus(ctx, period)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count organizations")
	}
	pending, err := s.files.CountPendingFiles(ctx, period)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending documents")
	}
	collected, err := s.fees.TotalCollected(ctx, period)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total fee collections")
	}

	summary := &DashboardSummary{
		Period:           period,
		OrgCounts:        counts,
		PendingDocuments: pending,
		TotalCollected:   collected,
		GeneratedAt:      time.Now().UTC(),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
			s.logger.Debug("failed to cache dashboard summary", zap.Error(err))
		}
	}
	s.overlayUnread(ctx, summary, viewer)
	return summary, false, nil
}

func (s *DashboardService) overlayUnread(ctx context.Context, summary *DashboardSummary, viewer *models.JWTClaims) {
	summary.UnreadNotifications = 0
	if s.notifications == nil || viewer == nil {
		return
	}
	unread, err := s.notifications.CountUnread(ctx, viewer.UserID)
	if err != nil {
		s.logger.Debug("failed to count unread notifications", zap.Error(err))
		return
	}
	summary.UnreadNotifications = unread
}

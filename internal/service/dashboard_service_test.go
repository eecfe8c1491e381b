package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serrius/Educore-sub002/internal/models"
)

type stubDashOrgs struct{ counts map[models.OrgStatus]int }

func (s stubDashOrgs) CountByStatus(ctx context.Context, period models.Period) (map[models.OrgStatus]int, error) {
	return s.counts, nil
}

type stubDashFiles struct{ pending int }

func (s stubDashFiles) CountPendingFiles(ctx context.Context, period models.Period) (int, error) {
	return s.pending, nil
}

type stubDashFees struct{ collected float64 }

func (s stubDashFees) TotalCollected(ctx context.Context, period models.Period) (float64, error) {
	return s.collected, nil
}

type stubDashNotifications struct{ unread map[int64]int }

func (s *stubDashNotifications) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	return s.unread[recipientID], nil
}

type memoryCache struct{ data map[string][]byte }

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.data = map[string][]byte{}
	return nil
}

func TestDashboardSummaryCachesAggregateButNotUnread(t *testing.T) {
	notifications := &stubDashNotifications{unread: map[int64]int{2: 4}}
	years := fixedPeriod{period: models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025}}
	svc := NewDashboardService(
		stubDashOrgs{counts: map[models.OrgStatus]int{models.OrgStatusPending: 3, models.OrgStatusAccredited: 5}},
		stubDashFiles{pending: 7},
		stubDashFees{collected: 1500.50},
		notifications,
		years,
		newMemoryCache(),
		nil,
		nil,
		time.Minute,
	)

	summary, cacheHit, err := svc.Summary(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 7, summary.PendingDocuments)
	assert.Equal(t, 1500.50, summary.TotalCollected)
	assert.Equal(t, 3, summary.OrgCounts[models.OrgStatusPending])
	assert.Equal(t, 4, summary.UnreadNotifications)

	// Unread counts change between reads; the cached aggregate must not pin them.
	notifications.unread[2] = 9
	summary, cacheHit, err = svc.Summary(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, 7, summary.PendingDocuments)
	assert.Equal(t, 9, summary.UnreadNotifications)
}

func TestDashboardSummaryAnonymousViewerHasNoUnread(t *testing.T) {
	years := fixedPeriod{period: models.Period{StartYear: 2025, EndYear: 2026, ActiveYear: 2025}}
	svc := NewDashboardService(
		stubDashOrgs{counts: map[models.OrgStatus]int{}},
		stubDashFiles{},
		stubDashFees{},
		&stubDashNotifications{unread: map[int64]int{}},
		years,
		nil,
		nil,
		nil,
		time.Minute,
	)

	summary, cacheHit, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Zero(t, summary.UnreadNotifications)
}

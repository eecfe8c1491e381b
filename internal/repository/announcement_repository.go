package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// AnnouncementRepository provides persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

const announcementColumns = `id, title, content, audience, target_org_id, priority, is_pinned, published_at, expires_at, created_by, created_at, updated_at`

// List returns announcements visible to the provided audiences.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	base := "FROM announcements"
	where := []string{"published_at <= ?", "(expires_at IS NULL OR expires_at > ?)"}
	now := time.Now().UTC()
	args := []interface{}{now, now}

	allowedAudiences := map[string]struct{}{
		string(models.AnnouncementAudienceAll): {},
	}
	for _, role := range filter.AudienceRoles {
		switch role {
		case models.RoleOrgAdmin:
			allowedAudiences[string(models.AnnouncementAudienceOrgAdmins)] = struct{}{}
		case models.RoleStudent:
			allowedAudiences[string(models.AnnouncementAudienceStudents)] = struct{}{}
		case models.RoleAdmin, models.RoleSuperAdmin:
			allowedAudiences[string(models.AnnouncementAudienceOrgAdmins)] = struct{}{}
			allowedAudiences[string(models.AnnouncementAudienceStudents)] = struct{}{}
			allowedAudiences[string(models.AnnouncementAudienceOrg)] = struct{}{}
		}
	}

	if len(filter.OrgIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.OrgIDs)), ",")
		where = append(where, fmt.Sprintf("(audience <> 'ORG' OR target_org_id IN (%s))", placeholders))
		for _, id := range filter.OrgIDs {
			args = append(args, id)
		}
		allowedAudiences[string(models.AnnouncementAudienceOrg)] = struct{}{}
	}

	audiences := make([]string, 0, len(allowedAudiences))
	for v := range allowedAudiences {
		audiences = append(audiences, v)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(audiences)), ",")
	where = append(where, fmt.Sprintf("audience IN (%s)", placeholders))
	for _, a := range audiences {
		args = append(args, a)
	}

	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s
%s WHERE %s
ORDER BY is_pinned DESC, priority DESC, published_at DESC
LIMIT %d OFFSET %d`, announcementColumns, base, whereClause, size, offset)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// GetByID returns an announcement by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id int64) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s FROM announcements WHERE id = ?", announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = now

	const query = `INSERT INTO announcements (title, content, audience, target_org_id, priority, is_pinned, published_at, expires_at, created_by, created_at, updated_at)
VALUES (:title, :content, :audience, :target_org_id, :priority, :is_pinned, :published_at, :expires_at, :created_by, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, announcement)
	if err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		announcement.ID = id
	}
	return nil
}

// Update modifies an existing announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, audience = :audience, target_org_id = :target_org_id,
priority = :priority, is_pinned = :is_pinned, published_at = :published_at, expires_at = :expires_at, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}

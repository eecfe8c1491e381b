package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// NotificationRepository provides persistence for notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert appends a notification row.
func (r *NotificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if notification.Status == "" {
		notification.Status = models.NotificationUnread
	}

	const query = `INSERT INTO notifications (recipient_id, actor_id, title, message, notif_type, payload_id, status, created_at)
VALUES (:recipient_id, :actor_id, :title, :message, :notif_type, :payload_id, :status, :created_at)`
	res, err := r.db.NamedExecContext(ctx, query, notification)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		notification.ID = id
	}
	return nil
}

// List returns a recipient's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := "FROM notifications WHERE recipient_id = ?"
	args := []interface{}{filter.RecipientID}
	if filter.Status != "" {
		base += " AND status = ?"
		args = append(args, filter.Status)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, recipient_id, actor_id, title, message, notif_type, payload_id, status, created_at
%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// CountUnread returns the number of unread notifications for a recipient.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND status = 'unread'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips one notification to read, scoped to its recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status = 'read' WHERE id = ? AND recipient_id = ?`, id, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected > 0, nil
}

// MarkAllRead flips every unread notification of a recipient to read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status = 'read' WHERE recipient_id = ? AND status = 'unread'`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected, nil
}

// DeleteOlderThan prunes read notifications past the retention window.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE status = 'read' AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// InsertBatch appends one notification per recipient in a single statement.
func (r *NotificationRepository) InsertBatch(ctx context.Context, recipients []int64, template models.Notification) error {
	if len(recipients) == 0 {
		return nil
	}
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}
	if template.Status == "" {
		template.Status = models.NotificationUnread
	}

	values := make([]string, 0, len(recipients))
	args := make([]interface{}, 0, len(recipients)*8)
	for _, recipient := range recipients {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, recipient, template.ActorID, template.Title, template.Message, template.NotifType, template.PayloadID, template.Status, template.CreatedAt)
	}

	query := "INSERT INTO notifications (recipient_id, actor_id, title, message, notif_type, payload_id, status, created_at) VALUES " + strings.Join(values, ", ")
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert notification batch: %w", err)
	}
	return nil
}

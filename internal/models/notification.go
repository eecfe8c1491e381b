package models

import "time"

// NotificationStatus marks whether the recipient has opened the notification.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// Notification types emitted by the portal workflows.
const (
	NotifTypeDocumentReviewed = "document_reviewed"
	NotifTypeDocumentApproved = "document_approved"
	NotifTypeDocumentDeclined = "document_declined"
	NotifTypeOrgAccredited    = "org_accredited"
	NotifTypeOrgReaccredited  = "org_reaccredited"
	NotifTypeAnnouncement     = "announcement"
	NotifTypePaymentRecorded  = "payment_recorded"
)

// Notification is one recipient-addressed message row. The review engine only
// appends; marking read happens through the notification endpoints.
type Notification struct {
	ID          int64              `db:"id" json:"id"`
	RecipientID int64              `db:"recipient_id" json:"recipient_id"`
	ActorID     int64              `db:"actor_id" json:"actor_id"`
	Title       string             `db:"title" json:"title"`
	Message     string             `db:"message" json:"message"`
	NotifType   string             `db:"notif_type" json:"notif_type"`
	PayloadID   *int64             `db:"payload_id" json:"payload_id,omitempty"`
	Status      NotificationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	RecipientID int64
	Status      NotificationStatus
	Page        int
	PageSize    int
}

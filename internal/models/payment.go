package models

import "time"

// PaymentMethod enumerates how a fee payment was settled.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodOnline   PaymentMethod = "ONLINE"
)

// Payment records one settled fee for one payer.
type Payment struct {
	ID          int64         `db:"id" json:"id"`
	FeeID       int64         `db:"fee_id" json:"fee_id"`
	PayerID     int64         `db:"payer_id" json:"payer_id"`
	Amount      float64       `db:"amount" json:"amount"`
	Method      PaymentMethod `db:"method" json:"method"`
	ReferenceNo *string       `db:"reference_no" json:"reference_no,omitempty"`
	RecordedBy  int64         `db:"recorded_by" json:"recorded_by"`
	PaidAt      time.Time     `db:"paid_at" json:"paid_at"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	FeeID    int64
	PayerID  int64
	Page     int
	PageSize int
}

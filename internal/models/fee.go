package models

import "time"

// Fee is a collectible charge an organization levies for one year span.
type Fee struct {
	ID         int64      `db:"id" json:"id"`
	OrgID      int64      `db:"org_id" json:"org_id"`
	Name       string     `db:"name" json:"name"`
	Amount     float64    `db:"amount" json:"amount"`
	DueDate    *time.Time `db:"due_date" json:"due_date,omitempty"`
	StartYear  int        `db:"start_year" json:"start_year"`
	EndYear    int        `db:"end_year" json:"end_year"`
	ActiveYear int        `db:"active_year" json:"active_year"`
	CreatedBy  int64      `db:"created_by" json:"created_by"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FeeFilter narrows fee listings.
type FeeFilter struct {
	OrgID    int64
	Period   *Period
	Search   string
	Page     int
	PageSize int
}

// FeeCollectionSummary aggregates payments recorded against one fee.
type FeeCollectionSummary struct {
	FeeID      int64   `db:"fee_id" json:"fee_id"`
	FeeName    string  `db:"fee_name" json:"fee_name"`
	Amount     float64 `db:"amount" json:"amount"`
	PayerCount int     `db:"payer_count" json:"payer_count"`
	Collected  float64 `db:"collected" json:"collected"`
}

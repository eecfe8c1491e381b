package models

import "time"

// LedgerEntryType distinguishes money flowing into and out of an
// organization's event bookkeeping.
type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "CREDIT"
	LedgerDebit  LedgerEntryType = "DEBIT"
)

// LedgerEntry is one append-only credit or debit line tied to an
// organization event.
type LedgerEntry struct {
	ID          int64           `db:"id" json:"id"`
	OrgID       int64           `db:"org_id" json:"org_id"`
	EventName   string          `db:"event_name" json:"event_name"`
	EntryType   LedgerEntryType `db:"entry_type" json:"entry_type"`
	Amount      float64         `db:"amount" json:"amount"`
	Description *string         `db:"description" json:"description,omitempty"`
	StartYear   int             `db:"start_year" json:"start_year"`
	EndYear     int             `db:"end_year" json:"end_year"`
	ActiveYear  int             `db:"active_year" json:"active_year"`
	RecordedBy  int64           `db:"recorded_by" json:"recorded_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	OrgID     int64
	EntryType LedgerEntryType
	EventName string
	Period    *Period
	Page      int
	PageSize  int
}

// LedgerBalance is the running total per organization and period.
type LedgerBalance struct {
	OrgID       int64   `db:"org_id" json:"org_id"`
	TotalCredit float64 `db:"total_credit" json:"total_credit"`
	TotalDebit  float64 `db:"total_debit" json:"total_debit"`
	Balance     float64 `db:"balance" json:"balance"`
}

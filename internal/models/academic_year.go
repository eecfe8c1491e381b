package models

import "time"

// AcademicYearStatus distinguishes the single active school year from closed ones.
type AcademicYearStatus string

const (
	AcademicYearActive AcademicYearStatus = "ACTIVE"
	AcademicYearClosed AcademicYearStatus = "CLOSED"
)

// AcademicYear models one school year span. Exactly one row is ACTIVE at a time.
type AcademicYear struct {
	ID         int64              `db:"id" json:"id"`
	StartYear  int                `db:"start_year" json:"start_year"`
	EndYear    int                `db:"end_year" json:"end_year"`
	ActiveYear int                `db:"active_year" json:"active_year"`
	Status     AcademicYearStatus `db:"status" json:"status"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `db:"updated_at" json:"updated_at"`
}

// Period is the year-span value object passed explicitly into every
// year-scoped operation. Year-scoped entities carry a denormalized copy of it
// so historical snapshots survive year rollover.
type Period struct {
	StartYear  int `json:"start_year"`
	EndYear    int `json:"end_year"`
	ActiveYear int `json:"active_year"`
}

// PeriodOf extracts the period triple from an academic year row.
func PeriodOf(year AcademicYear) Period {
	return Period{StartYear: year.StartYear, EndYear: year.EndYear, ActiveYear: year.ActiveYear}
}

// Valid reports whether the active year points at one end of the span.
func (p Period) Valid() bool {
	return p.StartYear > 0 && p.EndYear > p.StartYear &&
		(p.ActiveYear == p.StartYear || p.ActiveYear == p.EndYear)
}

package models

import "time"

// OrgScope determines whether membership is open campus-wide or restricted to
// one course.
type OrgScope string

const (
	OrgScopeGeneral   OrgScope = "general"
	OrgScopeExclusive OrgScope = "exclusive"
)

// OrgStatus is the organization accreditation state. PENDING organizations are
// promoted by the review engine once their document checklist is satisfied and
// demoted back whenever a document of the active cycle is declined.
type OrgStatus string

const (
	OrgStatusPending      OrgStatus = "PENDING"
	OrgStatusAccredited   OrgStatus = "ACCREDITED"
	OrgStatusReaccredited OrgStatus = "REACCREDITED"
)

// Organization represents a campus organization for one year span.
type Organization struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Abbreviation string    `db:"abbreviation" json:"abbreviation"`
	Scope        OrgScope  `db:"scope" json:"scope"`
	CourseAbbr   *string   `db:"course_abbr" json:"course_abbr,omitempty"`
	AdminID      int64     `db:"admin_id" json:"admin_id"`
	AuthorID     int64     `db:"author_id" json:"author_id"`
	Status       OrgStatus `db:"status" json:"status"`
	StartYear    int       `db:"start_year" json:"start_year"`
	EndYear      int       `db:"end_year" json:"end_year"`
	ActiveYear   int       `db:"active_year" json:"active_year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Period returns the denormalized year span carried by the organization.
func (o Organization) Period() Period {
	return Period{StartYear: o.StartYear, EndYear: o.EndYear, ActiveYear: o.ActiveYear}
}

// OrganizationFilter captures list filters for organizations.
type OrganizationFilter struct {
	Scope     OrgScope
	Status    OrgStatus
	Period    *Period
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

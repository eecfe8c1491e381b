package models

import "time"

// DocGroup identifies the submission cycle a document belongs to.
type DocGroup string

const (
	DocGroupNew             DocGroup = "new"
	DocGroupReaccreditation DocGroup = "reaccreditation"
)

// FileStatus is the review state of a single uploaded document.
type FileStatus string

const (
	FileStatusSubmitted FileStatus = "submitted"
	FileStatusReviewed  FileStatus = "reviewed"
	FileStatusApproved  FileStatus = "approved"
	FileStatusDeclined  FileStatus = "declined"
)

// ReviewAction is a reviewer's decision on one document.
type ReviewAction string

const (
	ActionReview  ReviewAction = "review"
	ActionApprove ReviewAction = "approve"
	ActionDecline ReviewAction = "decline"
)

// The special document type that allows multiple rows, satisfied once at
// least one of them is approved.
const DocTypePDSOfficers = "pds_officers"

// AccreditationFile is one uploaded document of an organization's submission
// cycle. Rows are never deleted; a declined file is replaced by resubmission
// which resets its status to submitted.
type AccreditationFile struct {
	ID         int64      `db:"id" json:"id"`
	OrgID      int64      `db:"org_id" json:"org_id"`
	DocGroup   DocGroup   `db:"doc_group" json:"doc_group"`
	DocType    string     `db:"doc_type" json:"doc_type"`
	FilePath   string     `db:"file_path" json:"file_path"`
	Status     FileStatus `db:"status" json:"status"`
	Reason     *string    `db:"reason" json:"reason,omitempty"`
	StartYear  *int       `db:"start_year" json:"start_year,omitempty"`
	EndYear    *int       `db:"end_year" json:"end_year,omitempty"`
	ActiveYear int        `db:"active_year" json:"active_year"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Checklist declares the document requirements of one submission cycle as
// data, so checklist changes never touch transition logic. Every type in
// Required needs at least one approved row; MultiAllowed types may have any
// number of rows as long as one is approved; Optional types never block
// promotion.
type Checklist struct {
	Group        DocGroup
	Required     []string
	MultiAllowed map[string]bool
	Optional     map[string]bool
}

var newChecklist = Checklist{
	Group: DocGroupNew,
	Required: []string{
		"concept_paper",
		"vmgo",
		"logo_explanation",
		"org_chart",
		"officers_list",
		"members_list",
		"adviser_moderator_acceptance",
		"proposed_program",
		"awfp",
		"cbl",
		"bank_passbook",
		"accomplishment_report",
		"financial_statement",
		"trainings_report",
		"presidents_report",
		"advisers_report",
		"evaluation",
		"contact_details",
		DocTypePDSOfficers,
	},
	MultiAllowed: map[string]bool{DocTypePDSOfficers: true},
}

var reaccreditationChecklist = Checklist{
	Group: DocGroupReaccreditation,
	Required: []string{
		"officers_list",
		"members_list",
		"adviser_moderator_acceptance",
		"awfp",
		"cbl",
		"bank_passbook",
		"accomplishment_report",
		"financial_statement",
		"trainings_report",
		"presidents_report",
		"advisers_report",
		"evaluation",
		"contact_details",
		DocTypePDSOfficers,
	},
	MultiAllowed: map[string]bool{DocTypePDSOfficers: true},
	Optional:     map[string]bool{"general_program": true},
}

// ChecklistFor returns the requirement checklist for the given cycle.
func ChecklistFor(group DocGroup) (Checklist, bool) {
	switch group {
	case DocGroupNew:
		return newChecklist, true
	case DocGroupReaccreditation:
		return reaccreditationChecklist, true
	default:
		return Checklist{}, false
	}
}

// KnownDocType reports whether the type belongs to the cycle's checklist,
// including optional types.
func (c Checklist) KnownDocType(docType string) bool {
	for _, t := range c.Required {
		if t == docType {
			return true
		}
	}
	return c.Optional[docType]
}

// PromotedStatus is the organization status a satisfied cycle promotes to.
func (c Checklist) PromotedStatus() OrgStatus {
	if c.Group == DocGroupReaccreditation {
		return OrgStatusReaccredited
	}
	return OrgStatusAccredited
}

// RequirementResult is the outcome of evaluating a cycle's document set
// against its checklist.
type RequirementResult struct {
	Met             bool           `json:"met"`
	MissingTypes    []string       `json:"missing_types"`
	PendingRows     int            `json:"pending_rows"`
	ApprovedPerType map[string]int `json:"approved_per_type"`
}

// ReviewResult reports the effect of a single review decision.
type ReviewResult struct {
	FileID           int64      `json:"file_id"`
	FileStatus       FileStatus `json:"file_status"`
	OrgStatusUpdated bool       `json:"org_status_updated"`
	OrgNewStatus     *OrgStatus `json:"org_new_status,omitempty"`
	RequirementsMet  bool       `json:"requirements_met"`
}

// AccreditationFileFilter narrows file listings.
type AccreditationFileFilter struct {
	OrgID    int64
	DocGroup DocGroup
	Status   FileStatus
	Period   *Period
	Page     int
	PageSize int
}

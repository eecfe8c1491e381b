package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type organizationRepository interface {
	List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error)
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
	ExistsByAbbreviation(ctx context.Context, abbreviation string, period models.Period, excludeID int64) (bool, error)
	Create(ctx context.Context, org *models.Organization) error
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id int64) error
}

type periodResolver interface {
	ResolvePeriod(ctx context.Context) (models.Period, error)
}

// CreateOrganizationRequest registers a new organization for the active year.
type CreateOrganizationRequest struct {
	Name         string  `json:"name" validate:"required,min=3,max=150"`
	Abbreviation string  `json:"abbreviation" validate:"required,min=2,max=20"`
	Scope        string  `json:"scope" validate:"required,oneof=general exclusive"`
	CourseAbbr   *string `json:"course_abbr"`
	AdminID      int64   `json:"admin_id" validate:"required"`
}

// UpdateOrganizationRequest edits organization details. Status is never
// editable here; only the review engine and Finalize move it.
type UpdateOrganizationRequest struct {
	Name         string  `json:"name" validate:"required,min=3,max=150"`
	Abbreviation string  `json:"abbreviation" validate:"required,min=2,max=20"`
	Scope        string  `json:"scope" validate:"required,oneof=general exclusive"`
	CourseAbbr   *string `json:"course_abbr"`
	AdminID      int64   `json:"admin_id" validate:"required"`
}

// OrganizationService manages organization records scoped to the active
// academic year.
type OrganizationService struct {
	repo      organizationRepository
	years     periodResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrganizationService constructs the organization service.
func NewOrganizationService(repo organizationRepository, years periodResolver, validate *validator.Validate, logger *zap.Logger) *OrganizationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{repo: repo, years: years, validator: validate, logger: logger}
}

// List returns organizations matching the filter. When no explicit period is
// given the active academic year scopes the listing.
func (s *OrganizationService) List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, *models.Pagination, error) {
	if filter.Period == nil {
		period, err := s.years.ResolvePeriod(ctx)
		if err != nil {
			return nil, nil, err
		}
		filter.Period = &period
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	orgs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organizations")
	}
	return orgs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get loads a single organization.
func (s *OrganizationService) Get(ctx context.Context, id int64) (*models.Organization, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	return org, nil
}

// Create registers an organization under the active academic year. New
// organizations always start PENDING.
func (s *OrganizationService) Create(ctx context.Context, req CreateOrganizationRequest, author *models.JWTClaims) (*models.Organization, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid organization payload")
	}
	scope := models.OrgScope(req.Scope)
	if scope == models.OrgScopeExclusive && (req.CourseAbbr == nil || strings.TrimSpace(*req.CourseAbbr) == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exclusive organizations require a course abbreviation")
	}

	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}

	// Abbreviations are stored upper-cased, so uniqueness is checked on the
	// normalized form.
	abbr := strings.ToUpper(req.Abbreviation)
	exists, err := s.repo.ExistsByAbbreviation(ctx, abbr, period, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check abbreviation uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "abbreviation already in use for this academic year")
	}

	var authorID int64
	if author != nil {
		authorID = author.UserID
	}
	org := &models.Organization{
		Name:         req.Name,
		Abbreviation: abbr,
		Scope:        scope,
		CourseAbbr:   req.CourseAbbr,
		AdminID:      req.AdminID,
		AuthorID:     authorID,
		Status:       models.OrgStatusPending,
		StartYear:    period.StartYear,
		EndYear:      period.EndYear,
		ActiveYear:   period.ActiveYear,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create organization")
	}

	s.logger.Info("organization created",
		zap.Int64("id", org.ID),
		zap.String("abbreviation", org.Abbreviation),
		zap.Int("active_year", org.ActiveYear))
	return org, nil
}

// Update edits an organization's details. ORG_ADMIN callers may only touch
// organizations they administer.
func (s *OrganizationService) Update(ctx context.Context, id int64, req UpdateOrganizationRequest, actor *models.JWTClaims) (*models.Organization, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid organization payload")
	}

	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(org, actor); err != nil {
		return nil, err
	}

	scope := models.OrgScope(req.Scope)
	if scope == models.OrgScopeExclusive && (req.CourseAbbr == nil || strings.TrimSpace(*req.CourseAbbr) == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exclusive organizations require a course abbreviation")
	}

	abbr := strings.ToUpper(req.Abbreviation)
	exists, err := s.repo.ExistsByAbbreviation(ctx, abbr, org.Period(), org.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check abbreviation uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "abbreviation already in use for this academic year")
	}

	org.Name = req.Name
	org.Abbreviation = abbr
	org.Scope = scope
	org.CourseAbbr = req.CourseAbbr
	org.AdminID = req.AdminID
	if err := s.repo.Update(ctx, org); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update organization")
	}
	return org, nil
}

// Renew copies an organization into the active academic year. The copy starts
// PENDING so it goes through reaccreditation before regaining its status.
func (s *OrganizationService) Renew(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Organization, error) {
	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(org, actor); err != nil {
		return nil, err
	}

	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}
	if org.Period() == period {
		return nil, appErrors.Clone(appErrors.ErrConflict, "organization already belongs to the active academic year")
	}
	exists, err := s.repo.ExistsByAbbreviation(ctx, org.Abbreviation, period, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check abbreviation uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "organization already renewed for the active academic year")
	}

	var actorID int64
	if actor != nil {
		actorID = actor.UserID
	}
	renewed := &models.Organization{
		Name:         org.Name,
		Abbreviation: org.Abbreviation,
		Scope:        org.Scope,
		CourseAbbr:   org.CourseAbbr,
		AdminID:      org.AdminID,
		AuthorID:     actorID,
		Status:       models.OrgStatusPending,
		StartYear:    period.StartYear,
		EndYear:      period.EndYear,
		ActiveYear:   period.ActiveYear,
	}
	if err := s.repo.Create(ctx, renewed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to renew organization")
	}

	s.logger.Info("organization renewed",
		zap.Int64("source_id", org.ID),
		zap.Int64("id", renewed.ID),
		zap.Int("active_year", renewed.ActiveYear))
	return renewed, nil
}

// Delete removes an organization record. Reserved for admins.
func (s *OrganizationService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete organization")
	}
	s.logger.Info("organization deleted", zap.Int64("id", id))
	return nil
}

func (s *OrganizationService) authorizeManage(org *models.Organization, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleOrgAdmin:
		if org.AdminID == actor.UserID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this organization")
}

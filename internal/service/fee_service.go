package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type feeRepository interface {
	List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, int, error)
	FindByID(ctx context.Context, id int64) (*models.Fee, error)
	Create(ctx context.Context, fee *models.Fee) error
	Update(ctx context.Context, fee *models.Fee) error
	Delete(ctx context.Context, id int64) error
	CountPayments(ctx context.Context, id int64) (int, error)
	CollectionSummary(ctx context.Context, orgID int64, period models.Period) ([]models.FeeCollectionSummary, error)
}

type feeOrgReader interface {
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
}

// CreateFeeRequest defines a new collectible fee for an organization.
type CreateFeeRequest struct {
	OrgID   int64      `json:"org_id" validate:"required"`
	Name    string     `json:"name" validate:"required,min=3,max=150"`
	Amount  float64    `json:"amount" validate:"required,gt=0"`
	DueDate *time.Time `json:"due_date"`
}

// UpdateFeeRequest edits a fee's details.
type UpdateFeeRequest struct {
	Name    string     `json:"name" validate:"required,min=3,max=150"`
	Amount  float64    `json:"amount" validate:"required,gt=0"`
	DueDate *time.Time `json:"due_date"`
}

// FeeService manages organization fees scoped to the active academic year.
type FeeService struct {
	repo      feeRepository
	orgs      feeOrgReader
	years     periodResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeService constructs the fee service.
func NewFeeService(repo feeRepository, orgs feeOrgReader, years periodResolver, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{repo: repo, orgs: orgs, years: years, validator: validate, logger: logger}
}

// List returns fees, defaulting the period to the active year.
func (s *FeeService) List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, *models.Pagination, error) {
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
	fees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	return fees, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get loads one fee.
func (s *FeeService) Get(ctx context.Context, id int64) (*models.Fee, error) {
	fee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	return fee, nil
}

// Create levies a new fee under the active academic year.
func (s *FeeService) Create(ctx context.Context, req CreateFeeRequest, actor *models.JWTClaims) (*models.Fee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}

	org, err := s.orgs.FindByID(ctx, req.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeManage(org, actor); err != nil {
		return nil, err
	}

	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}

	var creatorID int64
	if actor != nil {
		creatorID = actor.UserID
	}
	fee := &models.Fee{
		OrgID:      org.ID,
		Name:       req.Name,
		Amount:     req.Amount,
		DueDate:    req.DueDate,
		StartYear:  period.StartYear,
		EndYear:    period.EndYear,
		ActiveYear: period.ActiveYear,
		CreatedBy:  creatorID,
	}
	if err := s.repo.Create(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee")
	}

	s.logger.Info("fee created", zap.Int64("id", fee.ID), zap.Int64("org_id", org.ID), zap.Float64("amount", fee.Amount))
	return fee, nil
}

// Update edits a fee. Fees that already have payments keep their amount to
// preserve the recorded totals.
func (s *FeeService) Update(ctx context.Context, id int64, req UpdateFeeRequest, actor *models.JWTClaims) (*models.Fee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}

	fee, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.FindByID(ctx, fee.OrgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeManage(org, actor); err != nil {
		return nil, err
	}

	if req.Amount != fee.Amount {
		payments, err := s.repo.CountPayments(ctx, fee.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count fee payments")
		}
		if payments > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "cannot change the amount of a fee with recorded payments")
		}
	}

	fee.Name = req.Name
	fee.Amount = req.Amount
	fee.DueDate = req.DueDate
	if err := s.repo.Update(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee")
	}
	return fee, nil
}

// Delete removes a fee that has no recorded payments yet.
func (s *FeeService) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	fee, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	org, err := s.orgs.FindByID(ctx, fee.OrgID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeManage(org, actor); err != nil {
		return err
	}

	payments, err := s.repo.CountPayments(ctx, fee.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count fee payments")
	}
	if payments > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete a fee with recorded payments")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee")
	}
	s.logger.Info("fee deleted", zap.Int64("id", id))
	return nil
}

// CollectionSummary aggregates what each fee of the organization has
// collected during the active year.
func (s *FeeService) CollectionSummary(ctx context.Context, orgID int64) ([]models.FeeCollectionSummary, error) {
	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.CollectionSummary(ctx, orgID, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate fee collections")
	}
	return summary, nil
}

func (s *FeeService) authorizeManage(org *models.Organization, actor *models.JWTClaims) error {
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
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage fees for this organization")
}

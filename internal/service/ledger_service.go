package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type ledgerRepository interface {
	List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error)
	Create(ctx context.Context, entry *models.LedgerEntry) error
	Balance(ctx context.Context, orgID int64, period models.Period) (*models.LedgerBalance, error)
}

type ledgerOrgReader interface {
	FindByID(ctx context.Context, id int64) (*models.Organization, error)
}

// RecordLedgerEntryRequest appends one credit or debit line to an
// organization's event bookkeeping.
type RecordLedgerEntryRequest struct {
	OrgID       int64                  `json:"org_id" validate:"required"`
	EventName   string                 `json:"event_name" validate:"required,min=3,max=150"`
	EntryType   models.LedgerEntryType `json:"entry_type" validate:"required,oneof=CREDIT DEBIT"`
	Amount      float64                `json:"amount" validate:"required,gt=0"`
	Description *string                `json:"description"`
}

// LedgerService keeps append-only event bookkeeping per organization.
// Entries are never edited or deleted; corrections go in as compensating
// lines.
type LedgerService struct {
	repo      ledgerRepository
	orgs      ledgerOrgReader
	years     periodResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(repo ledgerRepository, orgs ledgerOrgReader, years periodResolver, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{repo: repo, orgs: orgs, years: years, validator: validate, logger: logger}
}

// List returns ledger lines, newest first, defaulting to the active year.
func (s *LedgerService) List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, *models.Pagination, error) {
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
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger entries")
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Record appends one ledger line under the active academic year.
func (s *LedgerService) Record(ctx context.Context, req RecordLedgerEntryRequest, actor *models.JWTClaims) (*models.LedgerEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ledger payload")
	}

	org, err := s.orgs.FindByID(ctx, req.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "organization not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if err := s.authorizeRecord(org, actor); err != nil {
		return nil, err
	}

	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}

	var recorderID int64
	if actor != nil {
		recorderID = actor.UserID
	}
	entry := &models.LedgerEntry{
		OrgID:       org.ID,
		EventName:   req.EventName,
		EntryType:   req.EntryType,
		Amount:      req.Amount,
		Description: req.Description,
		StartYear:   period.StartYear,
		EndYear:     period.EndYear,
		ActiveYear:  period.ActiveYear,
		RecordedBy:  recorderID,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record ledger entry")
	}

	s.logger.Info("ledger entry recorded",
		zap.Int64("id", entry.ID),
		zap.Int64("org_id", org.ID),
		zap.String("entry_type", string(entry.EntryType)),
		zap.Float64("amount", entry.Amount))
	return entry, nil
}

// Balance returns credit, debit and net totals for the active year.
func (s *LedgerService) Balance(ctx context.Context, orgID int64) (*models.LedgerBalance, error) {
	period, err := s.years.ResolvePeriod(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.repo.Balance(ctx, orgID, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute ledger balance")
	}
	return balance, nil
}

func (s *LedgerService) authorizeRecord(org *models.Organization, actor *models.JWTClaims) error {
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
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to record entries for this organization")
}

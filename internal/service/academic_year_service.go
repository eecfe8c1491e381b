package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type academicYearRepository interface {
	FindActive(ctx context.Context) (*models.AcademicYear, error)
	FindByID(ctx context.Context, id int64) (*models.AcademicYear, error)
	List(ctx context.Context) ([]models.AcademicYear, error)
	ExistsBySpan(ctx context.Context, startYear, endYear, activeYear int) (bool, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	SetActive(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64) error
}

// CreateAcademicYearRequest opens a new school-year span.
type CreateAcademicYearRequest struct {
	StartYear  int  `json:"start_year" validate:"required,min=2000,max=2200"`
	EndYear    int  `json:"end_year" validate:"required,gtfield=StartYear"`
	ActiveYear int  `json:"active_year" validate:"required"`
	Activate   bool `json:"activate"`
}

// AcademicYearService resolves and manages school-year spans. Every
// year-scoped read in the portal goes through ResolveActive so the "no active
// year" condition surfaces uniformly.
type AcademicYearService struct {
	repo      academicYearRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAcademicYearService constructs the academic year service.
func NewAcademicYearService(repo academicYearRepository, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{repo: repo, validator: validate, logger: logger}
}

// ResolveActive returns the single active academic year, or ErrNoActiveYear
// when the portal has not been opened for a year yet.
func (s *AcademicYearService) ResolveActive(ctx context.Context) (*models.AcademicYear, error) {
	year, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActiveYear, "no active academic year configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active academic year")
	}
	return year, nil
}

// ResolvePeriod returns the active year's period triple. Convenience wrapper
// used by year-scoped listings.
func (s *AcademicYearService) ResolvePeriod(ctx context.Context) (models.Period, error) {
	year, err := s.ResolveActive(ctx)
	if err != nil {
		return models.Period{}, err
	}
	return models.PeriodOf(*year), nil
}

// List returns all academic years, newest span first.
func (s *AcademicYearService) List(ctx context.Context) ([]models.AcademicYear, error) {
	years, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, nil
}

// Get loads one academic year.
func (s *AcademicYearService) Get(ctx context.Context, id int64) (*models.AcademicYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	return year, nil
}

// Create opens a new academic year span, optionally activating it immediately.
func (s *AcademicYearService) Create(ctx context.Context, req CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	period := models.Period{StartYear: req.StartYear, EndYear: req.EndYear, ActiveYear: req.ActiveYear}
	if !period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("active_year must be %d or %d", req.StartYear, req.EndYear))
	}

	exists, err := s.repo.ExistsBySpan(ctx, req.StartYear, req.EndYear, req.ActiveYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check academic year uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic year already exists")
	}

	year := &models.AcademicYear{
		StartYear:  req.StartYear,
		EndYear:    req.EndYear,
		ActiveYear: req.ActiveYear,
		Status:     models.AcademicYearClosed,
	}
	if err := s.repo.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}

	if req.Activate {
		if err := s.repo.SetActive(ctx, year.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate academic year")
		}
		year.Status = models.AcademicYearActive
	}

	s.logger.Info("academic year created",
		zap.Int64("id", year.ID),
		zap.Int("start_year", year.StartYear),
		zap.Int("end_year", year.EndYear),
		zap.Bool("activated", req.Activate))
	return year, nil
}

// Activate makes the given year the single active one, closing any other.
func (s *AcademicYearService) Activate(ctx context.Context, id int64) (*models.AcademicYear, error) {
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate academic year")
	}
	year.Status = models.AcademicYearActive
	s.logger.Info("academic year activated", zap.Int64("id", id))
	return year, nil
}

// CloseYear marks one academic year CLOSED without activating another.
func (s *AcademicYearService) CloseYear(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Close(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close academic year")
	}
	s.logger.Info("academic year closed", zap.Int64("id", id))
	return nil
}

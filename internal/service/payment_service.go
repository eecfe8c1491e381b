package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Serrius/Educore-sub002/internal/models"
	appErrors "github.com/Serrius/Educore-sub002/pkg/errors"
)

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, id int64) (*models.Payment, error)
	ExistsForPayer(ctx context.Context, feeID, payerID int64) (bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id int64) error
}

type paymentFeeReader interface {
	FindByID(ctx context.Context, id int64) (*models.Fee, error)
}

// RecordPaymentRequest records one payer settling one fee.
type RecordPaymentRequest struct {
	FeeID       int64                `json:"fee_id" validate:"required"`
	PayerID     int64                `json:"payer_id" validate:"required"`
	Amount      float64              `json:"amount" validate:"required,gt=0"`
	Method      models.PaymentMethod `json:"method" validate:"required,oneof=CASH TRANSFER ONLINE"`
	ReferenceNo *string              `json:"reference_no"`
	PaidAt      *time.Time           `json:"paid_at"`
}

// PaymentService records fee payments. A payer settles each fee at most once.
type PaymentService struct {
	repo      paymentRepository
	fees      paymentFeeReader
	sink      NotificationSink
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs the payment service.
func NewPaymentService(repo paymentRepository, fees paymentFeeReader, sink NotificationSink, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NotificationSinkFunc(func(context.Context, models.Notification) {})
	}
	return &PaymentService{repo: repo, fees: fees, sink: sink, audit: audit, validator: validate, logger: logger}
}

// List returns payments matching the filter.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Record stores one payment and notifies the payer.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest, actor *models.JWTClaims) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	fee, err := s.fees.FindByID(ctx, req.FeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}

	exists, err := s.repo.ExistsForPayer(ctx, fee.ID, req.PayerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check payment uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payer has already settled this fee")
	}

	var recorderID int64
	if actor != nil {
		recorderID = actor.UserID
	}
	paidAt := time.Now().UTC()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}
	payment := &models.Payment{
		FeeID:       fee.ID,
		PayerID:     req.PayerID,
		Amount:      req.Amount,
		Method:      req.Method,
		ReferenceNo: req.ReferenceNo,
		RecordedBy:  recorderID,
		PaidAt:      paidAt,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	paymentID := payment.ID
	s.sink.Send(ctx, models.Notification{
		RecipientID: req.PayerID,
		ActorID:     recorderID,
		Title:       "Payment recorded",
		Message:     fmt.Sprintf("Your payment of %.2f for %s has been recorded.", payment.Amount, fee.Name),
		NotifType:   models.NotifTypePaymentRecorded,
		PayloadID:   &paymentID,
	})

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &recorderID,
			Action:     models.AuditActionPaymentRecord,
			Resource:   "payment",
			ResourceID: &paymentID,
			NewValues:  []byte(fmt.Sprintf(`{"fee_id":%d,"payer_id":%d,"amount":%.2f}`, fee.ID, req.PayerID, payment.Amount)),
		}); err != nil {
			s.logger.Warn("failed to record payment audit log", zap.Error(err))
		}
	}

	s.logger.Info("payment recorded",
		zap.Int64("id", payment.ID),
		zap.Int64("fee_id", fee.ID),
		zap.Int64("payer_id", req.PayerID))
	return payment, nil
}

// Void removes a mistakenly recorded payment. Reserved for admins.
func (s *PaymentService) Void(ctx context.Context, id int64, actor *models.JWTClaims) error {
	if actor == nil || (actor.Role != models.RoleSuperAdmin && actor.Role != models.RoleAdmin) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may void payments")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to void payment")
	}
	s.logger.Info("payment voided", zap.Int64("id", id), zap.Int64("voided_by", actor.UserID))
	return nil
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Serrius/Educore-sub002/internal/models"
)

// PaymentRepository provides persistence for fee payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, fee_id, payer_id, amount, method, reference_no, recorded_by, paid_at, created_at`

// List returns payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.FeeID > 0 {
		conditions = append(conditions, "fee_id = ?")
		args = append(args, filter.FeeID)
	}
	if filter.PayerID > 0 {
		conditions = append(conditions, "payer_id = ?")
		args = append(args, filter.PayerID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY paid_at DESC LIMIT %d OFFSET %d", paymentColumns, base, size, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// FindByID loads a payment by identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = ?", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ExistsForPayer checks whether the payer already settled the fee.
func (r *PaymentRepository) ExistsForPayer(ctx context.Context, feeID, payerID int64) (bool, error) {
	const query = `SELECT COUNT(*) FROM payments WHERE fee_id = ? AND payer_id = ?`
	var count int
	if err := r.db.GetContext(ctx, &count, query, feeID, payerID); err != nil {
		return false, fmt.Errorf("check payment existence: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}

	const query = `INSERT INTO payments (fee_id, payer_id, amount, method, reference_no, recorded_by, paid_at, created_at)
VALUES (:fee_id, :payer_id, :amount, :method, :reference_no, :recorded_by, :paid_at, :created_at)`
	res, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		payment.ID = id
	}
	return nil
}

// Delete removes a payment record (corrections only).
func (r *PaymentRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

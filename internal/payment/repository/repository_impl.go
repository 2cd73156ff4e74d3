package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"gorm.io/gorm"
)

const paymentColumns = `p.id, p.school_id, p.invoice_id, p.student_id, p.amount, p.currency, p.payment_method,
	p.status, p.approval_status, p.is_voided, p.void_reason, p.voided_by, p.voided_at, p.reference,
	p.receipt_number, p.proof_url, p.narration, p.collection_point, p.recorded_by, p.approved_by,
	p.approved_at, p.review_notes, p.payment_date, p.created_at, p.updated_at`

// Only the reference constraint maps to ErrDuplicateReference; a receipt
// number collision is a sequence fault and surfaces unchanged.
const (
	referenceConstraint = "ux_payments_reference"
	referenceColumn     = "payments.reference"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, payment *domain.Payment) error {
	return mapWriteErr(scope.Create(conn.WithContext(ctx), payment))
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `p.id = ?`, "", scope.SchoolID(), id)
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `p.id = ?`, db.ForUpdate(conn), scope.SchoolID(), id)
}

func (r *repo) FindByReference(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `p.reference = ?`, "", scope.SchoolID(), reference)
}

func (r *repo) LockByReference(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, reference string) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `p.reference = ?`, db.ForUpdate(conn), scope.SchoolID(), reference)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, cond, suffix string, args ...any) (*domain.Payment, error) {
	var item domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments p
		 WHERE p.school_id = ? AND `+cond+`
		 LIMIT 1`+suffix,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByInvoice(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments p
		 WHERE p.school_id = ? AND p.invoice_id = ?
		 ORDER BY p.payment_date DESC, p.id DESC`,
		scope.SchoolID(),
		invoiceID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListPendingTransfers(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, limit int) ([]domain.PendingTransfer, error) {
	query := `SELECT ` + paymentColumns + `,
			s.first_name || ' ' || s.last_name AS student_name,
			s.admission_number AS admission_number
		 FROM payments p
		 JOIN students s ON s.id = p.student_id AND s.school_id = p.school_id
		 WHERE p.school_id = ? AND p.payment_method = ? AND p.approval_status = ? AND p.is_voided = ?
		 ORDER BY p.created_at ASC, p.id ASC`
	args := []any{scope.SchoolID(), domain.MethodTransfer, domain.ApprovalPending, false}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var items []domain.PendingTransfer
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) ListCounted(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments p
		 WHERE p.school_id = ? AND p.invoice_id = ? AND p.status = ? AND p.is_voided = ?
		 ORDER BY p.payment_date ASC, p.id ASC`,
		scope.SchoolID(),
		invoiceID,
		domain.StatusSuccess,
		false,
	).Scan(&items).Error
	return items, err
}

func (r *repo) CountConfirmed(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) (int64, error) {
	var n int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments
		 WHERE school_id = ? AND invoice_id = ? AND status = ? AND is_voided = ? AND payment_method <> ?`,
		scope.SchoolID(),
		invoiceID,
		domain.StatusSuccess,
		false,
		domain.MethodWaiver,
	).Scan(&n).Error
	return n, err
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID, updates map[string]any) error {
	return mapWriteErr(scope.Update(conn.WithContext(ctx), "payments", id, updates))
}

func (r *repo) FindReceiptRow(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.ReceiptRow, error) {
	var item domain.ReceiptRow
	err := conn.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`,
			sc.name AS school_name,
			s.first_name || ' ' || s.last_name AS student_name,
			s.admission_number AS admission_number,
			c.name AS class_name,
			t.name AS term_name,
			se.name AS session_name,
			i.total_amount AS invoice_total,
			COALESCE(u.full_name, '') AS received_by
		 FROM payments p
		 JOIN invoices i ON i.id = p.invoice_id AND i.school_id = p.school_id
		 JOIN schools sc ON sc.id = p.school_id
		 JOIN students s ON s.id = p.student_id AND s.school_id = p.school_id
		 JOIN classes c ON c.id = i.class_id AND c.school_id = i.school_id
		 JOIN terms t ON t.id = i.term_id AND t.school_id = i.school_id
		 JOIN academic_sessions se ON se.id = t.session_id AND se.school_id = i.school_id
		 LEFT JOIN users u ON u.id = COALESCE(p.approved_by, p.recorded_by)
		 WHERE p.school_id = ? AND p.id = ? AND p.receipt_number IS NOT NULL
		 LIMIT 1`,
		scope.SchoolID(),
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LatestReceipted(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, conn,
		`p.invoice_id = ? AND p.receipt_number IS NOT NULL AND p.status = ? AND p.is_voided = ?
		 ORDER BY p.payment_date DESC, p.id DESC`,
		"", scope.SchoolID(), invoiceID, domain.StatusSuccess, false)
}

func mapWriteErr(err error) error {
	if db.IsUniqueViolationOn(err, referenceConstraint, referenceColumn) {
		return domain.ErrDuplicateReference
	}
	return err
}

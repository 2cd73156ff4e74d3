package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"gorm.io/gorm"
)

const invoiceColumns = `i.id, i.school_id, i.student_id, i.term_id, i.class_id, i.subtotal, i.discount_amount,
	i.arrears_amount, i.late_fee_amount, i.total_amount, i.amount_paid, i.currency, i.status,
	i.payment_token, i.due_date, i.notes, i.generated_by, i.generated_at, i.created_at, i.updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, invoice *domain.Invoice) error {
	tx := conn.WithContext(ctx)
	if err := scope.Create(tx, invoice); err != nil {
		return err
	}
	if len(invoice.LineItems) == 0 {
		return nil
	}
	for i := range invoice.LineItems {
		invoice.LineItems[i].InvoiceID = invoice.ID
		if err := scope.Stamp(&invoice.LineItems[i]); err != nil {
			return err
		}
	}
	return tx.Create(&invoice.LineItems).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, conn, `WHERE i.school_id = ? AND i.id = ?`, "", scope.SchoolID(), id)
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, conn, `WHERE i.school_id = ? AND i.id = ?`, db.ForUpdate(conn), scope.SchoolID(), id)
}

func (r *repo) FindByStudentTerm(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, studentID, termID snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, conn, `WHERE i.school_id = ? AND i.student_id = ? AND i.term_id = ?`, "", scope.SchoolID(), studentID, termID)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, where, suffix string, args ...any) (*domain.Invoice, error) {
	var item domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices i
		 `+where+`
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

func (r *repo) ExistingStudentIDs(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, termID snowflake.ID) (map[snowflake.ID]struct{}, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT student_id FROM invoices WHERE school_id = ? AND term_id = ?`,
		scope.SchoolID(),
		termID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *repo) ListLineItems(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := conn.WithContext(ctx).Raw(
		`SELECT id, school_id, invoice_id, name, category, amount, is_mandatory, sort_order
		 FROM invoice_line_items
		 WHERE school_id = ? AND invoice_id = ?
		 ORDER BY sort_order ASC, id ASC`,
		scope.SchoolID(),
		invoiceID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, filter domain.ListFilter) ([]domain.InvoiceView, error) {
	query := `SELECT ` + invoiceColumns + `,
			s.first_name || ' ' || s.last_name AS student_name,
			s.admission_number AS admission_number,
			c.name AS class_name,
			t.name AS term_name
		 FROM invoices i
		 JOIN students s ON s.id = i.student_id AND s.school_id = i.school_id
		 JOIN classes c ON c.id = i.class_id AND c.school_id = i.school_id
		 JOIN terms t ON t.id = i.term_id AND t.school_id = i.school_id
		 WHERE i.school_id = ?`
	args := []any{scope.SchoolID()}
	if filter.TermID != 0 {
		query += ` AND i.term_id = ?`
		args = append(args, filter.TermID)
	}
	if filter.ClassID != 0 {
		query += ` AND i.class_id = ?`
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		query += ` AND i.status = ?`
		args = append(args, filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query += ` AND (LOWER(s.first_name) LIKE ? OR LOWER(s.last_name) LIKE ? OR LOWER(s.admission_number) LIKE ?)`
		args = append(args, like, like, like)
	}
	if filter.BeforeID != 0 {
		query += ` AND i.id < ?`
		args = append(args, filter.BeforeID)
	}
	query += ` ORDER BY i.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var items []domain.InvoiceView
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) ListForTerm(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, termID snowflake.ID) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices i
		 WHERE i.school_id = ? AND i.term_id = ?
		 ORDER BY i.id ASC`,
		scope.SchoolID(),
		termID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListOverdue(ctx context.Context, conn *gorm.DB, filter domain.OverdueFilter) ([]domain.OverdueInvoice, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []domain.InvoiceStatus{domain.StatusUnpaid, domain.StatusPartial}
	}
	query := `SELECT i.id AS invoice_id, i.school_id, sc.name AS school_name, i.student_id,
			s.first_name || ' ' || s.last_name AS student_name, s.guardian_phone,
			i.total_amount, i.amount_paid, i.status, i.due_date, i.payment_token
		 FROM invoices i
		 JOIN schools sc ON sc.id = i.school_id
		 JOIN students s ON s.id = i.student_id AND s.school_id = i.school_id
		 WHERE i.status IN ? AND i.due_date IS NOT NULL AND i.due_date >= ? AND i.due_date < ?
			AND s.guardian_phone <> ''`
	args := []any{statuses, filter.DueFrom, filter.DueBefore}
	if filter.ActiveOnly {
		query += ` AND sc.subscription_status = ?`
		args = append(args, "active")
	}
	query += ` ORDER BY i.due_date ASC, i.id ASC`

	var rows []struct {
		InvoiceID     snowflake.ID
		SchoolID      snowflake.ID
		SchoolName    string
		StudentID     snowflake.ID
		StudentName   string
		GuardianPhone string
		TotalAmount   decimal.Decimal
		AmountPaid    decimal.Decimal
		Status        domain.InvoiceStatus
		DueDate       time.Time
		PaymentToken  string
	}
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.OverdueInvoice, 0, len(rows))
	for _, row := range rows {
		outstanding := row.TotalAmount.Sub(row.AmountPaid)
		if !outstanding.IsPositive() {
			continue
		}
		out = append(out, domain.OverdueInvoice{
			InvoiceID:     row.InvoiceID,
			SchoolID:      row.SchoolID,
			SchoolName:    row.SchoolName,
			StudentID:     row.StudentID,
			StudentName:   row.StudentName,
			GuardianPhone: row.GuardianPhone,
			Outstanding:   outstanding,
			Status:        row.Status,
			DueDate:       row.DueDate,
			PaymentToken:  row.PaymentToken,
		})
	}
	return out, nil
}

func (r *repo) ListDebtors(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, termID snowflake.ID, statuses []domain.InvoiceStatus) ([]domain.Debtor, error) {
	if len(statuses) == 0 {
		statuses = []domain.InvoiceStatus{domain.StatusUnpaid, domain.StatusPartial}
	}
	var rows []struct {
		InvoiceID     snowflake.ID
		StudentID     snowflake.ID
		StudentName   string
		GuardianName  string
		GuardianPhone string
		TotalAmount   decimal.Decimal
		AmountPaid    decimal.Decimal
		Status        domain.InvoiceStatus
		PaymentToken  string
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT i.id AS invoice_id, i.student_id, s.first_name || ' ' || s.last_name AS student_name,
			s.guardian_name, s.guardian_phone, i.total_amount, i.amount_paid, i.status, i.payment_token
		 FROM invoices i
		 JOIN students s ON s.id = i.student_id AND s.school_id = i.school_id
		 WHERE i.school_id = ? AND i.term_id = ? AND i.status IN ? AND s.guardian_phone <> ''
		 ORDER BY s.last_name ASC, s.first_name ASC`,
		scope.SchoolID(),
		termID,
		statuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.Debtor, 0, len(rows))
	for _, row := range rows {
		outstanding := row.TotalAmount.Sub(row.AmountPaid)
		if !outstanding.IsPositive() {
			continue
		}
		out = append(out, domain.Debtor{
			InvoiceID:     row.InvoiceID,
			StudentID:     row.StudentID,
			StudentName:   row.StudentName,
			GuardianName:  row.GuardianName,
			GuardianPhone: row.GuardianPhone,
			TotalAmount:   row.TotalAmount,
			AmountPaid:    row.AmountPaid,
			Outstanding:   outstanding,
			Status:        row.Status,
			PaymentToken:  row.PaymentToken,
		})
	}
	return out, nil
}

func (r *repo) UpdateBalance(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID, paid decimal.Decimal, status domain.InvoiceStatus, at time.Time) error {
	return scope.Update(conn.WithContext(ctx), "invoices", id, map[string]any{
		"amount_paid": paid,
		"status":      status,
		"updated_at":  at,
	})
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, scope tenancy.Scope, id snowflake.ID, status domain.InvoiceStatus, notes string, at time.Time) error {
	return scope.Update(conn.WithContext(ctx), "invoices", id, map[string]any{
		"status":     status,
		"notes":      notes,
		"updated_at": at,
	})
}

func (r *repo) FindPublicByToken(ctx context.Context, conn *gorm.DB, token string) (*domain.PublicRow, error) {
	var item domain.PublicRow
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`,
			sc.name AS school_name,
			s.first_name || ' ' || s.last_name AS student_name,
			c.name AS class_name,
			t.name AS term_name,
			se.name AS session_name
		 FROM invoices i
		 JOIN schools sc ON sc.id = i.school_id
		 JOIN students s ON s.id = i.student_id AND s.school_id = i.school_id
		 JOIN classes c ON c.id = i.class_id AND c.school_id = i.school_id
		 JOIN terms t ON t.id = i.term_id AND t.school_id = i.school_id
		 JOIN academic_sessions se ON se.id = t.session_id AND se.school_id = i.school_id
		 WHERE i.payment_token = ?
		 LIMIT 1`,
		token,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

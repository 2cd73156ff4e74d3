package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/receipt"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
)

func (s *Service) Receipt(ctx context.Context, paymentID string) (domain.ReceiptFile, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.ReceiptFile{}, err
	}
	id, err := parseID(paymentID)
	if err != nil {
		return domain.ReceiptFile{}, err
	}
	return s.renderReceipt(ctx, scope, id)
}

// ReceiptByToken serves the parent's download. Without a reference it
// returns the newest receipted payment on the invoice.
func (s *Service) ReceiptByToken(ctx context.Context, token, reference string) (domain.ReceiptFile, error) {
	row, scope, err := s.invoiceByToken(ctx, token)
	if err != nil {
		return domain.ReceiptFile{}, err
	}

	var payment *domain.Payment
	if reference = strings.TrimSpace(reference); reference != "" {
		payment, err = s.repo.FindByReference(ctx, s.db, scope, reference)
	} else {
		payment, err = s.repo.LatestReceipted(ctx, s.db, scope, row.ID)
	}
	if err != nil {
		return domain.ReceiptFile{}, err
	}
	if payment == nil || payment.InvoiceID != row.ID {
		return domain.ReceiptFile{}, domain.ErrNoReceipt
	}
	return s.renderReceipt(ctx, scope, payment.ID)
}

func (s *Service) renderReceipt(ctx context.Context, scope tenancy.Scope, paymentID snowflake.ID) (domain.ReceiptFile, error) {
	row, err := s.repo.FindReceiptRow(ctx, s.db, scope, paymentID)
	if err != nil {
		return domain.ReceiptFile{}, err
	}
	if row == nil || row.IsVoided || row.Status != domain.StatusSuccess {
		return domain.ReceiptFile{}, domain.ErrNoReceipt
	}

	counted, err := s.repo.ListCounted(ctx, s.db, scope, row.InvoiceID)
	if err != nil {
		return domain.ReceiptFile{}, err
	}
	paidBefore := PaidBefore(counted, row.Payment)
	outstanding := row.InvoiceTotal.Sub(paidBefore).Sub(row.Amount)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}

	content, err := s.renderer.Render(receipt.Data{
		SchoolName:      row.SchoolName,
		ReceiptNumber:   row.ReceiptValue(),
		StudentName:     row.StudentName,
		AdmissionNumber: row.AdmissionNumber,
		ClassName:       row.ClassName,
		TermName:        row.TermName,
		SessionName:     row.SessionName,
		PaymentMethod:   string(row.PaymentMethod),
		Reference:       row.ReferenceValue(),
		PaymentDate:     row.PaymentDate,
		ReceivedBy:      row.ReceivedBy,
		InvoiceTotal:    row.InvoiceTotal,
		PaidBefore:      paidBefore,
		ThisPayment:     row.Amount,
		Outstanding:     outstanding,
	})
	if err != nil {
		return domain.ReceiptFile{}, err
	}
	return domain.ReceiptFile{
		Filename: receipt.Filename(row.ReceiptValue()),
		Content:  content,
	}, nil
}

// PaidBefore sums the counted payments that precede p by payment date, with
// the id breaking ties.
func PaidBefore(counted []domain.Payment, p domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, other := range counted {
		if other.ID == p.ID || !other.Counts() {
			continue
		}
		if other.PaymentDate.Before(p.PaymentDate) ||
			(other.PaymentDate.Equal(p.PaymentDate) && other.ID < p.ID) {
			total = total.Add(other.Amount)
		}
	}
	return total
}

package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/notification"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/service"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func naira(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestRecordCashConfirmsAndReconciles(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})

	p, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{
		InvoiceID:       h.invoice.String(),
		Amount:          naira("20000.00"),
		CollectionPoint: "Front desk",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, p.Status)
	assert.Equal(t, domain.ApprovalApproved, p.ApprovalStatus)
	assert.Equal(t, "RCP/2025/000001", p.ReceiptValue())
	assert.Equal(t, h.student, p.StudentID)
	require.NotNil(t, p.RecordedBy)
	assert.Equal(t, h.actor, *p.RecordedBy)

	paid, status := h.invoiceState(h.invoice)
	assert.True(t, paid.Equal(naira("20000")))
	assert.Equal(t, "partial", status)
	assert.Equal(t, []notification.Kind{notification.KindPaymentSuccess}, h.queue.Kinds())
	assert.EqualValues(t, 1, h.f.Count("activity_log", "action = ?", "payment.cash_recorded"))

	_, err = h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("30000")})
	require.NoError(t, err)
	_, status = h.invoiceState(h.invoice)
	assert.Equal(t, "paid", status)
}

func TestRecordCashValidation(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})
	req := func(amount string) domain.RecordCashRequest {
		return domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira(amount)}
	}

	for _, bad := range []string{"0", "-10", "10.005"} {
		_, err := h.svc.RecordCash(h.ctx, req(bad))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, bad)
	}

	_, err := h.svc.RecordCash(tenancy.WithSchool(context.Background(), h.school), req("100"))
	assert.ErrorIs(t, err, domain.ErrMissingActor)

	_, err = h.svc.RecordCash(context.Background(), req("100"))
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)

	_, err = h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.f.Node.Generate().String(), Amount: naira("100")})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	_, err = h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: "not-an-id", Amount: naira("100")})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	require.NoError(t, h.f.DB.Exec(`UPDATE invoices SET status = 'cancelled' WHERE id = ?`, h.invoice).Error)
	_, err = h.svc.RecordCash(h.ctx, req("100"))
	assert.ErrorIs(t, err, domain.ErrInvoiceClosed)
	assert.EqualValues(t, 0, h.f.Count("payments", ""))
	assert.EqualValues(t, 0, h.f.Count("receipt_sequences", ""))
}

func TestTransferApprovalFlow(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})

	p, err := h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{
		InvoiceID: h.invoice.String(),
		Amount:    naira("40000"),
		Reference: "GTB-2025-0001",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, domain.ApprovalPending, p.ApprovalStatus)
	assert.Empty(t, p.ReceiptValue())

	paid, status := h.invoiceState(h.invoice)
	assert.True(t, paid.IsZero())
	assert.Equal(t, "unpaid", status)

	queue, err := h.svc.ListPendingTransfers(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "Ada Obi", queue[0].StudentName)

	approved, err := h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: p.ID.String(), Approve: true, Notes: "seen on statement"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, approved.Status)
	assert.Equal(t, "RCP/2025/000001", approved.ReceiptValue())
	_, status = h.invoiceState(h.invoice)
	assert.Equal(t, "paid", status)

	_, err = h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: p.ID.String(), Approve: false})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	queue, err = h.svc.ListPendingTransfers(h.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queue)
	assert.EqualValues(t, 1, h.f.Count("activity_log", "action = ?", "payment.transfer_approved"))
}

func TestTransferRejectionIsPermanent(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})
	p, err := h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{
		InvoiceID: h.invoice.String(),
		Amount:    naira("10000"),
		Reference: "FBN-778",
	})
	require.NoError(t, err)

	rejected, err := h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: p.ID.String(), Notes: "not on statement"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rejected.Status)
	assert.Equal(t, domain.ApprovalRejected, rejected.ApprovalStatus)
	assert.Equal(t, "not on statement", rejected.ReviewNotes)

	_, err = h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: p.ID.String(), Approve: true})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.EqualValues(t, 0, h.f.Count("receipt_sequences", ""))
	assert.Empty(t, h.queue.Tasks())
}

func TestTransferReferenceRules(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})
	req := domain.RecordTransferRequest{InvoiceID: h.invoice.String(), Amount: naira("100"), Reference: "ZEN-42"}

	_, err := h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{InvoiceID: h.invoice.String(), Amount: naira("100"), Reference: " ab "})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = h.svc.RecordTransfer(h.ctx, req)
	require.NoError(t, err)
	_, err = h.svc.RecordTransfer(h.ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	// The same bank reference is fine in another school.
	otherSchool, _, otherInvoice := h.seedInvoice("Other School", "10000.00")
	otherActor := h.f.User(otherSchool, "bursar@other.test", "x", "bursar", false)
	_, err = h.svc.RecordTransfer(h.staffContext(otherSchool, otherActor), domain.RecordTransferRequest{
		InvoiceID: otherInvoice.String(),
		Amount:    naira("100"),
		Reference: "ZEN-42",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.f.Count("payments", "reference = ?", "ZEN-42"))
}

func TestVoidRecomputesFromPaymentSet(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})
	first, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("30000")})
	require.NoError(t, err)
	_, err = h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("20000")})
	require.NoError(t, err)
	_, status := h.invoiceState(h.invoice)
	require.Equal(t, "paid", status)

	_, err = h.svc.Void(h.ctx, domain.VoidRequest{PaymentID: first.ID.String(), Reason: "oops"})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)

	voided, err := h.svc.Void(h.ctx, domain.VoidRequest{PaymentID: first.ID.String(), Reason: "duplicate entry"})
	require.NoError(t, err)
	assert.True(t, voided.IsVoided)
	assert.Equal(t, "RCP/2025/000001", voided.ReceiptValue())

	paid, status := h.invoiceState(h.invoice)
	assert.True(t, paid.Equal(naira("20000")))
	assert.Equal(t, "partial", status)

	_, err = h.svc.Void(h.ctx, domain.VoidRequest{PaymentID: first.ID.String(), Reason: "again please"})
	assert.ErrorIs(t, err, domain.ErrAlreadyVoided)

	pending, err := h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{InvoiceID: h.invoice.String(), Amount: naira("5000"), Reference: "UBA-1"})
	require.NoError(t, err)
	_, err = h.svc.Void(h.ctx, domain.VoidRequest{PaymentID: pending.ID.String(), Reason: "never arrived"})
	assert.ErrorIs(t, err, domain.ErrNotConfirmed)

	third, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("1000")})
	require.NoError(t, err)
	assert.Equal(t, "RCP/2025/000003", third.ReceiptValue())

	history, err := h.svc.ListByInvoice(h.ctx, h.invoice.String())
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.EqualValues(t, 1, h.f.Count("activity_log", "action = ?", "payment.voided"))
}

func TestWaiverCreditsWithoutReceipt(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})
	_, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("45000")})
	require.NoError(t, err)

	w, err := h.svc.RecordWaiver(h.ctx, domain.RecordWaiverRequest{InvoiceID: h.invoice.String(), Amount: naira("5000"), Reason: "staff child"})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodWaiver, w.PaymentMethod)
	assert.Empty(t, w.ReceiptValue())

	_, status := h.invoiceState(h.invoice)
	assert.Equal(t, "paid", status)
	assert.Len(t, h.queue.Tasks(), 1)
}

func TestPaymentsAreInvisibleAcrossSchools(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})
	p, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("100")})
	require.NoError(t, err)

	other := h.f.School("Rival")
	otherActor := h.f.User(other, "admin@rival.test", "x", "school_admin", false)
	ctx := h.staffContext(other, otherActor)

	_, err = h.svc.Get(ctx, p.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.Void(ctx, domain.VoidRequest{PaymentID: p.ID.String(), Reason: "hostile void"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.RecordCash(ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("100")})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	_, err = h.svc.ListByInvoice(ctx, h.invoice.String())
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	_, err = h.svc.Receipt(ctx, p.ID.String())
	assert.ErrorIs(t, err, domain.ErrNoReceipt)
}

func TestAttachProofIsScopedPath(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})
	p, err := h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{InvoiceID: h.invoice.String(), Amount: naira("100"), Reference: "ACC-9"})
	require.NoError(t, err)

	got, err := h.svc.AttachProof(h.ctx, domain.AttachProofRequest{PaymentID: p.ID.String(), FileName: "teller.jpg"})
	require.NoError(t, err)
	assert.Equal(t, service.ProofPath(h.school, p.ID, "teller.jpg"), *got.ProofURL)
	assert.Contains(t, *got.ProofURL, "schools/"+h.school.String()+"/payments/"+p.ID.String()+"/")

	for _, bad := range []string{"", "../secret.pdf", "a/b.pdf", "..", `..\x.pdf`} {
		_, err := h.svc.AttachProof(h.ctx, domain.AttachProofRequest{PaymentID: p.ID.String(), FileName: bad})
		assert.ErrorIs(t, err, domain.ErrInvalidFileName, bad)
	}
}

func TestReceiptShowsRunningBalance(t *testing.T) {
	h := newHarness(t, "50000.00", &fakeGateway{})
	_, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("10000")})
	require.NoError(t, err)
	second, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("15000")})
	require.NoError(t, err)

	file, err := h.svc.Receipt(h.ctx, second.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "RCP-2025-000002.pdf", file.Filename)
	assert.Equal(t, "%PDF", string(file.Content[:4]))

	token := h.f.InvoiceToken(h.invoice)
	latest, err := h.svc.ReceiptByToken(context.Background(), token, "")
	require.NoError(t, err)
	assert.Equal(t, "RCP-2025-000002.pdf", latest.Filename)

	_, err = h.svc.ReceiptByToken(context.Background(), "missing-token", "")
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestPaidBeforeOrdersByDateThenID(t *testing.T) {
	base := domain.Payment{Status: domain.StatusSuccess}
	a, b, c := base, base, base
	a.ID, a.Amount = 1, naira("100")
	b.ID, b.Amount = 2, naira("200")
	c.ID, c.Amount = 3, naira("300")
	voided := base
	voided.ID, voided.Amount, voided.IsVoided = 0, naira("999"), true

	all := []domain.Payment{a, b, c, voided}
	assert.True(t, service.PaidBefore(all, a).IsZero())
	assert.True(t, service.PaidBefore(all, b).Equal(naira("100")))
	assert.True(t, service.PaidBefore(all, c).Equal(naira("300")))
}

package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentTransferJoinsApprovalQueue(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})
	token := h.f.InvoiceToken(h.invoice)

	got, err := h.svc.SubmitPublicTransfer(context.Background(), domain.PublicTransferRequest{
		Token:     token,
		Amount:    naira("15000"),
		Reference: " UBA-5521 ",
		Narration: "school fees JSS1",
	})
	require.NoError(t, err)
	assert.Equal(t, "UBA-5521", got.Reference)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.ApprovalPending, got.ApprovalStatus)
	assert.False(t, got.HasProof)

	paid, status := h.invoiceState(h.invoice)
	assert.True(t, paid.IsZero())
	assert.Equal(t, "unpaid", status)

	queue, err := h.svc.ListPendingTransfers(h.ctx, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, got.PaymentID, queue[0].ID.String())
	assert.Nil(t, queue[0].RecordedBy)
	assert.EqualValues(t, 1, h.f.Count("activity_log", "action = ? AND actor_type = ? AND school_id = ?", "payment.transfer_submitted", "parent", h.school))

	approved, err := h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: got.PaymentID, Approve: true})
	require.NoError(t, err)
	assert.Equal(t, "RCP/2025/000001", approved.ReceiptValue())
	paid, status = h.invoiceState(h.invoice)
	assert.True(t, paid.Equal(naira("15000")))
	assert.Equal(t, "partial", status)
}

func TestParentTransferRules(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})
	token := h.f.InvoiceToken(h.invoice)
	ctx := context.Background()
	req := domain.PublicTransferRequest{Token: token, Amount: naira("500"), Reference: "ZEN-42"}

	_, err := h.svc.SubmitPublicTransfer(ctx, domain.PublicTransferRequest{Token: "nope", Amount: naira("500"), Reference: "ZEN-42"})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	_, err = h.svc.SubmitPublicTransfer(ctx, domain.PublicTransferRequest{Token: token, Amount: naira("0"), Reference: "ZEN-42"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.SubmitPublicTransfer(ctx, domain.PublicTransferRequest{Token: token, Amount: naira("500"), Reference: "z"})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = h.svc.SubmitPublicTransfer(ctx, req)
	require.NoError(t, err)
	_, err = h.svc.SubmitPublicTransfer(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	// A staff-entered transfer with the same bank reference is the same money.
	_, err = h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{InvoiceID: h.invoice.String(), Amount: naira("500"), Reference: "ZEN-42"})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.EqualValues(t, 1, h.f.Count("payments", "reference = ?", "ZEN-42"))
}

func TestParentTransferRejectedOnClosedInvoice(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})
	require.NoError(t, h.f.DB.Exec(`UPDATE invoices SET status = 'cancelled' WHERE id = ?`, h.invoice).Error)

	_, err := h.svc.SubmitPublicTransfer(context.Background(), domain.PublicTransferRequest{
		Token:     h.f.InvoiceToken(h.invoice),
		Amount:    naira("500"),
		Reference: "GTB-100",
	})
	assert.ErrorIs(t, err, domain.ErrInvoiceClosed)
	assert.Zero(t, h.f.Count("payments", "invoice_id = ?", h.invoice))
}

func TestParentProofOnlyForOwnPendingTransfer(t *testing.T) {
	h := newHarness(t, "40000.00", &fakeGateway{})
	token := h.f.InvoiceToken(h.invoice)
	ctx := context.Background()

	transfer, err := h.svc.SubmitPublicTransfer(ctx, domain.PublicTransferRequest{Token: token, Amount: naira("1000"), Reference: "ACC-77"})
	require.NoError(t, err)

	got, err := h.svc.AttachPublicProof(ctx, domain.PublicProofRequest{Token: token, PaymentID: transfer.PaymentID, FileName: "slip.png"})
	require.NoError(t, err)
	assert.True(t, got.HasProof)
	var proof string
	require.NoError(t, h.f.DB.Raw(`SELECT proof_url FROM payments WHERE id = ?`, transfer.PaymentID).Scan(&proof).Error)
	assert.Equal(t, service.ProofPath(h.school, mustID(t, transfer.PaymentID), "slip.png"), proof)

	_, err = h.svc.AttachPublicProof(ctx, domain.PublicProofRequest{Token: token, PaymentID: transfer.PaymentID, FileName: "../x.png"})
	assert.ErrorIs(t, err, domain.ErrInvalidFileName)

	// Another family's link cannot reach this payment.
	_, _, otherInvoice := h.seedInvoice("Other School", "10000.00")
	_, err = h.svc.AttachPublicProof(ctx, domain.PublicProofRequest{Token: h.f.InvoiceToken(otherInvoice), PaymentID: transfer.PaymentID, FileName: "slip.png"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Cash on the same invoice is not a transfer.
	cash, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("100")})
	require.NoError(t, err)
	_, err = h.svc.AttachPublicProof(ctx, domain.PublicProofRequest{Token: token, PaymentID: cash.ID.String(), FileName: "slip.png"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: transfer.PaymentID, Approve: true})
	require.NoError(t, err)
	_, err = h.svc.AttachPublicProof(ctx, domain.PublicProofRequest{Token: token, PaymentID: transfer.PaymentID, FileName: "late.png"})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func mustID(t *testing.T, raw string) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(raw)
	require.NoError(t, err)
	return id
}

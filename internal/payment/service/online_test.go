package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/gateway/paystack"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/webhook"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitializeOnlineReplaysSession(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "25000.00", gw)
	token := h.f.InvoiceToken(h.invoice)
	ctx := context.Background()

	first, err := h.svc.InitializeOnline(ctx, domain.InitializeOnlineRequest{Token: token, Email: "Parent@Example.com"})
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.True(t, first.Amount.Equal(naira("25000")))
	require.Equal(t, 1, gw.callCount())
	assert.EqualValues(t, 2500000, gw.calls[0].AmountKobo)
	assert.Equal(t, h.school.String(), gw.calls[0].Metadata["school_id"])
	assert.Equal(t, "https://pay.test/pay/"+token+"/callback", gw.calls[0].CallbackURL)

	again, err := h.svc.InitializeOnline(ctx, domain.InitializeOnlineRequest{Token: token, Email: "parent@example.com"})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Reference, again.Reference)
	assert.Equal(t, first.AuthorizationURL, again.AuthorizationURL)
	assert.Equal(t, 1, gw.callCount())
	assert.EqualValues(t, 1, h.f.Count("payments", "payment_method = ?", "online_gateway"))

	// A pending checkout never touches the invoice.
	paid, status := h.invoiceState(h.invoice)
	assert.True(t, paid.IsZero())
	assert.Equal(t, "unpaid", status)
}

func TestInitializeOnlineRejectsSettledInvoice(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "25000.00", gw)
	token := h.f.InvoiceToken(h.invoice)

	_, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{InvoiceID: h.invoice.String(), Amount: naira("25000")})
	require.NoError(t, err)
	_, err = h.svc.InitializeOnline(context.Background(), domain.InitializeOnlineRequest{Token: token, Email: "p@example.com"})
	assert.ErrorIs(t, err, domain.ErrNothingToPay)

	_, err = h.svc.InitializeOnline(context.Background(), domain.InitializeOnlineRequest{Token: "nope", Email: "p@example.com"})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	assert.Equal(t, 0, gw.callCount())
}

func TestInitializeOnlineGatewayFailureCreatesNothing(t *testing.T) {
	gw := &fakeGateway{fail: true}
	h := newHarness(t, "25000.00", gw)

	_, err := h.svc.InitializeOnline(context.Background(), domain.InitializeOnlineRequest{Token: h.f.InvoiceToken(h.invoice), Email: "p@example.com"})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.EqualValues(t, 0, h.f.Count("payments", ""))
	assert.EqualValues(t, 0, h.f.Count("idempotency_cache", ""))
}

func newPaystackServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reference string `json:"reference"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.test/" + body.Reference,
				"access_code":       "code",
				"reference":         body.Reference,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

const webhookSecret = "sk_test_webhook"

func signed(payload []byte) http.Header {
	headers := http.Header{}
	headers.Set("x-paystack-signature", paystack.Sign(webhookSecret, payload))
	return headers
}

func TestOnlinePaymentEndToEnd(t *testing.T) {
	srv := newPaystackServer(t)
	adapter := paystack.New(config.PaystackConfig{
		BaseURL:       srv.URL,
		SecretKey:     webhookSecret,
		WebhookSecret: webhookSecret,
		Timeout:       time.Second,
	}, zap.NewNop())
	h := newHarness(t, "30000.00", adapter)
	token := h.f.InvoiceToken(h.invoice)
	ctx := context.Background()

	session, err := h.svc.InitializeOnline(ctx, domain.InitializeOnlineRequest{Token: token, Email: "parent@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, session.Reference)

	status, err := h.svc.PublicStatus(ctx, token, session.Reference)
	require.NoError(t, err)
	require.NotNil(t, status.Payment)
	assert.Equal(t, domain.StatusPending, status.Payment.Status)
	assert.False(t, status.IsPaid)

	payload := chargeSuccess(1001, session.Reference, 3000000, h.school)
	outcome, err := h.ingester.Ingest(ctx, "paystack", payload, signed(payload))
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeConfirmed, outcome)

	status, err = h.svc.PublicStatus(ctx, token, session.Reference)
	require.NoError(t, err)
	assert.True(t, status.IsPaid)
	assert.True(t, status.Outstanding.IsZero())
	assert.Equal(t, domain.StatusSuccess, status.Payment.Status)
	assert.Equal(t, "RCP/2025/000001", status.Payment.ReceiptNumber)

	// Redelivery of the same event is acknowledged and changes nothing.
	outcome, err = h.ingester.Ingest(ctx, "paystack", payload, signed(payload))
	assert.ErrorIs(t, err, webhook.ErrEventAlreadyProcessed)
	assert.Equal(t, webhook.OutcomeDuplicate, outcome)

	// A different event id for the same reference reaches ConfirmOnline,
	// which refuses to confirm twice.
	replay := chargeSuccess(1002, session.Reference, 3000000, h.school)
	outcome, err = h.ingester.Ingest(ctx, "paystack", replay, signed(replay))
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeAlreadyConfirmed, outcome)

	assert.EqualValues(t, 1, h.f.Count("payments", "receipt_number IS NOT NULL"))
	assert.Len(t, h.queue.Tasks(), 1)
	paid, _ := h.invoiceState(h.invoice)
	assert.True(t, paid.Equal(naira("30000")))

	file, err := h.svc.ReceiptByToken(ctx, token, session.Reference)
	require.NoError(t, err)
	assert.Equal(t, "RCP-2025-000001.pdf", file.Filename)
}

func TestWebhookRejectsAndIgnores(t *testing.T) {
	adapter := paystack.New(config.PaystackConfig{SecretKey: webhookSecret, WebhookSecret: webhookSecret}, zap.NewNop())
	h := newHarness(t, "30000.00", adapter)
	ctx := context.Background()

	payload := chargeSuccess(1, "SP-FORGED", 100, h.school)
	bad := http.Header{}
	bad.Set("x-paystack-signature", paystack.Sign("attacker", payload))
	outcome, err := h.ingester.Ingest(ctx, "paystack", payload, bad)
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	assert.Equal(t, webhook.OutcomeRejected, outcome)
	assert.EqualValues(t, 0, h.f.Count("idempotency_cache", ""))

	outcome, err = h.ingester.Ingest(ctx, "paystack", payload, signed(payload))
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeUnknownReference, outcome)
	assert.True(t, outcome.Acknowledged())

	transfer := []byte(`{"event":"transfer.success","data":{"id":9,"reference":"TRF-1"}}`)
	outcome, err = h.ingester.Ingest(ctx, "paystack", transfer, signed(transfer))
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeIgnored, outcome)

	_, err = h.ingester.Ingest(ctx, "flutterwave", payload, signed(payload))
	assert.ErrorIs(t, err, gateway.ErrProviderNotFound)
}

func TestWebhookUsesChargedAmount(t *testing.T) {
	srv := newPaystackServer(t)
	adapter := paystack.New(config.PaystackConfig{BaseURL: srv.URL, SecretKey: webhookSecret, WebhookSecret: webhookSecret}, zap.NewNop())
	h := newHarness(t, "30000.00", adapter)
	ctx := context.Background()

	session, err := h.svc.InitializeOnline(ctx, domain.InitializeOnlineRequest{Token: h.f.InvoiceToken(h.invoice), Email: "p@example.com"})
	require.NoError(t, err)

	payload := chargeSuccess(7, session.Reference, 1000000, h.school)
	_, err = h.ingester.Ingest(ctx, "paystack", payload, signed(payload))
	require.NoError(t, err)

	paid, status := h.invoiceState(h.invoice)
	assert.True(t, paid.Equal(naira("10000")))
	assert.Equal(t, "partial", status)
}

// Random sequences of staff actions always leave amount_paid equal to the
// sum of the confirmed, unvoided payments.
func TestInvoiceBalanceMatchesPaymentSetUnderRandomActions(t *testing.T) {
	h := newHarness(t, "60000.00", &fakeGateway{})
	rng := rand.New(rand.NewSource(7))
	var confirmed, pending []string

	for step := 0; step < 40; step++ {
		switch rng.Intn(4) {
		case 0:
			p, err := h.svc.RecordCash(h.ctx, domain.RecordCashRequest{
				InvoiceID: h.invoice.String(),
				Amount:    decimal.NewFromInt(int64(500 + rng.Intn(5000))),
			})
			require.NoError(t, err)
			confirmed = append(confirmed, p.ID.String())
		case 1:
			p, err := h.svc.RecordTransfer(h.ctx, domain.RecordTransferRequest{
				InvoiceID: h.invoice.String(),
				Amount:    decimal.NewFromInt(int64(500 + rng.Intn(5000))),
				Reference: fmt.Sprintf("REF-%03d", step),
			})
			require.NoError(t, err)
			pending = append(pending, p.ID.String())
		case 2:
			if len(pending) == 0 {
				continue
			}
			i := rng.Intn(len(pending))
			id := pending[i]
			pending = append(pending[:i], pending[i+1:]...)
			approve := rng.Intn(2) == 0
			_, err := h.svc.ReviewTransfer(h.ctx, domain.ReviewTransferRequest{PaymentID: id, Approve: approve})
			require.NoError(t, err)
			if approve {
				confirmed = append(confirmed, id)
			}
		default:
			if len(confirmed) == 0 {
				continue
			}
			i := rng.Intn(len(confirmed))
			id := confirmed[i]
			confirmed = append(confirmed[:i], confirmed[i+1:]...)
			_, err := h.svc.Void(h.ctx, domain.VoidRequest{PaymentID: id, Reason: "random void"})
			require.NoError(t, err)
		}

		history, err := h.svc.ListByInvoice(h.ctx, h.invoice.String())
		require.NoError(t, err)
		want := reconcile.Sum(history)
		paid, status := h.invoiceState(h.invoice)
		require.True(t, want.Equal(paid), "step %d: want %s got %s", step, want, paid)

		expected := "unpaid"
		switch {
		case want.GreaterThanOrEqual(naira("60000")):
			expected = "paid"
		case want.IsPositive():
			expected = "partial"
		}
		require.Equal(t, expected, status, "step %d", step)
	}
}

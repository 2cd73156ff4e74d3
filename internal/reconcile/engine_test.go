package reconcile_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/clock"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/schoolpay/internal/invoice/repository"
	"github.com/smallbiznis/schoolpay/internal/notification"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	paymentrepo "github.com/smallbiznis/schoolpay/internal/payment/repository"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	f        *testkit.Fixture
	engine   *reconcile.Engine
	queue    *testkit.Queue
	hub      *liveevents.Hub
	invoices invoicedomain.Repository
	payments paymentdomain.Repository
	school   snowflake.ID
	student  snowflake.ID
	invoice  snowflake.ID
}

func newHarness(t *testing.T, total string) *harness {
	f := testkit.NewFixture(t)
	h := &harness{
		f:        f,
		queue:    &testkit.Queue{},
		hub:      liveevents.NewHub(),
		invoices: invoicerepo.Provide(),
		payments: paymentrepo.Provide(),
	}
	h.engine = reconcile.New(reconcile.Params{
		Log:         zap.NewNop(),
		Clock:       clock.NewFakeClock(f.Now),
		InvoiceRepo: h.invoices,
		PaymentRepo: h.payments,
		Queue:       h.queue,
		Hub:         h.hub,
	})
	h.school = f.School("Greenfield")
	session := f.Session(h.school, "2024/2025")
	term := f.Term(h.school, session, "First Term", 0)
	class := f.Class(h.school, "JSS1")
	h.student = f.Student(h.school, "GF/001", "0")
	h.invoice = f.Invoice(h.school, h.student, term, class, total, "0", "unpaid")
	return h
}

func (h *harness) reconcile(t *testing.T, trigger reconcile.Trigger) reconcile.Result {
	t.Helper()
	scope := tenancy.MustScope(h.school)
	var res reconcile.Result
	err := scope.Transaction(context.Background(), h.f.DB, func(tx *gorm.DB) error {
		var err error
		res, err = h.engine.Reconcile(context.Background(), tx, scope, h.invoice, trigger)
		return err
	})
	require.NoError(t, err)
	h.engine.AfterCommit(context.Background(), res)
	return res
}

func (h *harness) stored(t *testing.T) *invoicedomain.Invoice {
	t.Helper()
	inv, err := h.invoices.FindByID(context.Background(), h.f.DB, tenancy.MustScope(h.school), h.invoice)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func TestReconcileCountsOnlyConfirmedUnvoided(t *testing.T) {
	h := newHarness(t, "50000.00")
	h.f.Payment(h.school, h.invoice, h.student, "10000.00", "cash", "success", "approved", false)
	h.f.Payment(h.school, h.invoice, h.student, "5000.00", "bank_transfer", "pending", "pending_approval", false)
	h.f.Payment(h.school, h.invoice, h.student, "7000.00", "cash", "success", "approved", true)
	h.f.Payment(h.school, h.invoice, h.student, "3000.00", "online_gateway", "failed", "rejected", false)

	res := h.reconcile(t, reconcile.Trigger{})
	assert.True(t, res.AmountPaid.Equal(decimal.RequireFromString("10000")))
	assert.Equal(t, invoicedomain.StatusPartial, res.Status)
	assert.Nil(t, res.Notification)
	assert.Nil(t, res.Event)

	inv := h.stored(t)
	assert.True(t, inv.AmountPaid.Equal(decimal.RequireFromString("10000")))
	assert.Equal(t, invoicedomain.StatusPartial, inv.Status)
}

func TestReconcileConfirmedTriggerQueuesNotificationAfterCommit(t *testing.T) {
	h := newHarness(t, "20000.00")
	id := h.f.Payment(h.school, h.invoice, h.student, "20000.00", "cash", "success", "approved", false)
	p, err := h.payments.FindByID(context.Background(), h.f.DB, tenancy.MustScope(h.school), id)
	require.NoError(t, err)

	sub, _, err := h.hub.Subscribe(h.school)
	require.NoError(t, err)
	defer sub.Close()

	res := h.reconcile(t, reconcile.Trigger{Payment: p, Event: liveevents.TypePaymentConfirmed})
	assert.Equal(t, invoicedomain.StatusPaid, res.Status)
	assert.True(t, res.Outstanding().IsZero())
	assert.Equal(t, []notification.Kind{notification.KindPaymentSuccess}, h.queue.Kinds())

	ev := <-sub.Events()
	assert.Equal(t, liveevents.TypePaymentConfirmed, ev.Type)
	assert.Equal(t, id.String(), ev.PaymentID)
	assert.Equal(t, string(invoicedomain.StatusPaid), ev.InvoiceStatus)
}

func TestReconcileFailedTransactionQueuesNothing(t *testing.T) {
	h := newHarness(t, "20000.00")
	id := h.f.Payment(h.school, h.invoice, h.student, "20000.00", "cash", "success", "approved", false)
	scope := tenancy.MustScope(h.school)
	p, err := h.payments.FindByID(context.Background(), h.f.DB, scope, id)
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = scope.Transaction(context.Background(), h.f.DB, func(tx *gorm.DB) error {
		if _, err := h.engine.Reconcile(context.Background(), tx, scope, h.invoice, reconcile.Trigger{Payment: p, Event: liveevents.TypePaymentConfirmed}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.queue.Tasks())
	assert.True(t, h.stored(t).AmountPaid.IsZero())
}

func TestReconcileKeepsClosedStatus(t *testing.T) {
	h := newHarness(t, "20000.00")
	require.NoError(t, h.f.DB.Exec(`UPDATE invoices SET status = 'waived' WHERE id = ?`, h.invoice).Error)
	h.f.Payment(h.school, h.invoice, h.student, "5000.00", "cash", "success", "approved", false)

	res := h.reconcile(t, reconcile.Trigger{})
	assert.Equal(t, invoicedomain.StatusWaived, res.Status)
	assert.True(t, res.AmountPaid.Equal(decimal.NewFromInt(5000)))
}

func TestReconcileAllowsOverpayment(t *testing.T) {
	h := newHarness(t, "10000.00")
	h.f.Payment(h.school, h.invoice, h.student, "8000.00", "cash", "success", "approved", false)
	h.f.Payment(h.school, h.invoice, h.student, "4000.00", "bank_transfer", "success", "approved", false)

	res := h.reconcile(t, reconcile.Trigger{})
	assert.Equal(t, invoicedomain.StatusPaid, res.Status)
	assert.True(t, res.AmountPaid.Equal(decimal.NewFromInt(12000)))
	assert.True(t, res.Outstanding().IsZero())
}

func TestReconcileOtherTenantIsNotFound(t *testing.T) {
	h := newHarness(t, "10000.00")
	other := tenancy.MustScope(h.f.School("Other"))
	err := other.Transaction(context.Background(), h.f.DB, func(tx *gorm.DB) error {
		_, err := h.engine.Reconcile(context.Background(), tx, other, h.invoice, reconcile.Trigger{})
		return err
	})
	assert.ErrorIs(t, err, reconcile.ErrInvoiceNotFound)
}

// Random interleavings of inserts, confirmations and voids always leave
// amount_paid equal to the sum of the counted payments.
func TestReconcileMatchesRecomputedSumUnderRandomHistory(t *testing.T) {
	h := newHarness(t, "100000.00")
	rng := rand.New(rand.NewSource(42))
	var ids []snowflake.ID

	for step := 0; step < 60; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			amount := fmt.Sprintf("%d.%02d", 100+rng.Intn(9000), rng.Intn(100))
			ids = append(ids, h.f.Payment(h.school, h.invoice, h.student, amount, "bank_transfer", "pending", "pending_approval", false))
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, h.f.DB.Exec(`UPDATE payments SET status = 'success', approval_status = 'approved'
				WHERE id = ? AND status = 'pending'`, id).Error)
		default:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, h.f.DB.Exec(`UPDATE payments SET is_voided = TRUE WHERE id = ? AND status = 'success'`, id).Error)
		}

		res := h.reconcile(t, reconcile.Trigger{})

		var want decimal.Decimal
		var rows []struct{ Amount decimal.Decimal }
		require.NoError(t, h.f.DB.Raw(`SELECT amount FROM payments WHERE invoice_id = ? AND status = 'success' AND is_voided = FALSE`, h.invoice).Scan(&rows).Error)
		for _, r := range rows {
			want = want.Add(r.Amount)
		}
		require.True(t, want.Equal(res.AmountPaid), "step %d: want %s got %s", step, want, res.AmountPaid)
		assert.Equal(t, invoicedomain.DeriveStatus(invoicedomain.StatusUnpaid, res.TotalAmount, want), res.Status)
		assert.True(t, h.stored(t).AmountPaid.Equal(want))
	}
}

func TestSumIgnoresUncounted(t *testing.T) {
	payments := []paymentdomain.Payment{
		{Amount: decimal.RequireFromString("100.10"), Status: paymentdomain.StatusSuccess},
		{Amount: decimal.RequireFromString("50.05"), Status: paymentdomain.StatusSuccess, IsVoided: true},
		{Amount: decimal.RequireFromString("25.00"), Status: paymentdomain.StatusPending},
	}
	assert.Equal(t, "100.10", reconcile.Sum(payments).StringFixed(2))
}

// Package reconcile recomputes an invoice's amount_paid and status from its
// payments. It never adds or subtracts deltas.
package reconcile

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/clock"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/notification"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvoiceNotFound = errors.New("invoice_not_found")

// Trigger is the payment change that caused a reconciliation. Event is one
// of the liveevents types or empty for a silent recompute.
type Trigger struct {
	Payment *paymentdomain.Payment
	Event   string
}

// Result carries the recomputed balance and the side effects to run once
// the caller's transaction has committed.
type Result struct {
	SchoolID     snowflake.ID
	InvoiceID    snowflake.ID
	Status       invoicedomain.InvoiceStatus
	TotalAmount  decimal.Decimal
	AmountPaid   decimal.Decimal
	Notification *notification.Task
	Event        *liveevents.Event
}

func (r Result) Outstanding() decimal.Decimal {
	b := r.TotalAmount.Sub(r.AmountPaid)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	InvoiceRepo invoicedomain.Repository
	PaymentRepo paymentdomain.Repository
	Queue       notification.Queue
	Hub         *liveevents.Hub
	Metrics     *metrics.Metrics `optional:"true"`
}

type Engine struct {
	log         *zap.Logger
	clock       clock.Clock
	invoiceRepo invoicedomain.Repository
	paymentRepo paymentdomain.Repository
	queue       notification.Queue
	hub         *liveevents.Hub
	metrics     *metrics.Metrics
}

func New(p Params) *Engine {
	return &Engine{
		log:         p.Log.Named("reconcile.engine"),
		clock:       p.Clock,
		invoiceRepo: p.InvoiceRepo,
		paymentRepo: p.PaymentRepo,
		queue:       p.Queue,
		hub:         p.Hub,
		metrics:     p.Metrics,
	}
}

// Reconcile must run in the transaction that changed the payment set. The
// invoice row is locked first so concurrent confirmations serialize and the
// last writer sees every committed payment.
func (e *Engine) Reconcile(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID, trigger Trigger) (Result, error) {
	if !scope.Valid() {
		return Result{}, tenancy.ErrMissingTenant
	}
	invoice, err := e.invoiceRepo.LockByID(ctx, tx, scope, invoiceID)
	if err != nil {
		return Result{}, err
	}
	if invoice == nil {
		return Result{}, ErrInvoiceNotFound
	}

	counted, err := e.paymentRepo.ListCounted(ctx, tx, scope, invoiceID)
	if err != nil {
		return Result{}, err
	}
	paid := Sum(counted)
	status := invoicedomain.DeriveStatus(invoice.Status, invoice.TotalAmount, paid)

	now := e.clock.Now()
	if err := e.invoiceRepo.UpdateBalance(ctx, tx, scope, invoiceID, paid, status, now); err != nil {
		return Result{}, err
	}

	res := Result{
		SchoolID:    scope.SchoolID(),
		InvoiceID:   invoiceID,
		Status:      status,
		TotalAmount: invoice.TotalAmount,
		AmountPaid:  paid,
	}
	if p := trigger.Payment; p != nil && trigger.Event != "" {
		res.Event = &liveevents.Event{
			Type:          trigger.Event,
			PaymentID:     p.ID.String(),
			InvoiceID:     invoiceID.String(),
			StudentID:     p.StudentID.String(),
			Amount:        p.Amount,
			Method:        string(p.PaymentMethod),
			ReceiptNumber: p.ReceiptValue(),
			InvoiceStatus: string(status),
			AmountPaid:    paid,
			OccurredAt:    now,
		}
		if trigger.Event == liveevents.TypePaymentConfirmed && p.Counts() && p.PaymentMethod != paymentdomain.MethodWaiver {
			task := notification.NewPaymentSuccess(scope.SchoolID(), notification.PaymentSuccess{
				PaymentID:     p.ID.String(),
				StudentID:     p.StudentID.String(),
				InvoiceID:     invoiceID.String(),
				Amount:        p.Amount,
				ReceiptNumber: p.ReceiptValue(),
				PaymentMethod: string(p.PaymentMethod),
			})
			res.Notification = &task
		}
	}

	e.log.Debug("invoice reconciled",
		zap.String("school_id", scope.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("status", string(status)),
		zap.String("amount_paid", paid.StringFixed(2)),
	)
	return res, nil
}

// AfterCommit runs the best-effort side effects of a reconciliation.
// Neither can fail the caller.
func (e *Engine) AfterCommit(ctx context.Context, res Result) {
	e.metrics.RecordReconciliation(ctx, string(res.Status))
	if res.Notification != nil && e.queue != nil {
		e.queue.Enqueue(ctx, *res.Notification)
	}
	if res.Event != nil {
		e.hub.Publish(res.SchoolID, *res.Event)
	}
}

// Sum adds the amounts of the payments that count toward amount_paid.
func Sum(payments []paymentdomain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Counts() {
			total = total.Add(p.Amount)
		}
	}
	return total.Round(2)
}

package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/schoolpay/internal/audit/repository"
	auditservice "github.com/smallbiznis/schoolpay/internal/audit/service"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/idempotency"
	invoicerepo "github.com/smallbiznis/schoolpay/internal/invoice/repository"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	paymentrepo "github.com/smallbiznis/schoolpay/internal/payment/repository"
	"github.com/smallbiznis/schoolpay/internal/payment/service"
	"github.com/smallbiznis/schoolpay/internal/payment/webhook"
	"github.com/smallbiznis/schoolpay/internal/receipt"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu    sync.Mutex
	fail  bool
	calls []gateway.InitializeRequest
	seq   int
}

func (g *fakeGateway) Provider() string { return gateway.ProviderPaystack }

func (g *fakeGateway) NewReference() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("SP-TEST-%03d", g.seq)
}

func (g *fakeGateway) Initialize(_ context.Context, req gateway.InitializeRequest) (gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.fail {
		return gateway.Session{}, gateway.ErrGatewayUnavailable
	}
	return gateway.Session{
		Provider:         gateway.ProviderPaystack,
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
	}, nil
}

func (g *fakeGateway) VerifyWebhook([]byte, http.Header) error { return nil }

func (g *fakeGateway) ParseWebhook([]byte) (*gateway.Event, error) { return nil, gateway.ErrInvalidPayload }

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type harness struct {
	f        *testkit.Fixture
	svc      domain.Service
	ingester *webhook.Ingester
	queue    *testkit.Queue
	hub      *liveevents.Hub

	school  snowflake.ID
	student snowflake.ID
	term    snowflake.ID
	class   snowflake.ID
	invoice snowflake.ID
	actor   snowflake.ID
	ctx     context.Context
}

func newHarness(t *testing.T, total string, gw gateway.Gateway) *harness {
	t.Helper()
	f := testkit.NewFixture(t)
	clk := clock.NewFakeClock(f.Now)
	h := &harness{f: f, queue: &testkit.Queue{}, hub: liveevents.NewHub()}

	invoices := invoicerepo.Provide()
	payments := paymentrepo.Provide()
	engine := reconcile.New(reconcile.Params{
		Log:         zap.NewNop(),
		Clock:       clk,
		InvoiceRepo: invoices,
		PaymentRepo: payments,
		Queue:       h.queue,
		Hub:         h.hub,
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    f.DB,
		Log:   zap.NewNop(),
		GenID: f.Node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	store := idempotency.NewSQLStore(f.DB, clk, time.Minute)
	registry := gateway.NewRegistry(gw)

	h.svc = service.New(service.Params{
		DB:          f.DB,
		Log:         zap.NewNop(),
		GenID:       f.Node,
		Clock:       clk,
		Config:      config.Config{PublicBaseURL: "https://pay.test"},
		Repo:        payments,
		InvoiceRepo: invoices,
		Engine:      engine,
		Sequence:    receipt.NewSequence(),
		Renderer:    receipt.NewRenderer(),
		Gateways:    registry,
		Idempotency: store,
		Audit:       audit,
	})
	h.ingester = webhook.New(webhook.Params{
		Log:         zap.NewNop(),
		Gateways:    registry,
		Idempotency: store,
		Payments:    h.svc,
	})

	h.school, h.student, h.invoice = h.seedInvoice("Greenfield", total)
	h.actor = f.User(h.school, "bursar@greenfield.test", "x", "bursar", false)
	h.ctx = h.staffContext(h.school, h.actor)
	return h
}

// seedInvoice creates a school with one student and one unpaid invoice.
func (h *harness) seedInvoice(name, total string) (school, student, invoice snowflake.ID) {
	school = h.f.School(name)
	session := h.f.Session(school, "2024/2025")
	h.term = h.f.Term(school, session, "First Term", 0)
	h.class = h.f.Class(school, "JSS1")
	student = h.f.Student(school, "GF/001", "0")
	invoice = h.f.Invoice(school, student, h.term, h.class, total, "0", "unpaid")
	return school, student, invoice
}

func (h *harness) staffContext(school, user snowflake.ID) context.Context {
	ctx := tenancy.WithSchool(context.Background(), school)
	return obscontext.WithActor(ctx, obscontext.ActorTypeUser, user.String())
}

type invoiceRow struct {
	AmountPaid decimal.Decimal
	Status     string
}

func (h *harness) invoiceState(id snowflake.ID) (decimal.Decimal, string) {
	var row invoiceRow
	if err := h.f.DB.Raw(`SELECT amount_paid, status FROM invoices WHERE id = ?`, id).Scan(&row).Error; err != nil {
		panic(err)
	}
	return row.AmountPaid, row.Status
}

func chargeSuccess(eventID int, reference string, amountKobo int64, school snowflake.ID) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"id":        eventID,
			"reference": reference,
			"amount":    amountKobo,
			"currency":  "NGN",
			"status":    "success",
			"paid_at":   "2025-01-10T09:30:00Z",
			"metadata":  map[string]any{"school_id": school.String()},
		},
	})
	return body
}

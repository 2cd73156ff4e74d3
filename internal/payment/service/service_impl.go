package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/idempotency"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	"github.com/smallbiznis/schoolpay/internal/receipt"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 200
)

const (
	eventRecorded    = "recorded"
	eventSubmitted   = "submitted"
	eventApproved    = "approved"
	eventRejected    = "rejected"
	eventInitialized = "initialized"
	eventConfirmed   = "confirmed"
	eventVoided      = "voided"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	Engine      *reconcile.Engine
	Sequence    *receipt.Sequence
	Renderer    *receipt.Renderer
	Gateways    *gateway.Registry
	Idempotency idempotency.Store
	Audit       auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	engine      *reconcile.Engine
	sequence    *receipt.Sequence
	renderer    *receipt.Renderer
	gateways    *gateway.Registry
	idempotency idempotency.Store
	audit       auditdomain.Service
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Config,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		engine:      p.Engine,
		sequence:    p.Sequence,
		renderer:    p.Renderer,
		gateways:    p.Gateways,
		idempotency: p.Idempotency,
		audit:       p.Audit,
		metrics:     p.Metrics,
	}
}

func (s *Service) RecordCash(ctx context.Context, req domain.RecordCashRequest) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, err
	}
	amount, err := validateAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := s.newPayment(invoiceID, amount, actor, dateOr(req.PaymentDate, now), now)
	payment.Narration = strings.TrimSpace(req.Narration)
	payment.CollectionPoint = strings.TrimSpace(req.CollectionPoint)
	payment.Apply(domain.CashState{})

	return s.recordConfirmed(ctx, scope, payment, auditdomain.ActionPaymentCashRecorded, true)
}

func (s *Service) RecordWaiver(ctx context.Context, req domain.RecordWaiverRequest) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, err
	}
	amount, err := validateAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := s.newPayment(invoiceID, amount, actor, now, now)
	payment.Narration = strings.TrimSpace(req.Reason)
	payment.Apply(domain.WaiverState{})

	return s.recordConfirmed(ctx, scope, payment, auditdomain.ActionPaymentWaiverRecorded, false)
}

// recordConfirmed inserts a payment that is confirmed on creation and
// reconciles its invoice in the same transaction.
func (s *Service) recordConfirmed(ctx context.Context, scope tenancy.Scope, payment *domain.Payment, action string, withReceipt bool) (*domain.Payment, error) {
	var res reconcile.Result
	err := scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		invoice, err := s.openInvoice(ctx, tx, scope, payment.InvoiceID)
		if err != nil {
			return err
		}
		payment.StudentID = invoice.StudentID
		payment.Currency = invoice.Currency

		if withReceipt {
			number, err := s.sequence.Next(ctx, tx, scope, payment.CreatedAt)
			if err != nil {
				return err
			}
			payment.ReceiptNumber = &number
		}
		if err := s.repo.Insert(ctx, tx, scope, payment); err != nil {
			return err
		}
		res, err = s.engine.Reconcile(ctx, tx, scope, payment.InvoiceID, reconcile.Trigger{
			Payment: payment,
			Event:   liveevents.TypePaymentConfirmed,
		})
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     action,
			TargetType: "payment",
			TargetID:   payment.ID.String(),
			Metadata:   paymentMetadata(payment, res),
		})
	})
	if err != nil {
		return nil, s.mapInvoiceErr(err)
	}

	s.engine.AfterCommit(ctx, res)
	s.metrics.RecordPaymentEvent(ctx, string(payment.PaymentMethod), eventRecorded)
	s.log.Info("payment recorded",
		zap.String("school_id", scope.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("method", string(payment.PaymentMethod)),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("invoice_status", string(res.Status)),
	)
	return payment, nil
}

func (s *Service) RecordTransfer(ctx context.Context, req domain.RecordTransferRequest) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, err
	}
	in, err := newTransferInput(req.Amount, req.Reference, req.Narration, req.PaymentDate)
	if err != nil {
		return nil, err
	}
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.submitTransfer(ctx, scope, invoiceID, actor, in)
}

// SubmitPublicTransfer records a transfer the parent declares on the pay
// page. It joins the same approval queue as staff-entered transfers, with no
// recorder.
func (s *Service) SubmitPublicTransfer(ctx context.Context, req domain.PublicTransferRequest) (domain.PublicTransfer, error) {
	in, err := newTransferInput(req.Amount, req.Reference, req.Narration, req.PaymentDate)
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	row, scope, err := s.invoiceByToken(ctx, req.Token)
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	ctx = obscontext.WithActor(tenancy.WithScope(ctx, scope), obscontext.ActorTypeParent, "")

	payment, err := s.submitTransfer(ctx, scope, row.ID, 0, in)
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	return payment.PublicTransfer(), nil
}

type transferInput struct {
	amount    decimal.Decimal
	reference string
	narration string
	paidAt    *time.Time
}

func newTransferInput(amount decimal.Decimal, reference, narration string, paidAt *time.Time) (transferInput, error) {
	amount, err := validateAmount(amount)
	if err != nil {
		return transferInput{}, err
	}
	reference = strings.TrimSpace(reference)
	if len(reference) < domain.MinReferenceLength {
		return transferInput{}, domain.ErrInvalidReference
	}
	return transferInput{
		amount:    amount,
		reference: reference,
		narration: strings.TrimSpace(narration),
		paidAt:    paidAt,
	}, nil
}

// submitTransfer inserts a pending transfer. The (school, reference) lookup
// gives the friendly error; the unique constraint catches a concurrent twin.
func (s *Service) submitTransfer(ctx context.Context, scope tenancy.Scope, invoiceID, actor snowflake.ID, in transferInput) (*domain.Payment, error) {
	now := s.clock.Now()
	payment := s.newPayment(invoiceID, in.amount, actor, dateOr(in.paidAt, now), now)
	payment.Reference = &in.reference
	payment.Narration = in.narration
	payment.Apply(domain.TransferState{Phase: domain.TransferPendingApproval})

	err := scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		invoice, err := s.openInvoice(ctx, tx, scope, invoiceID)
		if err != nil {
			return err
		}
		payment.StudentID = invoice.StudentID
		payment.Currency = invoice.Currency

		existing, err := s.repo.FindByReference(ctx, tx, scope, in.reference)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateReference
		}
		if err := s.repo.Insert(ctx, tx, scope, payment); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionPaymentTransferSubmitted,
			TargetType: "payment",
			TargetID:   payment.ID.String(),
			Metadata: map[string]any{
				"invoice_id": invoiceID.String(),
				"amount":     in.amount.StringFixed(2),
				"reference":  in.reference,
				"by_parent":  actor == 0,
			},
		})
	})
	if err != nil {
		return nil, s.mapInvoiceErr(err)
	}

	s.metrics.RecordPaymentEvent(ctx, string(payment.PaymentMethod), eventSubmitted)
	s.log.Info("transfer submitted for approval",
		zap.String("school_id", scope.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", in.amount.StringFixed(2)),
		zap.Bool("by_parent", actor == 0),
	)
	return payment, nil
}

func (s *Service) ReviewTransfer(ctx context.Context, req domain.ReviewTransferRequest) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.PaymentID)
	if err != nil {
		return nil, err
	}
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var (
		payment *domain.Payment
		res     reconcile.Result
	)
	now := s.clock.Now()
	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		payment, err = s.repo.LockByID(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrNotFound
		}
		state, err := payment.State()
		if err != nil {
			return err
		}
		transfer, ok := state.(domain.TransferState)
		if !ok || payment.IsVoided {
			return domain.ErrAlreadyProcessed
		}

		var next domain.TransferState
		if req.Approve {
			next, err = transfer.Approve()
		} else {
			next, err = transfer.Reject()
		}
		if err != nil {
			return domain.ErrAlreadyProcessed
		}

		payment.Apply(next)
		payment.ApprovedBy = &actor
		payment.ApprovedAt = &now
		payment.ReviewNotes = strings.TrimSpace(req.Notes)
		payment.UpdatedAt = now
		updates := map[string]any{
			"status":          payment.Status,
			"approval_status": payment.ApprovalStatus,
			"approved_by":     actor,
			"approved_at":     now,
			"review_notes":    payment.ReviewNotes,
			"updated_at":      now,
		}

		action := auditdomain.ActionPaymentTransferRejected
		if req.Approve {
			if _, err := s.openInvoice(ctx, tx, scope, payment.InvoiceID); err != nil {
				return err
			}
			number, err := s.sequence.Next(ctx, tx, scope, now)
			if err != nil {
				return err
			}
			payment.ReceiptNumber = &number
			updates["receipt_number"] = number
			action = auditdomain.ActionPaymentTransferApproved
		}
		if err := s.repo.Update(ctx, tx, scope, payment.ID, updates); err != nil {
			return err
		}
		if req.Approve {
			res, err = s.engine.Reconcile(ctx, tx, scope, payment.InvoiceID, reconcile.Trigger{
				Payment: payment,
				Event:   liveevents.TypePaymentConfirmed,
			})
			if err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     action,
			TargetType: "payment",
			TargetID:   payment.ID.String(),
			Metadata:   paymentMetadata(payment, res),
		})
	})
	if err != nil {
		return nil, s.mapInvoiceErr(err)
	}

	event := eventRejected
	if req.Approve {
		event = eventApproved
		s.engine.AfterCommit(ctx, res)
	}
	s.metrics.RecordPaymentEvent(ctx, string(payment.PaymentMethod), event)
	s.log.Info("transfer "+event,
		zap.String("school_id", scope.String()),
		zap.String("payment_id", payment.ID.String()),
	)
	return payment, nil
}

func (s *Service) Void(ctx context.Context, req domain.VoidRequest) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.PaymentID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if n := len([]rune(reason)); n < domain.MinVoidReasonLength || n > domain.MaxVoidReasonLength {
		return nil, domain.ErrInvalidReason
	}
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var (
		payment *domain.Payment
		res     reconcile.Result
	)
	now := s.clock.Now()
	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		payment, err = s.repo.LockByID(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrNotFound
		}
		if payment.IsVoided {
			return domain.ErrAlreadyVoided
		}
		state, err := payment.State()
		if err != nil {
			return err
		}
		if !state.Confirmed() {
			return domain.ErrNotConfirmed
		}

		payment.IsVoided = true
		payment.VoidReason = &reason
		payment.VoidedBy = &actor
		payment.VoidedAt = &now
		payment.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, scope, payment.ID, map[string]any{
			"is_voided":   true,
			"void_reason": reason,
			"voided_by":   actor,
			"voided_at":   now,
			"updated_at":  now,
		}); err != nil {
			return err
		}
		res, err = s.engine.Reconcile(ctx, tx, scope, payment.InvoiceID, reconcile.Trigger{
			Payment: payment,
			Event:   liveevents.TypePaymentVoided,
		})
		if err != nil {
			return err
		}
		meta := paymentMetadata(payment, res)
		meta["reason"] = reason
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionPaymentVoided,
			TargetType: "payment",
			TargetID:   payment.ID.String(),
			Metadata:   meta,
		})
	})
	if err != nil {
		return nil, s.mapInvoiceErr(err)
	}

	s.engine.AfterCommit(ctx, res)
	s.metrics.RecordPaymentEvent(ctx, string(payment.PaymentMethod), eventVoided)
	s.log.Warn("payment voided",
		zap.String("school_id", scope.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("invoice_status", string(res.Status)),
	)
	return payment, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	paymentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, scope, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, scope, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	items, err := s.repo.ListByInvoice(ctx, s.db, scope, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Payment{}
	}
	return items, nil
}

func (s *Service) ListPendingTransfers(ctx context.Context, limit int) ([]domain.PendingTransfer, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultPendingLimit
	case limit > maxPendingLimit:
		limit = maxPendingLimit
	}
	items, err := s.repo.ListPendingTransfers(ctx, s.db, scope, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PendingTransfer{}
	}
	return items, nil
}

func (s *Service) AttachProof(ctx context.Context, req domain.AttachProofRequest) (*domain.Payment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(req.PaymentID)
	if err != nil {
		return nil, err
	}
	name, err := cleanFileName(req.FileName)
	if err != nil {
		return nil, err
	}
	return s.attachProof(ctx, scope, id, name, func(p *domain.Payment) error {
		if p.IsVoided {
			return domain.ErrAlreadyVoided
		}
		return nil
	})
}

// AttachPublicProof lets the parent attach a transfer slip to a transfer on
// their own invoice while it still awaits review.
func (s *Service) AttachPublicProof(ctx context.Context, req domain.PublicProofRequest) (domain.PublicTransfer, error) {
	id, err := parseID(req.PaymentID)
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	name, err := cleanFileName(req.FileName)
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	row, scope, err := s.invoiceByToken(ctx, req.Token)
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	ctx = obscontext.WithActor(tenancy.WithScope(ctx, scope), obscontext.ActorTypeParent, "")

	payment, err := s.attachProof(ctx, scope, id, name, func(p *domain.Payment) error {
		if p.InvoiceID != row.ID || p.PaymentMethod != domain.MethodTransfer {
			return domain.ErrNotFound
		}
		if p.IsVoided || p.ApprovalStatus != domain.ApprovalPending {
			return domain.ErrAlreadyProcessed
		}
		return nil
	})
	if err != nil {
		return domain.PublicTransfer{}, err
	}
	return payment.PublicTransfer(), nil
}

func (s *Service) attachProof(ctx context.Context, scope tenancy.Scope, id snowflake.ID, name string, allow func(*domain.Payment) error) (*domain.Payment, error) {
	var payment *domain.Payment
	err := scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		payment, err = s.repo.LockByID(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrNotFound
		}
		if err := allow(payment); err != nil {
			return err
		}
		proof := ProofPath(scope.SchoolID(), payment.ID, name)
		payment.ProofURL = &proof
		payment.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, scope, payment.ID, map[string]any{
			"proof_url":  proof,
			"updated_at": payment.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ProofPath is the storage key for a payment's proof document. It is always
// nested under the owning school and payment.
func ProofPath(schoolID, paymentID snowflake.ID, fileName string) string {
	return fmt.Sprintf("schools/%s/payments/%s/%s", schoolID, paymentID, fileName)
}

func cleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)
	if name == "" || base != name || base == "." || base == ".." || base == "/" {
		return "", domain.ErrInvalidFileName
	}
	return base, nil
}

// openInvoice locks the invoice and rejects one closed by an admin.
func (s *Service) openInvoice(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.invoiceRepo.LockByID(ctx, tx, scope, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if invoice.Status.Closed() {
		return nil, domain.ErrInvoiceClosed
	}
	return invoice, nil
}

func (s *Service) mapInvoiceErr(err error) error {
	if errors.Is(err, reconcile.ErrInvoiceNotFound) {
		return domain.ErrInvoiceNotFound
	}
	if errors.Is(err, tenancy.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *Service) newPayment(invoiceID snowflake.ID, amount decimal.Decimal, actor snowflake.ID, paidAt, now time.Time) *domain.Payment {
	p := &domain.Payment{
		ID:          s.genID.Generate(),
		InvoiceID:   invoiceID,
		Amount:      amount,
		Currency:    money.CurrencyNGN,
		PaymentDate: paidAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor != 0 {
		p.RecordedBy = &actor
	}
	return p
}

func paymentMetadata(p *domain.Payment, res reconcile.Result) map[string]any {
	meta := map[string]any{
		"invoice_id": p.InvoiceID.String(),
		"amount":     p.Amount.StringFixed(2),
		"method":     string(p.PaymentMethod),
	}
	if n := p.ReceiptValue(); n != "" {
		meta["receipt_number"] = n
	}
	if ref := p.ReferenceValue(); ref != "" {
		meta["reference"] = ref
	}
	if res.Status != "" {
		meta["invoice_status"] = string(res.Status)
		meta["amount_paid"] = res.AmountPaid.StringFixed(2)
	}
	return meta
}

func validateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() || !money.HasKoboPrecision(amount) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return amount, nil
}

// requireActor returns the signed-in staff member recording the change.
func requireActor(ctx context.Context) (snowflake.ID, error) {
	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType != obscontext.ActorTypeUser {
		return 0, domain.ErrMissingActor
	}
	id, err := snowflake.ParseString(strings.TrimSpace(actorID))
	if err != nil || id == 0 {
		return 0, domain.ErrMissingActor
	}
	return id, nil
}

func dateOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.UTC()
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

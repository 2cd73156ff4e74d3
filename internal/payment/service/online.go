package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/idempotency"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InitializeOnline starts a gateway checkout for the outstanding balance of
// the invoice behind token. It never marks anything paid; only a verified
// webhook does.
func (s *Service) InitializeOnline(ctx context.Context, req domain.InitializeOnlineRequest) (domain.InitializeOnlineResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return domain.InitializeOnlineResponse{}, domain.ErrMissingEmail
	}
	row, scope, err := s.invoiceByToken(ctx, req.Token)
	if err != nil {
		return domain.InitializeOnlineResponse{}, err
	}
	if row.Status.Closed() {
		return domain.InitializeOnlineResponse{}, domain.ErrInvoiceClosed
	}
	outstanding := row.Outstanding()
	if row.Status == invoicedomain.StatusPaid || !outstanding.IsPositive() {
		return domain.InitializeOnlineResponse{}, domain.ErrNothingToPay
	}

	replayKey := row.ID.String() + ":" + email + ":" + outstanding.StringFixed(2)
	if cached, ok := s.recallSession(ctx, replayKey); ok {
		return cached, nil
	}

	gw, err := s.gateways.Default()
	if err != nil {
		return domain.InitializeOnlineResponse{}, domain.ErrGatewayUnavailable
	}
	reference := gw.NewReference()
	session, err := gw.Initialize(ctx, gateway.InitializeRequest{
		Reference:   reference,
		Email:       email,
		AmountKobo:  money.ToKobo(outstanding),
		Currency:    row.Currency,
		CallbackURL: s.callbackURL(req.Token),
		Metadata: map[string]string{
			"school_id":     row.SchoolID.String(),
			"invoice_id":    row.ID.String(),
			"student_id":    row.StudentID.String(),
			"payment_token": req.Token,
		},
	})
	if err != nil {
		s.log.Error("gateway initialize failed",
			zap.String("provider", gw.Provider()),
			zap.String("invoice_id", row.ID.String()),
			zap.Error(err),
		)
		return domain.InitializeOnlineResponse{}, domain.ErrGatewayUnavailable
	}
	if session.Reference != "" {
		reference = session.Reference
	}

	now := s.clock.Now()
	payment := s.newPayment(row.ID, outstanding, 0, now, now)
	payment.StudentID = row.StudentID
	payment.Currency = row.Currency
	payment.Reference = &reference
	payment.Apply(domain.OnlineState{Phase: domain.OnlinePending})
	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, scope, payment)
	})
	if err != nil {
		return domain.InitializeOnlineResponse{}, err
	}

	resp := domain.InitializeOnlineResponse{
		Session:  session,
		Amount:   outstanding,
		Currency: row.Currency,
	}
	s.rememberSession(ctx, replayKey, resp)
	s.metrics.RecordPaymentEvent(ctx, string(domain.MethodOnline), eventInitialized)
	s.log.Info("online payment initialized",
		zap.String("school_id", scope.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", reference),
		zap.String("amount", outstanding.StringFixed(2)),
	)
	return resp, nil
}

func (s *Service) recallSession(ctx context.Context, key string) (domain.InitializeOnlineResponse, bool) {
	payload, ok, err := s.idempotency.Recall(ctx, idempotency.KindInitReplay, key)
	if err != nil {
		s.log.Warn("init replay lookup failed", zap.Error(err))
		return domain.InitializeOnlineResponse{}, false
	}
	if !ok {
		return domain.InitializeOnlineResponse{}, false
	}
	var resp domain.InitializeOnlineResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.log.Warn("init replay payload unreadable", zap.Error(err))
		return domain.InitializeOnlineResponse{}, false
	}
	resp.Replayed = true
	return resp, true
}

func (s *Service) rememberSession(ctx context.Context, key string, resp domain.InitializeOnlineResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.idempotency.Remember(ctx, idempotency.KindInitReplay, key, payload); err != nil {
		s.log.Warn("init replay store failed", zap.Error(err))
	}
}

func (s *Service) callbackURL(token string) string {
	if url := strings.TrimRight(strings.TrimSpace(s.cfg.Paystack.CallbackURL), "/"); url != "" {
		return url + "/pay/" + token + "/callback"
	}
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/pay/" + token + "/callback"
}

// ConfirmOnline applies a verified gateway charge to its pending payment.
func (s *Service) ConfirmOnline(ctx context.Context, req domain.ConfirmOnlineRequest) (*domain.Payment, error) {
	schoolID, err := snowflake.ParseString(strings.TrimSpace(req.SchoolID))
	if err != nil || schoolID == 0 {
		return nil, domain.ErrUnknownReference
	}
	scope, err := tenancy.NewScope(schoolID)
	if err != nil {
		return nil, domain.ErrUnknownReference
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, domain.ErrUnknownReference
	}
	ctx = obscontext.WithActor(tenancy.WithScope(ctx, scope), obscontext.ActorTypeGateway, req.Provider)

	var (
		payment *domain.Payment
		res     reconcile.Result
	)
	now := s.clock.Now()
	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		payment, err = s.repo.LockByReference(ctx, tx, scope, reference)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrUnknownReference
		}
		state, err := payment.State()
		if err != nil {
			return err
		}
		online, ok := state.(domain.OnlineState)
		if !ok || payment.IsVoided {
			return domain.ErrAlreadyConfirmed
		}
		next, err := online.Confirm()
		if err != nil {
			return domain.ErrAlreadyConfirmed
		}

		if req.AmountKobo > 0 {
			paid := money.FromKobo(req.AmountKobo)
			if !paid.Equal(payment.Amount) {
				s.log.Warn("gateway amount differs from initialized amount",
					zap.String("reference", reference),
					zap.String("initialized", payment.Amount.StringFixed(2)),
					zap.String("charged", paid.StringFixed(2)),
				)
				payment.Amount = paid
			}
		}
		paidAt := now
		if !req.PaidAt.IsZero() {
			paidAt = req.PaidAt.UTC()
		}
		number, err := s.sequence.Next(ctx, tx, scope, now)
		if err != nil {
			return err
		}

		payment.Apply(next)
		payment.ReceiptNumber = &number
		payment.PaymentDate = paidAt
		payment.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, scope, payment.ID, map[string]any{
			"status":          payment.Status,
			"approval_status": payment.ApprovalStatus,
			"amount":          payment.Amount,
			"receipt_number":  number,
			"payment_date":    paidAt,
			"updated_at":      now,
		}); err != nil {
			return err
		}
		res, err = s.engine.Reconcile(ctx, tx, scope, payment.InvoiceID, reconcile.Trigger{
			Payment: payment,
			Event:   liveevents.TypePaymentConfirmed,
		})
		if err != nil {
			return err
		}
		meta := paymentMetadata(payment, res)
		meta["provider"] = req.Provider
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionPaymentOnlineConfirmed,
			TargetType: "payment",
			TargetID:   payment.ID.String(),
			Metadata:   meta,
		})
	})
	if err != nil {
		return nil, s.mapInvoiceErr(err)
	}

	s.engine.AfterCommit(ctx, res)
	s.metrics.RecordPaymentEvent(ctx, string(domain.MethodOnline), eventConfirmed)
	s.log.Info("online payment confirmed",
		zap.String("school_id", scope.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("receipt_number", payment.ReceiptValue()),
		zap.String("invoice_status", string(res.Status)),
	)
	return payment, nil
}

// PublicStatus is polled by the pay page after checkout.
func (s *Service) PublicStatus(ctx context.Context, token, reference string) (domain.PublicStatus, error) {
	row, scope, err := s.invoiceByToken(ctx, token)
	if err != nil {
		return domain.PublicStatus{}, err
	}
	out := domain.PublicStatus{
		InvoiceStatus: string(row.Status),
		TotalAmount:   row.TotalAmount,
		AmountPaid:    row.AmountPaid,
		Outstanding:   row.Outstanding(),
		IsPaid:        row.Status == invoicedomain.StatusPaid,
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return out, nil
	}
	payment, err := s.repo.FindByReference(ctx, s.db, scope, reference)
	if err != nil {
		return domain.PublicStatus{}, err
	}
	if payment != nil && payment.InvoiceID == row.ID {
		out.Payment = &domain.PublicPayment{
			Status:        payment.Status,
			ReceiptNumber: payment.ReceiptValue(),
			Amount:        payment.Amount,
			PaymentDate:   payment.PaymentDate,
		}
	}
	return out, nil
}

// invoiceByToken resolves a payment link. The token is the credential, and
// the returned scope is the owning school's.
func (s *Service) invoiceByToken(ctx context.Context, token string) (*invoicedomain.PublicRow, tenancy.Scope, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, tenancy.Scope{}, domain.ErrInvoiceNotFound
	}
	row, err := s.invoiceRepo.FindPublicByToken(ctx, s.db, token)
	if err != nil {
		return nil, tenancy.Scope{}, err
	}
	if row == nil {
		return nil, tenancy.Scope{}, domain.ErrInvoiceNotFound
	}
	scope, err := tenancy.NewScope(row.SchoolID)
	if err != nil {
		return nil, tenancy.Scope{}, domain.ErrInvoiceNotFound
	}
	return row, scope, nil
}

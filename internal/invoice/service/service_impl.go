package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/notification"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	PaymentRepo paymentdomain.Repository
	Queue       notification.Queue
	Audit       auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	cfg         config.Config
	repo        domain.Repository
	paymentRepo paymentdomain.Repository
	queue       notification.Queue
	audit       auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		clock:       p.Clock,
		cfg:         p.Config,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		queue:       p.Queue,
		audit:       p.Audit,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, scope, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	items, err := s.repo.ListLineItems(ctx, s.db, scope, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoicesRequest) (domain.ListInvoicesResponse, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.ListInvoicesResponse{}, err
	}

	filter := domain.ListFilter{
		Status: req.Status,
		Search: req.Search,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.ListInvoicesResponse{}, domain.ErrInvalidStatus
	}
	if filter.TermID, err = optionalID(req.TermID); err != nil {
		return domain.ListInvoicesResponse{}, err
	}
	if filter.ClassID, err = optionalID(req.ClassID); err != nil {
		return domain.ListInvoicesResponse{}, err
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListInvoicesResponse{}, domain.ErrInvalidPageToken
		}
		before, err := snowflake.ParseString(cursor.ID)
		if err != nil || before == 0 {
			return domain.ListInvoicesResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeID = before
	}

	limit := req.Limit()
	filter.Limit = limit + 1
	rows, err := s.repo.List(ctx, s.db, scope, filter)
	if err != nil {
		return domain.ListInvoicesResponse{}, err
	}
	rows, page, err := pagination.Trim(rows, limit, func(v domain.InvoiceView) pagination.Cursor {
		return pagination.Cursor{ID: v.ID.String()}
	})
	if err != nil {
		return domain.ListInvoicesResponse{}, err
	}
	if rows == nil {
		rows = []domain.InvoiceView{}
	}
	return domain.ListInvoicesResponse{PageInfo: page, Invoices: rows}, nil
}

// Summary totals a term's invoices. Cancelled invoices are left out of every
// figure; waived ones count as invoiced for what was actually collected.
func (s *Service) Summary(ctx context.Context, termID string) (domain.Summary, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	id, err := parseID(termID)
	if err != nil {
		return domain.Summary{}, err
	}
	invoices, err := s.repo.ListForTerm(ctx, s.db, scope, id)
	if err != nil {
		return domain.Summary{}, err
	}
	return Summarize(id, invoices), nil
}

// Summarize is the pure aggregation behind Summary.
func Summarize(termID snowflake.ID, invoices []domain.Invoice) domain.Summary {
	out := domain.Summary{
		TermID:           termID,
		TotalInvoiced:    decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		CollectionRate:   decimal.Zero,
	}
	for _, inv := range invoices {
		switch inv.Status {
		case domain.StatusCancelled:
			continue
		case domain.StatusWaived:
			out.TotalInvoiced = out.TotalInvoiced.Add(inv.AmountPaid)
		case domain.StatusPaid:
			out.PaidCount++
			out.TotalInvoiced = out.TotalInvoiced.Add(inv.TotalAmount)
			out.TotalOutstanding = out.TotalOutstanding.Add(inv.Outstanding())
		case domain.StatusPartial:
			out.PartialCount++
			out.TotalInvoiced = out.TotalInvoiced.Add(inv.TotalAmount)
			out.TotalOutstanding = out.TotalOutstanding.Add(inv.Outstanding())
		default:
			out.UnpaidCount++
			out.TotalInvoiced = out.TotalInvoiced.Add(inv.TotalAmount)
			out.TotalOutstanding = out.TotalOutstanding.Add(inv.Outstanding())
		}
		out.TotalCount++
		out.TotalCollected = out.TotalCollected.Add(inv.AmountPaid)
	}
	if out.TotalInvoiced.IsPositive() {
		out.CollectionRate = out.TotalCollected.Div(out.TotalInvoiced).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return out
}

func (s *Service) GetByToken(ctx context.Context, token string) (domain.PublicInvoice, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.PublicInvoice{}, domain.ErrNotFound
	}
	row, err := s.repo.FindPublicByToken(ctx, s.db, token)
	if err != nil {
		return domain.PublicInvoice{}, err
	}
	if row == nil {
		return domain.PublicInvoice{}, domain.ErrNotFound
	}
	scope, err := tenancy.NewScope(row.SchoolID)
	if err != nil {
		return domain.PublicInvoice{}, domain.ErrNotFound
	}

	items, err := s.repo.ListLineItems(ctx, s.db, scope, row.ID)
	if err != nil {
		return domain.PublicInvoice{}, err
	}
	history, err := s.paymentRepo.ListByInvoice(ctx, s.db, scope, row.ID)
	if err != nil {
		return domain.PublicInvoice{}, err
	}
	payments := make([]domain.PublicPayment, 0, len(history))
	for _, p := range history {
		if p.IsVoided || p.Status == paymentdomain.StatusFailed {
			continue
		}
		if p.PaymentMethod == paymentdomain.MethodWaiver {
			continue
		}
		payments = append(payments, domain.PublicPayment{
			Amount:        p.Amount,
			Method:        string(p.PaymentMethod),
			Status:        string(p.Status),
			ReceiptNumber: p.ReceiptValue(),
			PaymentDate:   p.PaymentDate,
		})
	}
	if items == nil {
		items = []domain.LineItem{}
	}

	return domain.PublicInvoice{
		InvoiceID:         row.ID,
		SchoolName:        row.SchoolName,
		StudentName:       row.StudentName,
		ClassName:         row.ClassName,
		TermName:          row.TermName,
		SessionName:       row.SessionName,
		TotalAmount:       row.TotalAmount,
		AmountPaid:        row.AmountPaid,
		Balance:           row.Outstanding(),
		Status:            row.Status,
		DueDate:           row.DueDate,
		Currency:          row.Currency,
		LineItems:         items,
		Payments:          payments,
		PaystackPublicKey: s.cfg.Paystack.PublicKey,
	}, nil
}

func (s *Service) Waive(ctx context.Context, req domain.CloseRequest) (*domain.Invoice, error) {
	return s.close(ctx, req, domain.StatusWaived, auditdomain.ActionInvoiceWaived)
}

func (s *Service) Cancel(ctx context.Context, req domain.CloseRequest) (*domain.Invoice, error) {
	return s.close(ctx, req, domain.StatusCancelled, auditdomain.ActionInvoiceCancelled)
}

// close moves an open invoice into a sticky admin status. Cancelling also
// requires that no money was ever confirmed against it.
func (s *Service) close(ctx context.Context, req domain.CloseRequest, status domain.InvoiceStatus, action string) (*domain.Invoice, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if n := utf8.RuneCountInString(reason); n < domain.MinCloseReasonLength || n > domain.MaxCloseReasonLength {
		return nil, domain.ErrInvalidReason
	}
	if actorType, _ := obscontext.ActorFromContext(ctx); actorType != obscontext.ActorTypeUser {
		return nil, domain.ErrMissingActor
	}

	var out *domain.Invoice
	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		invoice, err := s.repo.LockByID(ctx, tx, scope, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}
		if invoice.Status.Closed() {
			return domain.ErrInvoiceClosed
		}
		if status == domain.StatusCancelled {
			confirmed, err := s.paymentRepo.CountConfirmed(ctx, tx, scope, invoice.ID)
			if err != nil {
				return err
			}
			if confirmed > 0 {
				return domain.ErrHasPayments
			}
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, scope, invoice.ID, status, reason, now); err != nil {
			if errors.Is(err, tenancy.ErrNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     action,
			TargetType: "invoice",
			TargetID:   invoice.ID.String(),
			Metadata: map[string]any{
				"student_id":      invoice.StudentID.String(),
				"term_id":         invoice.TermID.String(),
				"previous_status": string(invoice.Status),
				"amount_paid":     invoice.AmountPaid.StringFixed(2),
				"reason":          reason,
			},
		}); err != nil {
			return err
		}

		invoice.Status = status
		invoice.Notes = reason
		invoice.UpdatedAt = now
		out = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx, s.log).Info("invoice closed",
		zap.String("invoice_id", out.ID.String()),
		zap.String("status", string(status)),
	)
	return out, nil
}

func (s *Service) ListDebtors(ctx context.Context, termID string, statuses []domain.InvoiceStatus) ([]domain.Debtor, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(termID)
	if err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if st != domain.StatusUnpaid && st != domain.StatusPartial {
			return nil, domain.ErrInvalidStatus
		}
	}
	debtors, err := s.repo.ListDebtors(ctx, s.db, scope, id, statuses)
	if err != nil {
		return nil, err
	}
	if debtors == nil {
		debtors = []domain.Debtor{}
	}
	return debtors, nil
}

// SendReminders hands a reminder blast to the workflow engine, which pulls
// the debtor list itself.
func (s *Service) SendReminders(ctx context.Context, req domain.SendRemindersRequest) (domain.SendRemindersResult, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.SendRemindersResult{}, err
	}
	termID, err := parseID(req.TermID)
	if err != nil {
		return domain.SendRemindersResult{}, err
	}
	debtors, err := s.repo.ListDebtors(ctx, s.db, scope, termID, nil)
	if err != nil {
		return domain.SendRemindersResult{}, err
	}
	res := domain.SendRemindersResult{Debtors: len(debtors)}
	if len(debtors) == 0 {
		return res, nil
	}
	if s.queue == nil {
		return domain.SendRemindersResult{}, domain.ErrNotificationsOff
	}

	template := strings.TrimSpace(req.MessageTemplate)
	if template == "" {
		template = domain.DefaultReminder
	}
	s.queue.Enqueue(ctx, notification.NewFeeReminder(scope.SchoolID(), termID, template))
	res.Queued = true
	logger.WithContext(ctx, s.log).Info("fee reminders queued",
		zap.String("term_id", termID.String()),
		zap.Int("debtors", res.Debtors),
	)
	return res, nil
}

// ListOverdue feeds the collections workflow. Days are counted in whole
// UTC calendar days from the invoice due date.
func (s *Service) ListOverdue(ctx context.Context, req domain.ListOverdueRequest) ([]domain.OverdueInvoice, error) {
	minDays, maxDays := domain.DefaultOverdueMinDays, domain.DefaultOverdueMaxDays
	if req.DaysOverdueMin != nil {
		minDays = *req.DaysOverdueMin
	}
	if req.DaysOverdueMax != nil {
		maxDays = *req.DaysOverdueMax
	}
	if minDays < 0 || maxDays < minDays {
		return nil, domain.ErrInvalidWindow
	}

	var statuses []domain.InvoiceStatus
	for _, raw := range strings.Split(req.Status, ",") {
		st := domain.InvoiceStatus(strings.TrimSpace(raw))
		if st == "" {
			continue
		}
		if st != domain.StatusUnpaid && st != domain.StatusPartial {
			return nil, domain.ErrInvalidStatus
		}
		statuses = append(statuses, st)
	}

	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	filter := domain.OverdueFilter{
		DueFrom:    today.AddDate(0, 0, -maxDays),
		DueBefore:  today.AddDate(0, 0, -minDays+1),
		Statuses:   statuses,
		ActiveOnly: req.SubscriptionActive == nil || *req.SubscriptionActive,
	}
	rows, err := s.repo.ListOverdue(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		due := rows[i].DueDate.UTC().Truncate(24 * time.Hour)
		rows[i].DaysOverdue = int(today.Sub(due).Hours() / 24)
	}

	logger.WithContext(ctx, s.log).Info("overdue feed served",
		zap.Int("days_min", minDays),
		zap.Int("days_max", maxDays),
		zap.Int("invoices", len(rows)),
	)
	return rows, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func optionalID(value string) (snowflake.ID, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return parseID(value)
}

// Package invoicegen bills every actively enrolled student of a term in one
// synchronous run. It is safe to run repeatedly.
package invoicegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	feedomain "github.com/smallbiznis/schoolpay/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	platformdomain "github.com/smallbiznis/schoolpay/internal/platformbilling/domain"
	"github.com/smallbiznis/schoolpay/internal/platformmetrics"
	"github.com/smallbiznis/schoolpay/internal/ratelimit"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"github.com/smallbiznis/schoolpay/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrTermNotFound         = errors.New("term_not_found")
	ErrNoActiveEnrollments  = errors.New("no_active_enrollments")
	ErrGenerationInProgress = errors.New("generation_in_progress")
)

type GenerateRequest struct {
	TermID              string `json:"term_id" binding:"required"`
	IncludeOptionalFees bool   `json:"include_optional_fees"`
	ApplyArrears        bool   `json:"apply_arrears"`
}

type Failure struct {
	StudentID snowflake.ID `json:"student_id"`
	Error     string       `json:"error"`
}

type GenerateResult struct {
	TermID         snowflake.ID           `json:"term_id"`
	Generated      int                    `json:"generated"`
	Skipped        int                    `json:"skipped"`
	Failed         int                    `json:"failed"`
	Failures       []Failure              `json:"failures"`
	TotalExpected  decimal.Decimal        `json:"total_expected"`
	Message        string                 `json:"message"`
	PlatformCharge *platformdomain.Charge `json:"platform_charge,omitempty"`
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	AcademicRepo academicdomain.Repository
	FeeRepo      feedomain.Repository
	InvoiceRepo  invoicedomain.Repository
	Billing      platformdomain.Service
	Audit        auditdomain.Service
	Limiter      *ratelimit.Limiter         `optional:"true"`
	Metrics      *metrics.GenerationMetrics `optional:"true"`
	Platform     *platformmetrics.Recorder  `optional:"true"`
}

type Generator struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	academic academicdomain.Repository
	fees     feedomain.Repository
	invoices invoicedomain.Repository
	billing  platformdomain.Service
	audit    auditdomain.Service
	limiter  *ratelimit.Limiter
	metrics  *metrics.GenerationMetrics
	platform *platformmetrics.Recorder
}

func New(p Params) *Generator {
	return &Generator{
		db:       p.DB,
		log:      p.Log.Named("invoicegen"),
		genID:    p.GenID,
		clock:    p.Clock,
		academic: p.AcademicRepo,
		fees:     p.FeeRepo,
		invoices: p.InvoiceRepo,
		billing:  p.Billing,
		audit:    p.Audit,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
		platform: p.Platform,
	}
}

// run holds the per-term lookups shared by every student of one generation.
type run struct {
	scope        tenancy.Scope
	term         *academicdomain.Term
	previous     *academicdomain.Term
	withOptional bool
	generatedBy  *snowflake.ID
	structures   map[snowflake.ID]*feedomain.FeeStructure
}

func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return GenerateResult{}, err
	}
	termID, err := snowflake.ParseString(strings.TrimSpace(req.TermID))
	if err != nil || termID == 0 {
		return GenerateResult{}, ErrInvalidID
	}

	release, ok := g.limiter.LockGeneration(ctx, scope.SchoolID(), termID)
	defer release()
	if !ok {
		return GenerateResult{}, ErrGenerationInProgress
	}

	started := g.clock.Now()
	res, err := g.generate(ctx, scope, termID, req)
	g.metrics.ObserveRun(g.clock.Now().Sub(started))
	return res, err
}

func (g *Generator) generate(ctx context.Context, scope tenancy.Scope, termID snowflake.ID, req GenerateRequest) (GenerateResult, error) {
	log := logger.WithContext(ctx, g.log).With(zap.String("term_id", termID.String()))

	term, err := g.academic.FindTerm(ctx, g.db, scope, termID)
	if err != nil {
		return GenerateResult{}, err
	}
	if term == nil {
		return GenerateResult{}, ErrTermNotFound
	}
	session, err := g.academic.FindSession(ctx, g.db, scope, term.SessionID)
	if err != nil {
		return GenerateResult{}, err
	}
	if session == nil {
		return GenerateResult{}, ErrTermNotFound
	}

	enrollments, err := g.academic.ListBillableEnrollments(ctx, g.db, scope, term.SessionID)
	if err != nil {
		return GenerateResult{}, err
	}
	active := enrollments[:0]
	for _, e := range enrollments {
		if e.StudentStatus == academicdomain.StudentActive {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		return GenerateResult{}, ErrNoActiveEnrollments
	}

	existing, err := g.invoices.ExistingStudentIDs(ctx, g.db, scope, term.ID)
	if err != nil {
		return GenerateResult{}, err
	}

	r := &run{
		scope:        scope,
		term:         term,
		withOptional: req.IncludeOptionalFees,
		generatedBy:  actorID(ctx),
		structures:   make(map[snowflake.ID]*feedomain.FeeStructure),
	}
	if req.ApplyArrears {
		if r.previous, err = g.academic.FindPreviousTerm(ctx, g.db, scope, *term); err != nil {
			return GenerateResult{}, err
		}
	}

	res := GenerateResult{TermID: term.ID, TotalExpected: decimal.Zero, Failures: []Failure{}}
	for _, enrollment := range active {
		if _, ok := existing[enrollment.StudentID]; ok {
			res.Skipped++
			continue
		}
		total, billed, err := g.bill(ctx, r, enrollment)
		switch {
		case err != nil && db.IsDuplicateKeyErr(err):
			res.Skipped++
		case err != nil:
			res.Failed++
			res.Failures = append(res.Failures, Failure{StudentID: enrollment.StudentID, Error: err.Error()})
			g.metrics.IncError(err)
			log.Warn("invoice generation failed for student",
				zap.String("student_id", enrollment.StudentID.String()),
				zap.Error(err),
			)
		case !billed:
			res.Skipped++
		default:
			res.Generated++
			res.TotalExpected = res.TotalExpected.Add(total)
		}
	}

	g.metrics.AddStudents(metrics.GenerationOutcomeGenerated, res.Generated)
	g.metrics.AddStudents(metrics.GenerationOutcomeSkipped, res.Skipped)
	g.metrics.AddStudents(metrics.GenerationOutcomeFailed, res.Failed)
	res.Message = fmt.Sprintf("Generated %d invoices totalling %s. %d skipped.", res.Generated, money.Format(res.TotalExpected), res.Skipped)

	if err := g.recordRun(ctx, scope, res, req); err != nil {
		log.Error("generation audit failed", zap.Error(err))
	}

	label := academicdomain.Label(*term, *session)
	billable := res.Generated + res.Skipped
	if target, err := tenancy.SystemTarget(scope); err == nil {
		charge, err := g.billing.EnsureCharge(ctx, target, label, billable)
		if err != nil {
			// The invoices are committed; the charge is raised again on the next run.
			log.Error("platform charge failed", zap.String("term_label", label), zap.Error(err))
		} else {
			res.PlatformCharge = charge
		}
	}
	g.platform.RecordGeneration(scope.SchoolID(), label, billable, res.Generated)

	log.Info("invoice generation finished",
		zap.Int("generated", res.Generated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// bill writes one student's invoice in its own transaction. billed is false
// when the student's class has no fee structure for the term.
func (g *Generator) bill(ctx context.Context, r *run, enrollment academicdomain.BillableEnrollment) (decimal.Decimal, bool, error) {
	structure, err := g.structure(ctx, r, enrollment.ClassID)
	if err != nil {
		return decimal.Zero, false, err
	}
	if structure == nil {
		logger.WithContext(ctx, g.log).Warn("no fee structure for class, student skipped",
			zap.String("class_id", enrollment.ClassID.String()),
			zap.String("student_id", enrollment.StudentID.String()),
		)
		return decimal.Zero, false, nil
	}

	items := structure.Billable(r.withOptional)
	subtotal := feedomain.Total(items)
	discount := invoicedomain.Discount(subtotal, enrollment.ScholarshipPercent)
	arrears, err := g.arrears(ctx, r, enrollment.StudentID)
	if err != nil {
		return decimal.Zero, false, err
	}
	total := invoicedomain.Total(subtotal, discount, arrears, decimal.Zero)

	token, err := invoicedomain.NewPaymentToken()
	if err != nil {
		return decimal.Zero, false, err
	}
	now := g.clock.Now()
	invoice := &invoicedomain.Invoice{
		ID:             g.genID.Generate(),
		StudentID:      enrollment.StudentID,
		TermID:         r.term.ID,
		ClassID:        enrollment.ClassID,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ArrearsAmount:  arrears,
		LateFeeAmount:  decimal.Zero,
		TotalAmount:    total,
		AmountPaid:     decimal.Zero,
		Currency:       money.CurrencyNGN,
		Status:         invoicedomain.StatusUnpaid,
		PaymentToken:   token,
		DueDate:        r.term.DueDate,
		GeneratedBy:    r.generatedBy,
		GeneratedAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
		LineItems:      make([]invoicedomain.LineItem, 0, len(items)),
	}
	for i, item := range items {
		invoice.LineItems = append(invoice.LineItems, invoicedomain.LineItem{
			ID:          g.genID.Generate(),
			Name:        item.Name,
			Category:    string(item.Category),
			Amount:      item.Amount,
			IsMandatory: item.IsMandatory,
			SortOrder:   i,
		})
	}

	err = r.scope.Transaction(ctx, g.db, func(tx *gorm.DB) error {
		return g.invoices.Insert(ctx, tx, r.scope, invoice)
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	return total, true, nil
}

func (g *Generator) structure(ctx context.Context, r *run, classID snowflake.ID) (*feedomain.FeeStructure, error) {
	if s, ok := r.structures[classID]; ok {
		return s, nil
	}
	s, err := g.fees.FindActive(ctx, g.db, r.scope, classID, r.term.ID)
	if err != nil {
		return nil, err
	}
	r.structures[classID] = s
	return s, nil
}

// arrears carries forward the open balance of the student's invoice in the
// previous term of the same session.
func (g *Generator) arrears(ctx context.Context, r *run, studentID snowflake.ID) (decimal.Decimal, error) {
	if r.previous == nil {
		return decimal.Zero, nil
	}
	prior, err := g.invoices.FindByStudentTerm(ctx, g.db, r.scope, studentID, r.previous.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if prior == nil {
		return decimal.Zero, nil
	}
	if prior.Status != invoicedomain.StatusUnpaid && prior.Status != invoicedomain.StatusPartial {
		return decimal.Zero, nil
	}
	return prior.Outstanding(), nil
}

func (g *Generator) recordRun(ctx context.Context, scope tenancy.Scope, res GenerateResult, req GenerateRequest) error {
	return scope.Transaction(ctx, g.db, func(tx *gorm.DB) error {
		return g.audit.Record(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionInvoiceGenerated,
			TargetType: "term",
			TargetID:   res.TermID.String(),
			Metadata: map[string]any{
				"generated":             res.Generated,
				"skipped":               res.Skipped,
				"failed":                res.Failed,
				"total_expected":        res.TotalExpected.StringFixed(2),
				"include_optional_fees": req.IncludeOptionalFees,
				"apply_arrears":         req.ApplyArrears,
			},
		})
	})
}

func actorID(ctx context.Context) *snowflake.ID {
	actorType, raw := obscontext.ActorFromContext(ctx)
	if actorType != obscontext.ActorTypeUser {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil
	}
	return &id
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	"github.com/smallbiznis/schoolpay/internal/platformbilling/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Pricing      *config.PlatformConfigHolder
	Repo         domain.Repository
	AcademicRepo academicdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	pricing  *config.PlatformConfigHolder
	repo     domain.Repository
	academic academicdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("platformbilling.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		pricing:  p.Pricing,
		repo:     p.Repo,
		academic: p.AcademicRepo,
	}
}

func (s *Service) EnsureCharge(ctx context.Context, target tenancy.PlatformTarget, termLabel string, activeStudents int) (*domain.Charge, error) {
	if target.SchoolID() == 0 {
		return nil, tenancy.ErrMissingTargetSchool
	}
	termLabel = strings.TrimSpace(termLabel)
	if termLabel == "" {
		return nil, domain.ErrInvalidTermLabel
	}
	if activeStudents < 0 {
		return nil, domain.ErrInvalidCount
	}

	existing, err := s.repo.FindByLabel(ctx, s.db, target, termLabel)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	school, err := s.academic.FindSchool(ctx, s.db, target.SchoolID())
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, domain.ErrSchoolNotFound
	}

	now := s.clock.Now()
	charge := Compute(s.pricing.Get(), activeStudents, school.ReferralDiscountPct, now)
	charge.ID = s.genID.Generate()
	charge.TermLabel = termLabel
	charge.CreatedAt = now

	created, err := s.repo.InsertIfAbsent(ctx, s.db, target, &charge)
	if err != nil {
		return nil, err
	}
	if !created {
		// A concurrent run won the insert.
		return s.repo.FindByLabel(ctx, s.db, target, termLabel)
	}

	logger.WithContext(ctx, s.log).Info("platform charge raised",
		zap.String("school_id", target.SchoolID().String()),
		zap.String("term_label", termLabel),
		zap.Int("billable_students", charge.BillableStudentCount),
		zap.String("amount_due", money.Format(charge.AmountDue)),
	)
	return &charge, nil
}

// Compute prices a charge: billable students are floored at the minimum,
// the referral discount is rounded to kobo, and the grace window starts
// when the charge falls due.
func Compute(pricing config.PlatformPricing, activeStudents int, referralPct decimal.Decimal, now time.Time) domain.Charge {
	billable := int64(activeStudents)
	if billable < pricing.MinBillableStudents {
		billable = pricing.MinBillableStudents
	}
	price := decimal.NewFromInt(pricing.PricePerStudent)
	total := price.Mul(decimal.NewFromInt(billable))
	if referralPct.IsNegative() {
		referralPct = decimal.Zero
	}
	discount := total.Mul(referralPct).Div(decimal.NewFromInt(100)).Round(2)

	currency := pricing.Currency
	if currency == "" {
		currency = money.CurrencyNGN
	}
	due := clock.Date(now).AddDate(0, 0, pricing.DueDays)
	return domain.Charge{
		ActiveStudentCount:   activeStudents,
		BillableStudentCount: int(billable),
		PricePerStudent:      price,
		TotalAmount:          total,
		DiscountPct:          referralPct,
		DiscountAmount:       discount,
		AmountDue:            total.Sub(discount),
		Currency:             currency,
		Status:               domain.ChargePending,
		DueDate:              due,
		GraceEndDate:         due.AddDate(0, 0, pricing.GraceDays),
	}
}

func (s *Service) List(ctx context.Context, target tenancy.PlatformTarget) ([]domain.Charge, error) {
	if target.SchoolID() == 0 {
		return nil, tenancy.ErrMissingTargetSchool
	}
	items, err := s.repo.List(ctx, s.db, target)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Charge{}
	}
	return items, nil
}

func (s *Service) MarkPaid(ctx context.Context, target tenancy.PlatformTarget, chargeID string) (*domain.Charge, error) {
	if target.SchoolID() == 0 {
		return nil, tenancy.ErrMissingTargetSchool
	}
	id, err := snowflake.ParseString(strings.TrimSpace(chargeID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}

	var out *domain.Charge
	err = target.Scope().Transaction(ctx, s.db, func(tx *gorm.DB) error {
		charge, err := s.repo.FindByID(ctx, tx, target, id)
		if err != nil {
			return err
		}
		if charge == nil {
			return domain.ErrNotFound
		}
		if charge.Status == domain.ChargePaid {
			return domain.ErrAlreadyPaid
		}
		now := s.clock.Now()
		if err := s.repo.MarkPaid(ctx, tx, target, id, now); err != nil {
			if errors.Is(err, tenancy.ErrNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		charge.Status = domain.ChargePaid
		charge.PaidAt = &now
		out = charge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

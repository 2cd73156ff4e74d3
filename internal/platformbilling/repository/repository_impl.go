package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/platformbilling/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const chargeColumns = `id, school_id, term_label, active_student_count, billable_student_count,
	price_per_student, total_amount, discount_pct, discount_amount, amount_due, currency,
	status, paid_at, due_date, grace_end_date, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, conn *gorm.DB, target tenancy.PlatformTarget, charge *domain.Charge) (bool, error) {
	scope := target.Scope()
	if err := scope.Stamp(charge); err != nil {
		return false, err
	}
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "school_id"}, {Name: "term_label"}},
			DoNothing: true,
		}).
		Create(charge)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByLabel(ctx context.Context, conn *gorm.DB, target tenancy.PlatformTarget, termLabel string) (*domain.Charge, error) {
	return r.findOne(ctx, conn, `term_label = ?`, target.SchoolID(), termLabel)
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, target tenancy.PlatformTarget, id snowflake.ID) (*domain.Charge, error) {
	return r.findOne(ctx, conn, `id = ?`, target.SchoolID(), id)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, cond string, schoolID snowflake.ID, arg any) (*domain.Charge, error) {
	var item domain.Charge
	err := conn.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM platform_charges
		 WHERE school_id = ? AND `+cond+`
		 LIMIT 1`,
		schoolID,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, target tenancy.PlatformTarget) ([]domain.Charge, error) {
	var items []domain.Charge
	err := conn.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+`
		 FROM platform_charges
		 WHERE school_id = ?
		 ORDER BY created_at DESC, id DESC`,
		target.SchoolID(),
	).Scan(&items).Error
	return items, err
}

func (r *repo) MarkPaid(ctx context.Context, conn *gorm.DB, target tenancy.PlatformTarget, id snowflake.ID, at time.Time) error {
	return target.Scope().Update(conn.WithContext(ctx), "platform_charges", id, map[string]any{
		"status":  domain.ChargePaid,
		"paid_at": at,
	})
}

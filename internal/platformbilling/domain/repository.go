package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when a charge for (school, term label) already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, target tenancy.PlatformTarget, charge *Charge) (bool, error)
	FindByLabel(ctx context.Context, db *gorm.DB, target tenancy.PlatformTarget, termLabel string) (*Charge, error)
	FindByID(ctx context.Context, db *gorm.DB, target tenancy.PlatformTarget, id snowflake.ID) (*Charge, error)
	List(ctx context.Context, db *gorm.DB, target tenancy.PlatformTarget) ([]Charge, error)
	MarkPaid(ctx context.Context, db *gorm.DB, target tenancy.PlatformTarget, id snowflake.ID, at time.Time) error
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type Repository interface {
	InsertStructure(ctx context.Context, db *gorm.DB, scope tenancy.Scope, structure *FeeStructure) error
	FindStructure(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*FeeStructure, error)
	// FindActive returns the active structure for class and term with its items, or nil.
	FindActive(ctx context.Context, db *gorm.DB, scope tenancy.Scope, classID, termID snowflake.ID) (*FeeStructure, error)
	ListStructures(ctx context.Context, db *gorm.DB, scope tenancy.Scope, termID snowflake.ID) ([]FeeStructure, error)
	Deactivate(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, at time.Time) error
}

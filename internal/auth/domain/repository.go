package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads the identity table. Login lookups are never tenant
// scoped: a login is what establishes the tenant. The *InSchool methods
// filter by the school explicitly.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)

	ListBySchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) ([]User, error)
	FindInSchool(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*User, error)
	UpdateInSchool(ctx context.Context, db *gorm.DB, user *User) (bool, error)
	DeleteInSchool(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (bool, error)
}

// Package tenancy guards every read and write against school-owned tables.
//
// A Scope can only be built from a non-zero school id, and every typed
// repository method takes one. There is no "all schools" value.
package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"gorm.io/gorm"
)

var (
	ErrMissingTenant       = errors.New("missing_tenant")
	ErrNotFound            = errors.New("not_found")
	ErrPlatformAdminOnly   = errors.New("platform_admin_required")
	ErrMissingTargetSchool = errors.New("missing_target_school")
)

type Scope struct {
	schoolID snowflake.ID
}

func NewScope(schoolID snowflake.ID) (Scope, error) {
	if schoolID == 0 {
		return Scope{}, ErrMissingTenant
	}
	return Scope{schoolID: schoolID}, nil
}

// MustScope is for tests and seeding only.
func MustScope(schoolID snowflake.ID) Scope {
	s, err := NewScope(schoolID)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Scope) SchoolID() snowflake.ID { return s.schoolID }

func (s Scope) Valid() bool { return s.schoolID != 0 }

func (s Scope) String() string { return s.schoolID.String() }

// Owned is implemented by rows that carry a school_id column.
type Owned interface {
	SetSchoolID(snowflake.ID)
}

// Stamp overwrites the row's tenant with the scope's, whatever the caller set.
func (s Scope) Stamp(row Owned) error {
	if !s.Valid() {
		return ErrMissingTenant
	}
	row.SetSchoolID(s.schoolID)
	return nil
}

// Where narrows a query to the scope's school. An invalid scope poisons the
// statement so it fails instead of reading every tenant.
func (s Scope) Where(tx *gorm.DB, table string) *gorm.DB {
	if !s.Valid() {
		_ = tx.AddError(ErrMissingTenant)
		return tx
	}
	column := "school_id"
	if table != "" {
		column = table + ".school_id"
	}
	return tx.Where(column+" = ?", s.schoolID)
}

// Create stamps and inserts row.
func (s Scope) Create(tx *gorm.DB, row Owned) error {
	if err := s.Stamp(row); err != nil {
		return err
	}
	return tx.Create(row).Error
}

// Update applies updates to one row of table owned by the scope. Zero matched
// rows report ErrNotFound, including when the id belongs to another school.
func (s Scope) Update(tx *gorm.DB, table string, id snowflake.ID, updates map[string]any) error {
	if !s.Valid() {
		return ErrMissingTenant
	}
	res := tx.Table(table).
		Where("school_id = ? AND id = ?", s.schoolID, id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Transaction runs fn in a transaction bound to the scope. On postgres the
// tenant is also published to row-level security policies.
func (s Scope) Transaction(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	if !s.Valid() {
		return ErrMissingTenant
	}
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ApplyRLS(tx, s); err != nil {
			return err
		}
		return fn(tx)
	})
}

// ApplyRLS sets app.current_school_id for the current transaction.
func ApplyRLS(tx *gorm.DB, s Scope) error {
	if !db.IsPostgres(tx) {
		return nil
	}
	if err := tx.Exec("SELECT set_config('app.current_school_id', ?, true)", fmt.Sprintf("%d", s.schoolID)).Error; err != nil {
		return fmt.Errorf("apply tenant rls: %w", err)
	}
	return nil
}

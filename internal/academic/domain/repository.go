package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type Repository interface {
	InsertSchool(ctx context.Context, db *gorm.DB, school *School) error
	FindSchool(ctx context.Context, db *gorm.DB, id snowflake.ID) (*School, error)
	// UpdateSchoolSubscription reports false when no school has the id.
	UpdateSchoolSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, at time.Time) (bool, error)

	InsertSession(ctx context.Context, db *gorm.DB, scope tenancy.Scope, session *Session) error
	FindSession(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Session, error)
	ListSessions(ctx context.Context, db *gorm.DB, scope tenancy.Scope) ([]Session, error)

	InsertTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, term *Term) error
	FindTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Term, error)
	ListTerms(ctx context.Context, db *gorm.DB, scope tenancy.Scope, sessionID snowflake.ID) ([]Term, error)
	// FindPreviousTerm returns the latest term of the session that starts before term, or nil.
	FindPreviousTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, term Term) (*Term, error)

	InsertClass(ctx context.Context, db *gorm.DB, scope tenancy.Scope, class *Class) error
	FindClass(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Class, error)
	ListClasses(ctx context.Context, db *gorm.DB, scope tenancy.Scope) ([]Class, error)

	InsertStudent(ctx context.Context, db *gorm.DB, scope tenancy.Scope, student *Student) error
	FindStudent(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Student, error)
	ListStudents(ctx context.Context, db *gorm.DB, scope tenancy.Scope, filter StudentFilter) ([]Student, error)
	UpdateStudent(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, updates map[string]any) error

	InsertEnrollment(ctx context.Context, db *gorm.DB, scope tenancy.Scope, enrollment *Enrollment) error
	ListBillableEnrollments(ctx context.Context, db *gorm.DB, scope tenancy.Scope, sessionID snowflake.ID) ([]BillableEnrollment, error)
}

type StudentFilter struct {
	Status  StudentStatus
	ClassID snowflake.ID
	Search  string
}

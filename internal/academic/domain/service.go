package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
)

type CreateSchoolRequest struct {
	Name                string          `json:"name" binding:"required,min=3"`
	ReferralDiscountPct decimal.Decimal `json:"referral_discount_pct"`
}

type CreateSessionRequest struct {
	Name      string    `json:"name" binding:"required"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	IsCurrent bool      `json:"is_current"`
}

type CreateTermRequest struct {
	SessionID string     `json:"session_id" binding:"required"`
	Name      string     `json:"name" binding:"required"`
	StartDate time.Time  `json:"start_date" binding:"required"`
	EndDate   time.Time  `json:"end_date" binding:"required"`
	DueDate   *time.Time `json:"due_date"`
	IsCurrent bool       `json:"is_current"`
}

type CreateClassRequest struct {
	Name  string `json:"name" binding:"required"`
	Level string `json:"level"`
}

type CreateStudentRequest struct {
	AdmissionNumber    string          `json:"admission_number" binding:"required"`
	FirstName          string          `json:"first_name" binding:"required"`
	LastName           string          `json:"last_name" binding:"required"`
	ScholarshipPercent decimal.Decimal `json:"scholarship_percent"`
	GuardianName       string          `json:"guardian_name"`
	GuardianPhone      string          `json:"guardian_phone"`
	GuardianEmail      string          `json:"guardian_email" binding:"omitempty,email"`
}

type UpdateStudentRequest struct {
	ID                 string           `json:"-"`
	Status             *StudentStatus   `json:"status"`
	ScholarshipPercent *decimal.Decimal `json:"scholarship_percent"`
	GuardianPhone      *string          `json:"guardian_phone"`
	GuardianEmail      *string          `json:"guardian_email" binding:"omitempty,email"`
}

type EnrollRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	ClassID   string `json:"class_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

type ListStudentsRequest struct {
	Status  string `form:"status"`
	ClassID string `form:"class_id"`
	Search  string `form:"q"`
}

type Service interface {
	CreateSchool(ctx context.Context, req CreateSchoolRequest) (School, error)
	GetSchool(ctx context.Context) (School, error)
	// SetSubscriptionStatus is the platform admin's activate/suspend switch.
	SetSubscriptionStatus(ctx context.Context, target tenancy.PlatformTarget, status SubscriptionStatus) (School, error)

	CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	CreateTerm(ctx context.Context, req CreateTermRequest) (Term, error)
	ListTerms(ctx context.Context, sessionID string) ([]Term, error)

	CreateClass(ctx context.Context, req CreateClassRequest) (Class, error)
	ListClasses(ctx context.Context) ([]Class, error)

	CreateStudent(ctx context.Context, req CreateStudentRequest) (Student, error)
	UpdateStudent(ctx context.Context, req UpdateStudentRequest) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	ListStudents(ctx context.Context, req ListStudentsRequest) ([]Student, error)
	Enroll(ctx context.Context, req EnrollRequest) (Enrollment, error)
}

var (
	ErrNotFound              = errors.New("not_found")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidDateRange      = errors.New("invalid_date_range")
	ErrInvalidScholarship    = errors.New("invalid_scholarship_percent")
	ErrInvalidStudentStatus  = errors.New("invalid_student_status")
	ErrDuplicateAdmission    = errors.New("duplicate_admission_number")
	ErrAlreadyEnrolled       = errors.New("already_enrolled")
	ErrDuplicateName         = errors.New("duplicate_name")
	ErrSchoolSubscriptionOff = errors.New("school_subscription_inactive")
	ErrInvalidSubscription   = errors.New("invalid_subscription_status")
)

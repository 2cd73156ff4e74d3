// Package domain contains persistence models for schools and their
// academic calendar, classes and students.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Blocked reports whether the school may no longer record payments or generate invoices.
func (s SubscriptionStatus) Blocked() bool {
	return s == SubscriptionSuspended || s == SubscriptionCancelled
}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrial, SubscriptionSuspended, SubscriptionCancelled:
		return true
	}
	return false
}

type School struct {
	ID                  snowflake.ID       `gorm:"primaryKey" json:"id"`
	Name                string             `json:"name"`
	Slug                string             `json:"slug"`
	SubscriptionStatus  SubscriptionStatus `json:"subscription_status"`
	ReferralDiscountPct decimal.Decimal    `json:"referral_discount_pct"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func (School) TableName() string { return "schools" }

type Session struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `json:"school_id"`
	Name      string       `json:"name"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	IsCurrent bool         `json:"is_current"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Session) TableName() string { return "academic_sessions" }

func (s *Session) SetSchoolID(id snowflake.ID) { s.SchoolID = id }

type Term struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `json:"school_id"`
	SessionID snowflake.ID `json:"session_id"`
	Name      string       `json:"name"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	DueDate   *time.Time   `json:"due_date,omitempty"`
	IsCurrent bool         `json:"is_current"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Term) TableName() string { return "terms" }

func (t *Term) SetSchoolID(id snowflake.ID) { t.SchoolID = id }

// Label is the "<term> <session>" string used to key platform charges.
func Label(term Term, session Session) string {
	return term.Name + " " + session.Name
}

type Class struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID `json:"school_id"`
	Name      string       `json:"name"`
	Level     string       `json:"level"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Class) TableName() string { return "classes" }

func (c *Class) SetSchoolID(id snowflake.ID) { c.SchoolID = id }

type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentGraduated StudentStatus = "graduated"
	StudentWithdrawn StudentStatus = "withdrawn"
	StudentSuspended StudentStatus = "suspended"
)

type Student struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID           snowflake.ID    `json:"school_id"`
	AdmissionNumber    string          `json:"admission_number"`
	FirstName          string          `json:"first_name"`
	LastName           string          `json:"last_name"`
	Status             StudentStatus   `json:"status"`
	ScholarshipPercent decimal.Decimal `json:"scholarship_percent"`
	GuardianName       string          `json:"guardian_name"`
	GuardianPhone      string          `json:"guardian_phone"`
	GuardianEmail      string          `json:"guardian_email"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (Student) TableName() string { return "students" }

func (s *Student) SetSchoolID(id snowflake.ID) { s.SchoolID = id }

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
)

type Enrollment struct {
	ID        snowflake.ID     `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID     `json:"school_id"`
	StudentID snowflake.ID     `json:"student_id"`
	ClassID   snowflake.ID     `json:"class_id"`
	SessionID snowflake.ID     `json:"session_id"`
	Status    EnrollmentStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

func (Enrollment) TableName() string { return "enrollments" }

func (e *Enrollment) SetSchoolID(id snowflake.ID) { e.SchoolID = id }

// BillableEnrollment is an active enrollment joined with the student fields
// invoice generation needs.
type BillableEnrollment struct {
	EnrollmentID       snowflake.ID
	StudentID          snowflake.ID
	ClassID            snowflake.ID
	StudentStatus      StudentStatus
	ScholarshipPercent decimal.Decimal
}

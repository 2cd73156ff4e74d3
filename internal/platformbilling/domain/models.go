// Package domain holds the per-student charge the platform raises against a
// school each term.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ChargeStatus string

const (
	ChargePending ChargeStatus = "pending"
	ChargePaid    ChargeStatus = "paid"
)

// Charge is one school's subscription bill for one term label.
type Charge struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID             snowflake.ID    `gorm:"not null" json:"school_id"`
	TermLabel            string          `gorm:"type:text;not null" json:"term_label"`
	ActiveStudentCount   int             `gorm:"not null" json:"active_student_count"`
	BillableStudentCount int             `gorm:"not null" json:"billable_student_count"`
	PricePerStudent      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price_per_student"`
	TotalAmount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	DiscountPct          decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_pct"`
	DiscountAmount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"discount_amount"`
	AmountDue            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount_due"`
	Currency             string          `gorm:"type:text;not null" json:"currency"`
	Status               ChargeStatus    `gorm:"type:text;not null" json:"status"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	DueDate              time.Time       `gorm:"not null" json:"due_date"`
	GraceEndDate         time.Time       `gorm:"not null" json:"grace_end_date"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (Charge) TableName() string { return "platform_charges" }

func (c *Charge) SetSchoolID(id snowflake.ID) { c.SchoolID = id }

// Overdue reports whether the grace window has closed on an unpaid charge.
func (c Charge) Overdue(now time.Time) bool {
	return c.Status == ChargePending && now.After(c.GraceEndDate)
}

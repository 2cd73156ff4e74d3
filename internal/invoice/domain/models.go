// Package domain contains persistence models for term invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	StatusUnpaid    InvoiceStatus = "unpaid"
	StatusPartial   InvoiceStatus = "partial"
	StatusPaid      InvoiceStatus = "paid"
	StatusWaived    InvoiceStatus = "waived"
	StatusCancelled InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid, StatusWaived, StatusCancelled:
		return true
	}
	return false
}

// Closed reports a sticky admin status that payments can no longer change.
func (s InvoiceStatus) Closed() bool {
	return s == StatusWaived || s == StatusCancelled
}

// Invoice is one student's bill for one term.
type Invoice struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID    `gorm:"not null;index" json:"school_id"`
	StudentID      snowflake.ID    `gorm:"not null" json:"student_id"`
	TermID         snowflake.ID    `gorm:"not null" json:"term_id"`
	ClassID        snowflake.ID    `gorm:"not null" json:"class_id"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"discount_amount"`
	ArrearsAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"arrears_amount"`
	LateFeeAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"late_fee_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	AmountPaid     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount_paid"`
	Currency       string          `gorm:"type:text;not null" json:"currency"`
	Status         InvoiceStatus   `gorm:"type:text;not null" json:"status"`
	PaymentToken   string          `gorm:"type:text;not null;uniqueIndex" json:"payment_token"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Notes          string          `gorm:"type:text;not null" json:"notes,omitempty"`
	GeneratedBy    *snowflake.ID   `json:"generated_by,omitempty"`
	GeneratedAt    *time.Time      `json:"generated_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LineItems      []LineItem      `gorm:"-" json:"line_items,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) SetSchoolID(id snowflake.ID) { i.SchoolID = id }

// Balance is total minus paid and may be negative after an overpayment.
func (i Invoice) Balance() decimal.Decimal {
	return i.TotalAmount.Sub(i.AmountPaid)
}

// Outstanding is the balance floored at zero.
func (i Invoice) Outstanding() decimal.Decimal {
	b := i.Balance()
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// LineItem is a snapshot of a fee line taken when the invoice was generated.
// Later edits to the fee structure never reach it.
type LineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID    snowflake.ID    `gorm:"not null" json:"-"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	Category    string          `gorm:"type:text;not null" json:"category"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	IsMandatory bool            `gorm:"not null" json:"is_mandatory"`
	SortOrder   int             `gorm:"not null" json:"sort_order"`
}

func (LineItem) TableName() string { return "invoice_line_items" }

func (l *LineItem) SetSchoolID(id snowflake.ID) { l.SchoolID = id }

// InvoiceView is an invoice joined with the names a bursar list shows.
type InvoiceView struct {
	Invoice         `gorm:"embedded"`
	StudentName     string `json:"student_name"`
	AdmissionNumber string `json:"admission_number"`
	ClassName       string `json:"class_name"`
	TermName        string `json:"term_name"`
}

// PublicInvoice is what a parent sees behind a payment link. It carries no
// internal school or student identifiers.
type PublicInvoice struct {
	InvoiceID         snowflake.ID    `json:"invoice_id"`
	SchoolName        string          `json:"school_name"`
	StudentName       string          `json:"student_name"`
	ClassName         string          `json:"class_name"`
	TermName          string          `json:"term_name"`
	SessionName       string          `json:"session_name"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	Balance           decimal.Decimal `json:"balance"`
	Status            InvoiceStatus   `json:"status"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	Currency          string          `json:"currency"`
	LineItems         []LineItem      `json:"line_items"`
	Payments          []PublicPayment `json:"payments"`
	PaystackPublicKey string          `json:"paystack_public_key"`
}

type PublicPayment struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	Status        string          `json:"status"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	PaymentDate   time.Time       `json:"payment_date"`
}

// PublicRow is the joined row behind PublicInvoice.
type PublicRow struct {
	Invoice     `gorm:"embedded"`
	SchoolName  string
	StudentName string
	ClassName   string
	TermName    string
	SessionName string
}

// Debtor is a student with an outstanding balance that a reminder can reach.
type Debtor struct {
	InvoiceID     snowflake.ID    `json:"invoice_id"`
	StudentID     snowflake.ID    `json:"student_id"`
	StudentName   string          `json:"student_name"`
	GuardianName  string          `json:"guardian_name"`
	GuardianPhone string          `json:"guardian_phone"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Status        InvoiceStatus   `json:"status"`
	PaymentToken  string          `json:"payment_token"`
}

// OverdueInvoice is one row of the cross-school overdue feed.
type OverdueInvoice struct {
	InvoiceID     snowflake.ID    `json:"invoice_id"`
	SchoolID      snowflake.ID    `json:"school_id"`
	SchoolName    string          `json:"school_name"`
	StudentID     snowflake.ID    `json:"student_id"`
	StudentName   string          `json:"student_name"`
	GuardianPhone string          `json:"guardian_phone"`
	Outstanding   decimal.Decimal `json:"outstanding_balance"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       time.Time       `json:"due_date"`
	DaysOverdue   int             `json:"days_overdue"`
	PaymentToken  string          `json:"payment_token"`
}

// OverdueFilter bounds the feed by due date, as a half-open range.
type OverdueFilter struct {
	DueFrom    time.Time
	DueBefore  time.Time
	Statuses   []InvoiceStatus
	ActiveOnly bool
}

// Summary aggregates a term's invoices for the dashboard.
type Summary struct {
	TermID           snowflake.ID    `json:"term_id"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	CollectionRate   decimal.Decimal `json:"collection_rate"`
	PaidCount        int             `json:"paid_count"`
	PartialCount     int             `json:"partial_count"`
	UnpaidCount      int             `json:"unpaid_count"`
	TotalCount       int             `json:"total_count"`
}

// Package domain holds the payment record and its state machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodOnline   Method = "online_gateway"
	MethodTransfer Method = "bank_transfer"
	MethodCash     Method = "cash"
	MethodWaiver   Method = "waiver"
)

// Payment is one attempt to move money against an invoice. Status and
// ApprovalStatus are persisted columns; write them only through Apply.
type Payment struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID        snowflake.ID    `gorm:"not null;index" json:"school_id"`
	InvoiceID       snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	StudentID       snowflake.ID    `gorm:"not null" json:"student_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency        string          `gorm:"type:text;not null" json:"currency"`
	PaymentMethod   Method          `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	Status          Status          `gorm:"type:text;not null" json:"status"`
	ApprovalStatus  ApprovalStatus  `gorm:"type:text;not null" json:"approval_status"`
	IsVoided        bool            `gorm:"not null" json:"is_voided"`
	VoidReason      *string         `gorm:"type:text" json:"void_reason,omitempty"`
	VoidedBy        *snowflake.ID   `json:"voided_by,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
	Reference       *string         `gorm:"type:text" json:"reference,omitempty"`
	ReceiptNumber   *string         `gorm:"type:text" json:"receipt_number,omitempty"`
	ProofURL        *string         `gorm:"column:proof_url;type:text" json:"proof_url,omitempty"`
	Narration       string          `gorm:"type:text;not null" json:"narration,omitempty"`
	CollectionPoint string          `gorm:"type:text;not null" json:"collection_point,omitempty"`
	RecordedBy      *snowflake.ID   `json:"recorded_by,omitempty"`
	ApprovedBy      *snowflake.ID   `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ReviewNotes     string          `gorm:"type:text;not null" json:"review_notes,omitempty"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) SetSchoolID(id snowflake.ID) { p.SchoolID = id }

// State decodes the persisted columns into the payment's variant.
func (p Payment) State() (State, error) {
	return DecodeState(p.PaymentMethod, p.Status, p.ApprovalStatus)
}

// Apply writes a variant into the persisted columns.
func (p *Payment) Apply(s State) {
	p.PaymentMethod = s.Method()
	p.Status = s.Status()
	p.ApprovalStatus = s.Approval()
}

// Counts reports whether the payment contributes to the invoice's amount_paid.
func (p Payment) Counts() bool {
	return p.Status == StatusSuccess && !p.IsVoided
}

func (p Payment) ReferenceValue() string {
	if p.Reference == nil {
		return ""
	}
	return *p.Reference
}

func (p Payment) ReceiptValue() string {
	if p.ReceiptNumber == nil {
		return ""
	}
	return *p.ReceiptNumber
}

// PendingTransfer is a transfer in the bursar's approval queue.
type PendingTransfer struct {
	Payment         `gorm:"embedded"`
	StudentName     string `json:"student_name"`
	AdmissionNumber string `json:"admission_number"`
}

// PublicStatus is what the pay page polls after checkout. It reads state
// and never changes it.
type PublicStatus struct {
	InvoiceStatus string          `json:"invoice_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	IsPaid        bool            `json:"is_paid"`
	Payment       *PublicPayment  `json:"payment,omitempty"`
}

type PublicPayment struct {
	Status        Status          `json:"status"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
}

// PublicTransfer is what the pay page learns about a transfer the parent
// submitted. PaymentID is needed to attach the proof afterwards.
type PublicTransfer struct {
	PaymentID      string          `json:"payment_id"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	Status         Status          `json:"status"`
	ApprovalStatus ApprovalStatus  `json:"approval_status"`
	HasProof       bool            `json:"has_proof"`
}

func (p Payment) PublicTransfer() PublicTransfer {
	return PublicTransfer{
		PaymentID:      p.ID.String(),
		Reference:      p.ReferenceValue(),
		Amount:         p.Amount,
		Status:         p.Status,
		ApprovalStatus: p.ApprovalStatus,
		HasProof:       p.ProofURL != nil && *p.ProofURL != "",
	}
}

// ReceiptRow is a payment joined with the names printed on its receipt.
type ReceiptRow struct {
	Payment         `gorm:"embedded"`
	SchoolName      string
	StudentName     string
	AdmissionNumber string
	ClassName       string
	TermName        string
	SessionName     string
	InvoiceTotal    decimal.Decimal
	ReceivedBy      string
}

// Package notification hands post-commit side effects to the workflow engine.
// Nothing here can fail or slow down the money path that enqueued it.
package notification

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPaymentSuccess Kind = "payment-success"
	KindFeeReminder    Kind = "fee-reminder"
)

// Task is one unit of outbound work. Payload is posted as JSON.
type Task struct {
	Kind     Kind
	SchoolID snowflake.ID
	Payload  any
}

type PaymentSuccess struct {
	PaymentID     string          `json:"payment_id"`
	SchoolID      string          `json:"school_id"`
	StudentID     string          `json:"student_id"`
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptNumber string          `json:"receipt_number"`
	PaymentMethod string          `json:"payment_method"`
}

type FeeReminder struct {
	SchoolID        string `json:"school_id"`
	TermID          string `json:"term_id"`
	MessageTemplate string `json:"message_template"`
}

func NewPaymentSuccess(schoolID snowflake.ID, p PaymentSuccess) Task {
	p.SchoolID = schoolID.String()
	return Task{Kind: KindPaymentSuccess, SchoolID: schoolID, Payload: p}
}

func NewFeeReminder(schoolID, termID snowflake.ID, template string) Task {
	return Task{
		Kind:     KindFeeReminder,
		SchoolID: schoolID,
		Payload: FeeReminder{
			SchoolID:        schoolID.String(),
			TermID:          termID.String(),
			MessageTemplate: template,
		},
	}
}

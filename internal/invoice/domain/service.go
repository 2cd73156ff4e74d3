package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/schoolpay/pkg/db/pagination"
)

type ListInvoicesRequest struct {
	pagination.Pagination
	TermID  string        `form:"term_id"`
	ClassID string        `form:"class_id"`
	Status  InvoiceStatus `form:"status"`
	Search  string        `form:"search"`
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []InvoiceView `json:"invoices"`
}

type CloseRequest struct {
	InvoiceID string `json:"-"`
	Reason    string `json:"reason" binding:"required"`
}

type SendRemindersRequest struct {
	TermID          string `json:"term_id" binding:"required"`
	MessageTemplate string `json:"message_template" binding:"max=480"`
}

type SendRemindersResult struct {
	Debtors int  `json:"debtors"`
	Queued  bool `json:"queued"`
}

type Service interface {
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	Summary(ctx context.Context, termID string) (Summary, error)
	// GetByToken is the public pay page view. The token is the credential.
	GetByToken(ctx context.Context, token string) (PublicInvoice, error)
	Waive(ctx context.Context, req CloseRequest) (*Invoice, error)
	Cancel(ctx context.Context, req CloseRequest) (*Invoice, error)
	ListDebtors(ctx context.Context, termID string, statuses []InvoiceStatus) ([]Debtor, error)
	SendReminders(ctx context.Context, req SendRemindersRequest) (SendRemindersResult, error)
	// ListOverdue spans every school. Only the workflow routes call it.
	ListOverdue(ctx context.Context, req ListOverdueRequest) ([]OverdueInvoice, error)
}

// ListOverdueRequest selects invoices whose due date passed between
// DaysOverdueMin and DaysOverdueMax days ago. Unset fields take defaults.
type ListOverdueRequest struct {
	DaysOverdueMin     *int   `form:"days_overdue_min" binding:"omitempty,min=0"`
	DaysOverdueMax     *int   `form:"days_overdue_max" binding:"omitempty,min=0"`
	Status             string `form:"status"`
	SubscriptionActive *bool  `form:"subscription_active"`
}

const (
	MinCloseReasonLength  = 5
	MaxCloseReasonLength  = 500
	DefaultOverdueMinDays = 3
	DefaultOverdueMaxDays = 60
	DefaultReminder       = "Dear {guardian_name}, {student_name} has an outstanding balance of {outstanding}. Pay here: {payment_link}"
)

var (
	ErrNotFound         = errors.New("invoice_not_found")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidReason    = errors.New("invalid_reason")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvoiceClosed    = errors.New("invoice_closed")
	ErrHasPayments      = errors.New("invoice_has_confirmed_payments")
	ErrMissingActor     = errors.New("missing_actor")
	ErrNotificationsOff = errors.New("notifications_unavailable")
	ErrInvalidWindow    = errors.New("invalid_overdue_window")
)

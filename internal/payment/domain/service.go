package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/gateway"
)

type RecordCashRequest struct {
	InvoiceID       string          `json:"invoice_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Narration       string          `json:"narration" binding:"max=500"`
	CollectionPoint string          `json:"collection_point" binding:"max=120"`
	PaymentDate     *time.Time      `json:"payment_date"`
}

type RecordTransferRequest struct {
	InvoiceID   string          `json:"invoice_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Reference   string          `json:"reference" binding:"required"`
	Narration   string          `json:"narration" binding:"max=500"`
	PaymentDate *time.Time      `json:"payment_date"`
}

// PublicTransferRequest is a parent's own bank transfer declaration from the
// pay page. The token authenticates it.
type PublicTransferRequest struct {
	Token       string          `json:"-"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Reference   string          `json:"reference" binding:"required"`
	Narration   string          `json:"narration" binding:"max=500"`
	PaymentDate *time.Time      `json:"payment_date"`
}

type PublicProofRequest struct {
	Token     string `json:"-"`
	PaymentID string `json:"-"`
	FileName  string `json:"file_name" binding:"required"`
}

type RecordWaiverRequest struct {
	InvoiceID string          `json:"invoice_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Reason    string          `json:"reason" binding:"required,max=500"`
}

type ReviewTransferRequest struct {
	PaymentID string `json:"-"`
	Approve   bool   `json:"approve"`
	Notes     string `json:"notes" binding:"max=500"`
}

type VoidRequest struct {
	PaymentID string `json:"-"`
	Reason    string `json:"reason" binding:"required"`
}

type AttachProofRequest struct {
	PaymentID string `json:"-"`
	FileName  string `json:"file_name" binding:"required"`
}

type InitializeOnlineRequest struct {
	Token string `json:"-"`
	Email string `json:"email" binding:"required,email"`
}

type InitializeOnlineResponse struct {
	gateway.Session
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Replayed bool            `json:"replayed"`
}

// ConfirmOnlineRequest is built only from a verified gateway event.
type ConfirmOnlineRequest struct {
	Provider   string
	SchoolID   string
	Reference  string
	AmountKobo int64
	PaidAt     time.Time
}

type ReceiptFile struct {
	Filename string
	Content  []byte
}

type Service interface {
	RecordCash(ctx context.Context, req RecordCashRequest) (*Payment, error)
	RecordTransfer(ctx context.Context, req RecordTransferRequest) (*Payment, error)
	RecordWaiver(ctx context.Context, req RecordWaiverRequest) (*Payment, error)
	ReviewTransfer(ctx context.Context, req ReviewTransferRequest) (*Payment, error)
	InitializeOnline(ctx context.Context, req InitializeOnlineRequest) (InitializeOnlineResponse, error)
	ConfirmOnline(ctx context.Context, req ConfirmOnlineRequest) (*Payment, error)
	Void(ctx context.Context, req VoidRequest) (*Payment, error)
	Get(ctx context.Context, id string) (*Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
	ListPendingTransfers(ctx context.Context, limit int) ([]PendingTransfer, error)
	AttachProof(ctx context.Context, req AttachProofRequest) (*Payment, error)
	SubmitPublicTransfer(ctx context.Context, req PublicTransferRequest) (PublicTransfer, error)
	AttachPublicProof(ctx context.Context, req PublicProofRequest) (PublicTransfer, error)
	PublicStatus(ctx context.Context, token, reference string) (PublicStatus, error)
	Receipt(ctx context.Context, paymentID string) (ReceiptFile, error)
	ReceiptByToken(ctx context.Context, token, reference string) (ReceiptFile, error)
}

var (
	ErrNotFound           = errors.New("payment_not_found")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrInvalidReason      = errors.New("invalid_void_reason")
	ErrInvalidFileName    = errors.New("invalid_file_name")
	ErrMissingActor       = errors.New("missing_actor")
	ErrMissingEmail       = errors.New("invalid_email")
	ErrDuplicateReference = errors.New("duplicate_reference")
	ErrAlreadyProcessed   = errors.New("payment_already_processed")
	ErrAlreadyVoided      = errors.New("payment_already_voided")
	ErrNotConfirmed       = errors.New("payment_not_confirmed")
	ErrNothingToPay       = errors.New("nothing_to_pay")
	ErrInvoiceClosed      = errors.New("invoice_closed")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	// ErrUnknownReference and ErrAlreadyConfirmed are webhook outcomes that
	// are acknowledged to the gateway instead of being retried.
	ErrUnknownReference = errors.New("unknown_payment_reference")
	ErrAlreadyConfirmed = errors.New("payment_already_confirmed")
	ErrNoReceipt        = errors.New("receipt_not_found")
)

const (
	MinReferenceLength  = 3
	MinVoidReasonLength = 5
	MaxVoidReasonLength = 500
)

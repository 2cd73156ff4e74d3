package authorization

import (
	"context"
	"errors"
)

const (
	ObjectPayment  = "payment"
	ObjectInvoice  = "invoice"
	ObjectFee      = "fee"
	ObjectAcademic = "academic"
	ObjectAuditLog = "audit_log"
	ObjectUser     = "user"
)

const (
	ActionPaymentCash     = "payment.cash"
	ActionPaymentTransfer = "payment.transfer"
	ActionPaymentApprove  = "payment.approve"
	ActionPaymentVoid     = "payment.void"
	ActionPaymentWaiver   = "payment.waiver"
	ActionPaymentRead     = "payment.read"

	ActionInvoiceGenerate = "invoice.generate"
	ActionInvoiceWaive    = "invoice.waive"
	ActionInvoiceCancel   = "invoice.cancel"
	ActionInvoiceRemind   = "invoice.remind"
	ActionInvoiceRead     = "invoice.read"

	ActionFeeManage      = "fee.manage"
	ActionFeeRead        = "fee.read"
	ActionAcademicManage = "academic.manage"
	ActionAcademicRead   = "academic.read"
	ActionAuditLogView   = "audit_log.view"

	ActionUserRead   = "user.read"
	ActionUserManage = "user.manage"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidSchool = errors.New("invalid_school")
	ErrInvalidAction = errors.New("invalid_action")
)

// Subject is who asks. Role is the school role carried by the access token.
type Subject struct {
	UserID   string
	SchoolID string
	Role     string
}

type Service interface {
	Authorize(ctx context.Context, subject Subject, object, action string) error
}

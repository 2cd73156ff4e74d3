package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser     ActorType = "user"
	ActorTypeParent   ActorType = "parent"
	ActorTypeSystem   ActorType = "system"
	ActorTypeWorkflow ActorType = "workflow"
	ActorTypeGateway  ActorType = "gateway"
)

const (
	ActionPaymentCashRecorded      = "payment.cash_recorded"
	ActionPaymentTransferSubmitted = "payment.transfer_submitted"
	ActionPaymentTransferApproved  = "payment.transfer_approved"
	ActionPaymentTransferRejected  = "payment.transfer_rejected"
	ActionPaymentOnlineConfirmed   = "payment.online_confirmed"
	ActionPaymentVoided            = "payment.voided"
	ActionPaymentWaiverRecorded    = "payment.waiver_recorded"
	ActionInvoiceGenerated         = "invoice.generated"
	ActionInvoiceWaived            = "invoice.waived"
	ActionInvoiceCancelled         = "invoice.cancelled"
	ActionAuthorizationDenied      = "authorization.denied"
	ActionUserCreated              = "user.created"
	ActionUserUpdated              = "user.updated"
	ActionUserDeleted              = "user.deleted"
)

// AuditLog is one row of activity_log.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	SchoolID   *snowflake.ID     `gorm:"index" json:"school_id,omitempty"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	IPAddress  *string           `gorm:"type:text" json:"ip_address,omitempty"`
	RequestID  *string           `gorm:"type:text" json:"request_id,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "activity_log" }

type ListFilter struct {
	SchoolID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	BeforeID   snowflake.ID
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

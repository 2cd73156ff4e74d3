package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, scope tenancy.Scope, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Payment, error)
	LockByID(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Payment, error)
	FindByReference(ctx context.Context, db *gorm.DB, scope tenancy.Scope, reference string) (*Payment, error)
	LockByReference(ctx context.Context, db *gorm.DB, scope tenancy.Scope, reference string) (*Payment, error)
	// ListByInvoice returns every payment including voided ones, newest first.
	ListByInvoice(ctx context.Context, db *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) ([]Payment, error)
	// ListPendingTransfers returns the approval queue, oldest first.
	ListPendingTransfers(ctx context.Context, db *gorm.DB, scope tenancy.Scope, limit int) ([]PendingTransfer, error)
	// ListCounted returns the success, non-voided payments of an invoice.
	ListCounted(ctx context.Context, db *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) ([]Payment, error)
	CountConfirmed(ctx context.Context, db *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) (int64, error)
	// FindReceiptRow returns nil when the payment has no receipt number.
	FindReceiptRow(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*ReceiptRow, error)
	// LatestReceipted returns the newest receipted payment of an invoice.
	LatestReceipted(ctx context.Context, db *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) (*Payment, error)
	Update(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, updates map[string]any) error
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type ListFilter struct {
	TermID   snowflake.ID
	ClassID  snowflake.ID
	Status   InvoiceStatus
	Search   string
	BeforeID snowflake.ID
	Limit    int
}

type Repository interface {
	// Insert writes the invoice and its line-item snapshot.
	Insert(ctx context.Context, db *gorm.DB, scope tenancy.Scope, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Invoice, error)
	// LockByID reads the invoice with a row lock where the dialect supports one.
	LockByID(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*Invoice, error)
	FindByStudentTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, studentID, termID snowflake.ID) (*Invoice, error)
	ExistingStudentIDs(ctx context.Context, db *gorm.DB, scope tenancy.Scope, termID snowflake.ID) (map[snowflake.ID]struct{}, error)
	ListLineItems(ctx context.Context, db *gorm.DB, scope tenancy.Scope, invoiceID snowflake.ID) ([]LineItem, error)
	List(ctx context.Context, db *gorm.DB, scope tenancy.Scope, filter ListFilter) ([]InvoiceView, error)
	ListForTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, termID snowflake.ID) ([]Invoice, error)
	ListDebtors(ctx context.Context, db *gorm.DB, scope tenancy.Scope, termID snowflake.ID, statuses []InvoiceStatus) ([]Debtor, error)

	UpdateBalance(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, paid decimal.Decimal, status InvoiceStatus, at time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, status InvoiceStatus, notes string, at time.Time) error

	// FindPublicByToken resolves a payment link. The token is the credential,
	// so this is the one lookup that does not start from a scope.
	FindPublicByToken(ctx context.Context, db *gorm.DB, token string) (*PublicRow, error)
	// ListOverdue reads across schools for the collections workflow.
	ListOverdue(ctx context.Context, db *gorm.DB, filter OverdueFilter) ([]OverdueInvoice, error)
}

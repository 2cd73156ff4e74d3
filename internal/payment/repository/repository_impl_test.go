package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seeded struct {
	f        *testkit.Fixture
	scope    tenancy.Scope
	invoice  snowflake.ID
	student  snowflake.ID
	existing snowflake.ID
}

func seedTransfer(t *testing.T) seeded {
	t.Helper()
	f := testkit.NewFixture(t)
	school := f.School("Greenfield")
	session := f.Session(school, "2024/2025")
	term := f.Term(school, session, "First Term", 0)
	class := f.Class(school, "JSS1")
	student := f.Student(school, "GF/001", "0")
	invoice := f.Invoice(school, student, term, class, "9000", "0", "unpaid")

	existing := f.Payment(school, invoice, student, "4000", string(domain.MethodTransfer), string(domain.StatusSuccess), string(domain.ApprovalApproved), false)
	require.NoError(t, f.DB.Exec(`UPDATE payments SET reference = ?, receipt_number = ? WHERE id = ?`,
		"GTB-778812", "RCP/2025/000001", existing).Error)

	return seeded{f: f, scope: tenancy.MustScope(school), invoice: invoice, student: student, existing: existing}
}

func (s seeded) payment(reference, receipt string) *domain.Payment {
	p := &domain.Payment{
		ID:             s.f.Node.Generate(),
		InvoiceID:      s.invoice,
		StudentID:      s.student,
		Amount:         decimal.NewFromInt(1000),
		Currency:       "NGN",
		PaymentMethod:  domain.MethodTransfer,
		Status:         domain.StatusPending,
		ApprovalStatus: domain.ApprovalPending,
		PaymentDate:    s.f.Now,
		CreatedAt:      s.f.Now,
		UpdatedAt:      s.f.Now,
	}
	if reference != "" {
		p.Reference = &reference
	}
	if receipt != "" {
		p.ReceiptNumber = &receipt
	}
	return p
}

func TestInsertDuplicateReferenceHitsConstraint(t *testing.T) {
	s := seedTransfer(t)
	r := Provide()

	err := r.Insert(context.Background(), s.f.DB, s.scope, s.payment("GTB-778812", ""))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.EqualValues(t, 1, s.f.Count("payments", "reference = ?", "GTB-778812"))
}

func TestInsertDuplicateReceiptNumberIsNotAReferenceConflict(t *testing.T) {
	s := seedTransfer(t)
	r := Provide()

	err := r.Insert(context.Background(), s.f.DB, s.scope, s.payment("GTB-990001", "RCP/2025/000001"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateReference)
}

func TestUpdateDuplicateReceiptNumberIsNotAReferenceConflict(t *testing.T) {
	s := seedTransfer(t)
	r := Provide()

	fresh := s.payment("GTB-990002", "")
	require.NoError(t, r.Insert(context.Background(), s.f.DB, s.scope, fresh))

	err := r.Update(context.Background(), s.f.DB, s.scope, fresh.ID, map[string]any{"receipt_number": "RCP/2025/000001"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateReference)

	err = r.Update(context.Background(), s.f.DB, s.scope, fresh.ID, map[string]any{"reference": "GTB-778812"})
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
}

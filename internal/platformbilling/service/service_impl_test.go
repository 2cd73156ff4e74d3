package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	academicrepo "github.com/smallbiznis/schoolpay/internal/academic/repository"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/platformbilling/domain"
	"github.com/smallbiznis/schoolpay/internal/platformbilling/repository"
	"github.com/smallbiznis/schoolpay/internal/platformbilling/service"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(f *testkit.Fixture) domain.Service {
	return service.New(service.Params{
		DB:           f.DB,
		Log:          zap.NewNop(),
		GenID:        f.Node,
		Clock:        clock.NewFakeClock(f.Now),
		Pricing:      config.NewStaticPlatformConfigHolder(config.DefaultPlatformPricing()),
		Repo:         repository.Provide(),
		AcademicRepo: academicrepo.Provide(),
	})
}

func TestComputeFloorsAtMinimumAndAppliesReferral(t *testing.T) {
	pricing := config.PlatformPricing{PricePerStudent: 500, MinBillableStudents: 100, DueDays: 14, GraceDays: 7, Currency: "NGN"}
	now := time.Date(2025, 1, 10, 23, 30, 0, 0, time.UTC)

	small := service.Compute(pricing, 40, decimal.Zero, now)
	assert.Equal(t, 40, small.ActiveStudentCount)
	assert.Equal(t, 100, small.BillableStudentCount)
	assert.True(t, decimal.NewFromInt(50000).Equal(small.TotalAmount))
	assert.True(t, small.DiscountAmount.IsZero())

	large := service.Compute(pricing, 333, decimal.RequireFromString("12.5"), now)
	assert.Equal(t, 333, large.BillableStudentCount)
	assert.True(t, decimal.NewFromInt(166500).Equal(large.TotalAmount))
	assert.True(t, decimal.RequireFromString("20812.5").Equal(large.DiscountAmount))
	assert.True(t, decimal.RequireFromString("145687.5").Equal(large.AmountDue))

	// 23:30 UTC is already the 11th in Lagos.
	assert.Equal(t, 25, large.DueDate.Day())
	assert.True(t, large.DueDate.AddDate(0, 0, 7).Equal(large.GraceEndDate))
	assert.Equal(t, domain.ChargePending, large.Status)
}

func TestEnsureChargeIsIdempotentPerLabel(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	school := f.SchoolWithReferral("Greenfield", "10")
	target, err := tenancy.SystemTarget(tenancy.MustScope(school))
	require.NoError(t, err)

	first, err := svc.EnsureCharge(context.Background(), target, "First Term 2024/2025", 250)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(125000).Equal(first.TotalAmount))
	assert.True(t, decimal.NewFromInt(12500).Equal(first.DiscountAmount))

	second, err := svc.EnsureCharge(context.Background(), target, "First Term 2024/2025", 400)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 250, second.ActiveStudentCount)
	assert.EqualValues(t, 1, f.Count("platform_charges", "school_id = ?", school))

	_, err = svc.EnsureCharge(context.Background(), target, "  ", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTermLabel)
}

func TestEnsureChargeConcurrentCallsInsertOnce(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	school := f.School("Greenfield")
	target, err := tenancy.SystemTarget(tenancy.MustScope(school))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.EnsureCharge(context.Background(), target, "Second Term 2024/2025", 120)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, f.Count("platform_charges", ""))
}

func TestListAndMarkPaidRequireExplicitTarget(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	schoolA := f.School("School A")
	schoolB := f.School("School B")

	targetA, err := tenancy.NewPlatformTarget(true, schoolA)
	require.NoError(t, err)
	targetB, err := tenancy.NewPlatformTarget(true, schoolB)
	require.NoError(t, err)

	charge, err := svc.EnsureCharge(context.Background(), targetA, "First Term 2024/2025", 10)
	require.NoError(t, err)

	_, err = svc.List(context.Background(), tenancy.PlatformTarget{})
	assert.ErrorIs(t, err, tenancy.ErrMissingTargetSchool)

	listB, err := svc.List(context.Background(), targetB)
	require.NoError(t, err)
	assert.Empty(t, listB)

	_, err = svc.MarkPaid(context.Background(), targetB, charge.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	paid, err := svc.MarkPaid(context.Background(), targetA, charge.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ChargePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = svc.MarkPaid(context.Background(), targetA, charge.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

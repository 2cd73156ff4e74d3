package tenancy_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNewScopeRejectsZero(t *testing.T) {
	_, err := tenancy.NewScope(0)
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)

	s, err := tenancy.NewScope(42)
	require.NoError(t, err)
	assert.True(t, s.Valid())
	assert.Equal(t, "42", s.String())
}

func TestFromContextFailsClosed(t *testing.T) {
	_, err := tenancy.FromContext(context.Background())
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)

	ctx := tenancy.WithSchool(context.Background(), 0)
	_, err = tenancy.FromContext(ctx)
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)

	ctx = tenancy.WithSchool(context.Background(), 7)
	s, err := tenancy.FromContext(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 7, s.SchoolID())
}

func TestUpdateAcrossTenantsIsNotFound(t *testing.T) {
	f := testkit.NewFixture(t)
	schoolA := f.School("School A")
	schoolB := f.School("School B")
	studentB := f.Student(schoolB, "B-001", "0")

	scopeA := tenancy.MustScope(schoolA)
	err := scopeA.Update(f.DB, "students", studentB, map[string]any{"guardian_phone": "000"})
	assert.ErrorIs(t, err, tenancy.ErrNotFound)

	scopeB := tenancy.MustScope(schoolB)
	require.NoError(t, scopeB.Update(f.DB, "students", studentB, map[string]any{"guardian_phone": "111"}))
	assert.EqualValues(t, 1, f.Count("students", "guardian_phone = ?", "111"))
}

func TestWhereNarrowsToScope(t *testing.T) {
	f := testkit.NewFixture(t)
	schoolA := f.School("School A")
	schoolB := f.School("School B")
	f.Student(schoolA, "A-001", "0")
	f.Student(schoolB, "B-001", "0")
	f.Student(schoolB, "B-002", "0")

	var n int64
	require.NoError(t, tenancy.MustScope(schoolB).Where(f.DB.Table("students"), "").Count(&n).Error)
	assert.EqualValues(t, 2, n)

	err := tenancy.Scope{}.Where(f.DB.Table("students"), "").Count(&n).Error
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)
}

func TestTransactionRequiresScope(t *testing.T) {
	f := testkit.NewFixture(t)
	called := false
	err := tenancy.Scope{}.Transaction(context.Background(), f.DB, func(tx *gorm.DB) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)
	assert.False(t, called)
}

func TestPlatformTarget(t *testing.T) {
	_, err := tenancy.NewPlatformTarget(false, 9)
	assert.ErrorIs(t, err, tenancy.ErrPlatformAdminOnly)

	_, err = tenancy.NewPlatformTarget(true, 0)
	assert.ErrorIs(t, err, tenancy.ErrMissingTargetSchool)

	target, err := tenancy.NewPlatformTarget(true, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 9, target.SchoolID())

	_, err = tenancy.SystemTarget(tenancy.Scope{})
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)
}

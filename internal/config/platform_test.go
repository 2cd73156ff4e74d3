package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPlatformConfigHolder_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewPlatformConfigHolder(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatformPricing(), holder.Get())
}

func TestPlatformConfigHolder_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("platform:\n  pricePerStudent: 750\n  minBillableStudents: 50\n  dueDays: 7\n  graceDays: 3\n  currency: NGN\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.yml"), body, 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewPlatformConfigHolder(zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, int64(750), got.PricePerStudent)
	assert.Equal(t, int64(50), got.MinBillableStudents)
	assert.Equal(t, 7, got.DueDays)
	assert.Equal(t, 3, got.GraceDays)
}

func TestValidatePlatformPricing(t *testing.T) {
	p := DefaultPlatformPricing()
	p.PricePerStudent = -1
	assert.Error(t, validatePlatformPricing(p))

	p = DefaultPlatformPricing()
	p.Currency = " "
	assert.Error(t, validatePlatformPricing(p))
}

package token

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T) (*Issuer, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	issuer, err := NewIssuer(config.Config{AuthJWTSecret: "test-secret"}, clk)
	require.NoError(t, err)
	return issuer, clk
}

func bursar() domain.User {
	school := snowflake.ID(77)
	return domain.User{ID: snowflake.ID(42), SchoolID: &school, Role: domain.RoleBursar}
}

func TestIssueAndVerify(t *testing.T) {
	issuer, _ := newIssuer(t)
	pair, err := issuer.Issue(bursar())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, 8*time.Hour, pair.ExpiresAt.Sub(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)))

	p, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), p.UserID)
	assert.Equal(t, snowflake.ID(77), p.SchoolID)
	assert.Equal(t, domain.RoleBursar, p.Role)

	id, err := issuer.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), id)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	issuer, _ := newIssuer(t)
	pair, err := issuer.Issue(bursar())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = issuer.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestAccessTokenExpires(t *testing.T) {
	issuer, clk := newIssuer(t)
	pair, err := issuer.Issue(bursar())
	require.NoError(t, err)

	clk.Advance(8*time.Hour + time.Second)
	_, err = issuer.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	_, err = issuer.VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRejectsForeignSignatureAndAlgorithm(t *testing.T) {
	issuer, clk := newIssuer(t)
	other, err := NewIssuer(config.Config{AuthJWTSecret: "other-secret"}, clk)
	require.NoError(t, err)
	pair, err := other.Issue(bursar())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Kind: kindAccess}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestSchoolessTokenNeedsPlatformAdmin(t *testing.T) {
	issuer, _ := newIssuer(t)
	pair, err := issuer.Issue(domain.User{ID: snowflake.ID(9), Role: domain.RoleStaff})
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	pair, err = issuer.Issue(domain.User{ID: snowflake.ID(9), IsPlatformAdmin: true})
	require.NoError(t, err)
	p, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, p.IsPlatformAdmin)
	assert.Zero(t, p.SchoolID)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(config.Config{}, clock.NewFakeClock(time.Now()))
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}

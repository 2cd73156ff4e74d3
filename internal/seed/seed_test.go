package seed_test

import (
	"context"
	"testing"

	academicrepo "github.com/smallbiznis/schoolpay/internal/academic/repository"
	academicservice "github.com/smallbiznis/schoolpay/internal/academic/service"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	authrepo "github.com/smallbiznis/schoolpay/internal/auth/repository"
	authservice "github.com/smallbiznis/schoolpay/internal/auth/service"
	"github.com/smallbiznis/schoolpay/internal/auth/token"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	feerepo "github.com/smallbiznis/schoolpay/internal/fee/repository"
	feeservice "github.com/smallbiznis/schoolpay/internal/fee/service"
	"github.com/smallbiznis/schoolpay/internal/seed"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLoader(t *testing.T, f *testkit.Fixture) (*seed.Loader, authdomain.Service) {
	t.Helper()
	clk := clock.NewFakeClock(f.Now)
	issuer, err := token.NewIssuer(config.Config{AuthJWTSecret: "seed-secret"}, clk)
	require.NoError(t, err)

	auth := authservice.New(authservice.Params{
		DB:     f.DB,
		Log:    zap.NewNop(),
		GenID:  f.Node,
		Clock:  clk,
		Repo:   authrepo.Provide(),
		Issuer: issuer,
	})
	loader := seed.NewLoader(seed.Params{
		Log: zap.NewNop(),
		Academic: academicservice.New(academicservice.Params{
			DB:    f.DB,
			Log:   zap.NewNop(),
			GenID: f.Node,
			Clock: clk,
			Repo:  academicrepo.Provide(),
		}),
		Fees: feeservice.New(feeservice.Params{
			DB:           f.DB,
			Log:          zap.NewNop(),
			GenID:        f.Node,
			Clock:        clk,
			Repo:         feerepo.Provide(),
			AcademicRepo: academicrepo.Provide(),
		}),
		Auth: auth,
	})
	return loader, auth
}

func TestLoadGreenfieldFixture(t *testing.T) {
	f := testkit.NewFixture(t)
	loader, auth := newLoader(t, f)

	fixture, err := seed.ParseFile("testdata/greenfield.yaml")
	require.NoError(t, err)

	res, err := loader.Load(context.Background(), fixture)
	require.NoError(t, err)

	assert.Equal(t, "greenfield-academy", res.School.Slug)
	assert.Len(t, res.Terms, 2)
	assert.Len(t, res.Classes, 2)
	assert.Equal(t, 3, res.Students)
	assert.Equal(t, 2, res.Fees)

	assert.EqualValues(t, 3, f.Count("enrollments", "school_id = ?", res.School.ID))
	assert.EqualValues(t, 4, f.Count("fee_line_items", "1 = 1"))
	assert.EqualValues(t, 1, f.Count("fee_line_items", "is_mandatory = ?", false))

	tokens, err := auth.Login(context.Background(), authdomain.LoginRequest{
		Email:    "bursar@greenfield.test",
		Password: "change-me-please",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestLoadRejectsUnknownClass(t *testing.T) {
	f := testkit.NewFixture(t)
	loader, _ := newLoader(t, f)

	fixture, err := seed.Parse([]byte(`
school:
  name: Lagoon College
session:
  name: 2024/2025
  start: 2024-09-09
  end: 2025-07-25
students:
  - admission_number: LC/001
    first_name: Ife
    last_name: Ade
    class: SS3
`))
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), fixture)
	assert.ErrorIs(t, err, seed.ErrInvalidFixture)
}

func TestParseRequiresNames(t *testing.T) {
	_, err := seed.Parse([]byte("school: {}\n"))
	assert.ErrorIs(t, err, seed.ErrInvalidFixture)

	_, err = seed.Parse([]byte("school: [\n"))
	assert.ErrorIs(t, err, seed.ErrInvalidFixture)
}

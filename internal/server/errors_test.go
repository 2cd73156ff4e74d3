package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/authorization"
	feedomain "github.com/smallbiznis/schoolpay/internal/fee/domain"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/invoicegen"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"duplicate reference", paymentdomain.ErrDuplicateReference, http.StatusConflict, typeConflict},
		{"fee structure exists", feedomain.ErrFeeStructureExists, http.StatusConflict, typeConflict},
		{"already processed", paymentdomain.ErrAlreadyProcessed, http.StatusConflict, typeConflict},
		{"generation running", invoicegen.ErrGenerationInProgress, http.StatusConflict, typeConflict},
		{"invoice closed", invoicedomain.ErrInvoiceClosed, http.StatusConflict, typeConflict},
		{"invoice missing", invoicedomain.ErrNotFound, http.StatusNotFound, typeNotFound},
		{"tenant mismatch", tenancy.ErrNotFound, http.StatusNotFound, typeNotFound},
		{"gateway down", paymentdomain.ErrGatewayUnavailable, http.StatusBadGateway, typeUpstreamUnavailable},
		{"bad signature", gateway.ErrInvalidSignature, http.StatusBadRequest, typeInvalidSignature},
		{"bad amount", paymentdomain.ErrInvalidAmount, http.StatusBadRequest, typeInvalidRequest},
		{"no enrollments", invoicegen.ErrNoActiveEnrollments, http.StatusBadRequest, typeInvalidRequest},
		{"expired token", fmt.Errorf("verify: %w", authdomain.ErrTokenExpired), http.StatusUnauthorized, typeUnauthorized},
		{"denied", authorization.ErrForbidden, http.StatusForbidden, typeForbidden},
		{"no tenant", tenancy.ErrMissingTenant, http.StatusForbidden, typeForbidden},
		{"login throttled", authdomain.ErrTooManyAttempts, http.StatusTooManyRequests, typeRateLimited},
		{"unknown", errors.New("pq: connection reset"), http.StatusInternalServerError, typeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
		})
	}
}

func TestMapErrorDetails(t *testing.T) {
	_, payload := mapError(paymentdomain.ErrInvalidReference)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "reference", payload.Errors[0].Field)
	assert.Equal(t, "invalid_reference", payload.Errors[0].Code)

	_, payload = mapError(paymentdomain.ErrDuplicateReference)
	assert.Equal(t, "a payment with this reference already exists", payload.Message)

	_, payload = mapError(gateway.ErrInvalidSignature)
	assert.Equal(t, "invalid request", payload.Message)
}

func TestClassifyErrorForLogHidesInternalDetail(t *testing.T) {
	kind, code := classifyErrorForLog(errors.New("dial tcp 10.0.0.3:5432: refused"))
	assert.Equal(t, typeInternal, kind)
	assert.Empty(t, code)

	kind, code = classifyErrorForLog(paymentdomain.ErrDuplicateReference)
	assert.Equal(t, typeConflict, kind)
	assert.Equal(t, "duplicate_reference", code)

	kind, code = classifyErrorForLog(newValidationError("limit", "invalid_limit", "invalid limit"))
	assert.Equal(t, typeInvalidRequest, kind)
	assert.Equal(t, "invalid_limit", code)
}

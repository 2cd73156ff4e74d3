package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithSchoolID(ctx, "77")
	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeUser, "9")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "77", fields["school_id"])
	assert.Equal(t, "user", fields["actor_type"])
	assert.Equal(t, "9", fields["actor_id"])
}

func TestWithContextOmitsEmptyFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithContext(context.Background(), zap.New(core)).Info("plain")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestSafePathHidesPaymentToken(t *testing.T) {
	assert.Equal(t, "/pay/:token", safePath("/pay/:token", "/pay/secret-token"))
	assert.Equal(t, "/api/v1/invoices/1", safePath("/api/v1/invoices/:id", "/api/v1/invoices/1"))
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "UPDATE", operationFromSQL("  update invoices set status = ?"))
	assert.Equal(t, "SELECT", operationFromSQL("(SELECT 1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyGenerationError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: GenerationReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: GenerationReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: GenerationReasonSerializationFailure},
		{name: "unique_violation", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: GenerationReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: GenerationReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyGenerationError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestGenerationMetricsCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newGenerationMetrics(registry, Config{ServiceName: "schoolpay", Environment: "test"})

	m.ObserveRun(150 * time.Millisecond)
	m.AddStudents(GenerationOutcomeGenerated, 3)
	m.AddStudents(GenerationOutcomeSkipped, 0)
	m.IncError(&pgconn.PgError{Code: "23505"})

	if got := testutil.ToFloat64(m.runs); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(m.students.WithLabelValues(GenerationOutcomeGenerated)); got != 3 {
		t.Fatalf("expected 3 generated, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues(GenerationReasonUniqueViolation)); got != 1 {
		t.Fatalf("expected 1 unique violation, got %v", got)
	}
}

func TestNilGenerationMetricsIsSafe(t *testing.T) {
	var m *GenerationMetrics
	m.ObserveRun(time.Second)
	m.AddStudents(GenerationOutcomeFailed, 1)
	m.IncError(errors.New("x"))
}

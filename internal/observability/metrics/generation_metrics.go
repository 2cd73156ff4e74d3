package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	GenerationReasonDeadlineExceeded     = "deadline_exceeded"
	GenerationReasonDBLockTimeout        = "db_lock_timeout"
	GenerationReasonSerializationFailure = "serialization_failure"
	GenerationReasonUniqueViolation      = "unique_violation"
	GenerationReasonUnknown              = "unknown"
)

const (
	GenerationOutcomeGenerated = "generated"
	GenerationOutcomeSkipped   = "skipped"
	GenerationOutcomeFailed    = "failed"
)

// GenerationMetrics tracks term invoice generation runs.
type GenerationMetrics struct {
	runs     prometheus.Counter
	duration prometheus.Histogram
	students *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

func NewGenerationMetrics(cfg Config) *GenerationMetrics {
	return newGenerationMetrics(prometheus.DefaultRegisterer, cfg)
}

// NewGenerationMetricsForTest registers on a private registry.
func NewGenerationMetricsForTest(registerer prometheus.Registerer) *GenerationMetrics {
	return newGenerationMetrics(registerer, Config{ServiceName: "schoolpay", Environment: "test"})
}

func newGenerationMetrics(registerer prometheus.Registerer, cfg Config) *GenerationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := prometheus.Labels{
		"service": serviceName(cfg),
		"env":     environment(cfg),
	}
	ns := namespace(cfg)

	m := &GenerationMetrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "invoice_generation_runs_total",
			Help:        "Term invoice generation runs.",
			ConstLabels: constLabels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "invoice_generation_duration_seconds",
			Help:        "Wall time of one generation run.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}),
		students: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "invoice_generation_students_total",
			Help:        "Students processed by generation, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "invoice_generation_errors_total",
			Help:        "Per-student generation failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.students, m.errors)
	return m
}

func (m *GenerationMetrics) ObserveRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.duration.Observe(duration.Seconds())
}

func (m *GenerationMetrics) AddStudents(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.students.WithLabelValues(outcome).Add(float64(count))
}

func (m *GenerationMetrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(ClassifyGenerationError(err)).Inc()
}

// ClassifyGenerationError maps an error to a bounded reason label.
func ClassifyGenerationError(err error) string {
	switch {
	case err == nil:
		return GenerationReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return GenerationReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return GenerationReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return GenerationReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return GenerationReasonUniqueViolation
	default:
		return GenerationReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

// Package platformmetrics pushes per-school billing gauges to the platform
// owner's Prometheus. Nothing here is exposed on /metrics.
package platformmetrics

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is nil when platform metrics are disabled. Every method is safe
// to call on a nil Recorder.
type Recorder struct {
	registry          *prometheus.Registry
	billableStudents  *prometheus.GaugeVec
	invoicesGenerated *prometheus.CounterVec
	schoolsTotal      prometheus.Gauge
}

func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry: registry,
		billableStudents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "schoolpay_platform_billable_students",
			Help: "Students counted towards the platform charge of the latest generated term.",
		}, []string{"school_id", "term_label"}),
		invoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolpay_platform_invoices_generated_total",
			Help: "Invoices generated per school.",
		}, []string{"school_id"}),
		schoolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schoolpay_platform_schools_total",
			Help: "Schools registered on the platform.",
		}),
	}
	registry.MustRegister(r.billableStudents, r.invoicesGenerated, r.schoolsTotal)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RecordGeneration(schoolID snowflake.ID, termLabel string, billable, generated int) {
	if r == nil {
		return
	}
	school := schoolID.String()
	if billable < 0 {
		billable = 0
	}
	r.billableStudents.WithLabelValues(school, normalizeLabel(termLabel)).Set(float64(billable))
	if generated > 0 {
		r.invoicesGenerated.WithLabelValues(school).Add(float64(generated))
	}
}

func (r *Recorder) SetSchoolsTotal(count int64) {
	if r == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	r.schoolsTotal.Set(float64(count))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

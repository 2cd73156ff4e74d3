package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsTenantLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("school_id", "123"),
		attribute.String("student_id", "456"),
		attribute.String("method", "cash"),
		attribute.String("outcome", "confirmed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, a := range attrs {
		if a.Key == "school_id" || a.Key == "student_id" {
			t.Fatalf("high-cardinality label %q retained", a.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentEvent(context.Background(), "cash", "confirmed")
	m.RecordWebhook(context.Background(), "paystack", "duplicate")
}

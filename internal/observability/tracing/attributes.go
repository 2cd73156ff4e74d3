package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext pulls upstream trace context out of carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectContext writes the current trace context into outbound headers.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

var sensitiveKeys = []string{"token", "secret", "password", "phone", "email", "authorization"}

// SafeAttributes drops attributes whose key names suggest credentials or PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error fit for span recording. Messages that look like
// they embed credentials are replaced by a generic marker.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if isSensitiveKey(msg) {
		return errors.New("redacted error")
	}
	return err
}

func isSensitiveKey(value string) bool {
	lower := strings.ToLower(value)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key) {
			return true
		}
	}
	return false
}

// Package context carries request correlation fields used by logs, traces
// and audit entries.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type schoolIDKey struct{}
type actorKey struct{}
type clientIPKey struct{}

type actor struct {
	kind string
	id   string
}

const (
	ActorTypeUser     = "user"
	ActorTypeParent   = "parent"
	ActorTypeSystem   = "system"
	ActorTypeWorkflow = "workflow"
	ActorTypeGateway  = "gateway"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithSchoolID records the tenant for log correlation only. Data access
// reads the tenant from the tenancy package, never from here.
func WithSchoolID(ctx context.Context, schoolID string) context.Context {
	return context.WithValue(ctx, schoolIDKey{}, strings.TrimSpace(schoolID))
}

func SchoolIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(schoolIDKey{}).(string)
	return v
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	v, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return v.kind, v.id
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, strings.TrimSpace(ip))
}

func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

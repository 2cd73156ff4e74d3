package tenancy

import (
	"context"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
)

type scopeKey struct{}

// WithScope binds a tenant to ctx. The school id is mirrored into the
// observability context for log correlation.
func WithScope(ctx context.Context, s Scope) context.Context {
	ctx = context.WithValue(ctx, scopeKey{}, s)
	return obscontext.WithSchoolID(ctx, s.schoolID.String())
}

// WithSchool is a convenience for WithScope(NewScope(id)). A zero id leaves
// ctx untouched so FromContext still fails closed.
func WithSchool(ctx context.Context, schoolID snowflake.ID) context.Context {
	s, err := NewScope(schoolID)
	if err != nil {
		return ctx
	}
	return WithScope(ctx, s)
}

func FromContext(ctx context.Context) (Scope, error) {
	if ctx == nil {
		return Scope{}, ErrMissingTenant
	}
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || !s.Valid() {
		return Scope{}, ErrMissingTenant
	}
	return s, nil
}

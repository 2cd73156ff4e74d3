package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/authorization"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
)

const (
	HeaderInternalKey = "X-Internal-Key"

	contextPrincipalKey = "principal"
)

// AuthRequired verifies the bearer access token and derives the tenant scope
// for the request from its claims. Websocket upgrades may pass the token as
// the access_token query parameter instead.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authSvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = obscontext.WithActor(ctx, obscontext.ActorTypeUser, principal.UserID.String())
		if principal.SchoolID != 0 {
			ctx = tenancy.WithSchool(ctx, principal.SchoolID)
			ctx = obscontext.WithSchoolID(ctx, principal.SchoolID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if c.IsWebsocket() {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}

func principalFrom(c *gin.Context) (*authdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authdomain.Principal)
	return principal, ok && principal != nil
}

// SchoolRequired rejects principals without a home school. Platform admins
// reach tenant data only through the platform routes.
func (s *Server) SchoolRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if principal.SchoolID == 0 {
			AbortWithError(c, tenancy.ErrMissingTenant)
			return
		}
		c.Next()
	}
}

// SubscriptionRequired blocks billing writes for a school whose platform
// subscription is suspended or cancelled.
func (s *Server) SubscriptionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		school, err := s.academicSvc.GetSchool(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if school.SubscriptionStatus.Blocked() {
			AbortWithError(c, academicdomain.ErrSchoolSubscriptionOff)
			return
		}
		c.Next()
	}
}

func (s *Server) PlatformAdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !principal.IsPlatformAdmin {
			AbortWithError(c, tenancy.ErrPlatformAdminOnly)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(action string) gin.HandlerFunc {
	object, _, _ := strings.Cut(action, ".")
	return func(c *gin.Context) {
		principal, ok := principalFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		subject := authorization.Subject{
			UserID:   principal.UserID.String(),
			SchoolID: principal.SchoolID.String(),
			Role:     string(principal.Role),
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), subject, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// InternalKeyRequired guards the routes the workflow engine calls. With no
// key configured the routes do not exist.
func (s *Server) InternalKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.InternalAPIKey
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}
		provided := strings.TrimSpace(c.GetHeader(HeaderInternalKey))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeWorkflow, "n8n")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// payPageLimit throttles the public pay page per client address.
func (s *Server) payPageLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.limiter.AllowPayPage(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

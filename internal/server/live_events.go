package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
)

// StreamPaymentEvents upgrades to a websocket that carries the school's
// payment confirmations and voids.
func (s *Server) StreamPaymentEvents(c *gin.Context) {
	if s.liveEvents == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	principal, ok := principalFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	// Serve owns the response once the upgrade is attempted.
	c.Abort()
	liveevents.Serve(s.liveEvents, c.Writer, c.Request, principal.SchoolID, s.log)
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
)

// ListDebtorsForWorkflow serves the reminder workflow, which pulls the
// debtor list after a blast was queued. The school comes from the path
// because the caller holds no user token.
func (s *Server) ListDebtorsForWorkflow(c *gin.Context) {
	schoolID, ok := targetSchoolParam(c)
	if !ok {
		return
	}
	ctx := tenancy.WithSchool(c.Request.Context(), schoolID)
	ctx = obscontext.WithSchoolID(ctx, schoolID.String())

	debtors, err := s.invoiceSvc.ListDebtors(ctx, c.Query("term_id"), debtorStatuses(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": debtors})
}

// ListOverdueInvoices serves the collections workflow across every school.
// By default only schools with an active subscription are included.
func (s *Server) ListOverdueInvoices(c *gin.Context) {
	var req invoicedomain.ListOverdueRequest
	if !bindQuery(c, &req) {
		return
	}

	rows, err := s.invoiceSvc.ListOverdue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/invoicegen"
)

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoicesRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetInvoice(c *gin.Context) {
	item, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) InvoiceSummary(c *gin.Context) {
	summary, err := s.invoiceSvc.Summary(c.Request.Context(), c.Query("term_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GenerateInvoices(c *gin.Context) {
	var req invoicegen.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.generator.Generate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) WaiveInvoice(c *gin.Context) {
	s.closeInvoice(c, s.invoiceSvc.Waive)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	s.closeInvoice(c, s.invoiceSvc.Cancel)
}

func (s *Server) closeInvoice(c *gin.Context, apply func(ctx context.Context, req invoicedomain.CloseRequest) (*invoicedomain.Invoice, error)) {
	var req invoicedomain.CloseRequest
	if !bindJSON(c, &req) {
		return
	}
	req.InvoiceID = c.Param("id")

	item, err := apply(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListDebtors(c *gin.Context) {
	debtors, err := s.invoiceSvc.ListDebtors(c.Request.Context(), c.Query("term_id"), debtorStatuses(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": debtors})
}

func (s *Server) SendReminders(c *gin.Context) {
	var req invoicedomain.SendRemindersRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.invoiceSvc.SendReminders(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": res})
}

func debtorStatuses(c *gin.Context) []invoicedomain.InvoiceStatus {
	values := splitList(c.Query("status"))
	statuses := make([]invoicedomain.InvoiceStatus, 0, len(values))
	for _, value := range values {
		statuses = append(statuses, invoicedomain.InvoiceStatus(value))
	}
	return statuses
}

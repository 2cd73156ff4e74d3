package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
)

const defaultPendingLimit = 50

func (s *Server) RecordCash(c *gin.Context) {
	var req paymentdomain.RecordCashRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := s.paymentSvc.RecordCash(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) RecordTransfer(c *gin.Context) {
	var req paymentdomain.RecordTransferRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := s.paymentSvc.RecordTransfer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) RecordWaiver(c *gin.Context) {
	var req paymentdomain.RecordWaiverRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := s.paymentSvc.RecordWaiver(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) ReviewTransfer(c *gin.Context) {
	var req paymentdomain.ReviewTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PaymentID = c.Param("id")

	payment, err := s.paymentSvc.ReviewTransfer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) VoidPayment(c *gin.Context) {
	var req paymentdomain.VoidRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PaymentID = c.Param("id")

	payment, err := s.paymentSvc.Void(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) AttachProof(c *gin.Context) {
	var req paymentdomain.AttachProofRequest
	if !bindJSON(c, &req) {
		return
	}
	req.PaymentID = c.Param("id")

	payment, err := s.paymentSvc.AttachProof(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	payments, err := s.paymentSvc.ListByInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) ListPendingTransfers(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || limit < 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	if limit == 0 {
		limit = defaultPendingLimit
	}

	pending, err := s.paymentSvc.ListPendingTransfers(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pending})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	file, err := s.paymentSvc.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	writeReceipt(c, file)
}

func writeReceipt(c *gin.Context, file paymentdomain.ReceiptFile) {
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(file.Filename))
	c.Data(http.StatusOK, "application/pdf", file.Content)
}

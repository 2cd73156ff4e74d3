package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
)

// The pay page is unauthenticated. The payment token in the path is the
// credential, so every handler here is rate limited per client address.

func (s *Server) GetPublicInvoice(c *gin.Context) {
	view, err := s.invoiceSvc.GetByToken(c.Request.Context(), publicToken(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) InitializeOnlinePayment(c *gin.Context) {
	var req paymentdomain.InitializeOnlineRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Token = publicToken(c)

	resp, err := s.paymentSvc.InitializeOnline(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// SubmitPublicTransfer lets a parent declare a bank transfer. It waits in the
// bursar's approval queue like a staff-entered transfer.
func (s *Server) SubmitPublicTransfer(c *gin.Context) {
	var req paymentdomain.PublicTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Token = publicToken(c)

	transfer, err := s.paymentSvc.SubmitPublicTransfer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"data":    transfer,
		"message": "Transfer recorded. The bursar will confirm it after checking the bank statement.",
	})
}

func (s *Server) AttachPublicProof(c *gin.Context) {
	var req paymentdomain.PublicProofRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Token = publicToken(c)
	req.PaymentID = c.Param("payment_id")

	transfer, err := s.paymentSvc.AttachPublicProof(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": transfer})
}

func (s *Server) GetPublicPaymentStatus(c *gin.Context) {
	status, err := s.paymentSvc.PublicStatus(c.Request.Context(), publicToken(c), strings.TrimSpace(c.Query("reference")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (s *Server) DownloadPublicReceipt(c *gin.Context) {
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		AbortWithError(c, newValidationError("reference", "required", "reference is required"))
		return
	}

	file, err := s.paymentSvc.ReceiptByToken(c.Request.Context(), publicToken(c), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	writeReceipt(c, file)
}

func publicToken(c *gin.Context) string {
	return strings.TrimSpace(c.Param("token"))
}

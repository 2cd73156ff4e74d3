package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolpay/internal/payment/webhook"
)

const maxWebhookBody = 1 << 20

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.webhooks.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, webhook.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": webhook.OutcomeDuplicate})
			return
		}
		AbortWithError(c, err)
		return
	}
	if !outcome.Acknowledged() {
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": outcome})
}

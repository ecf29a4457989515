package handler

import (
	"errors"
	"io"
	"net/http"

	"partsight/internal/service"
	"partsight/pkg/billing"

	"github.com/gin-gonic/gin"
)

// BillingWebhookHandler receives provider webhook deliveries. A bad
// signature is rejected so the provider redelivers; everything else is
// acknowledged with 200 regardless of processing outcome.
type BillingWebhookHandler struct {
	svc *service.BillingService
}

func NewBillingWebhookHandler(svc *service.BillingService) *BillingWebhookHandler {
	return &BillingWebhookHandler{svc: svc}
}

func (h *BillingWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	sig := c.GetHeader("Stripe-Signature")
	if err := h.svc.HandleEvent(c.Request.Context(), body, sig); err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

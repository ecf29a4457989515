package handler

import (
	"errors"
	"net/http"

	"partsight/internal/middleware"
	"partsight/internal/repository"
	"partsight/internal/service"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	checkout *service.CheckoutService
	subs     *repository.SubscriptionRepository
}

func NewBillingHandler(checkout *service.CheckoutService, subs *repository.SubscriptionRepository) *BillingHandler {
	return &BillingHandler{checkout: checkout, subs: subs}
}

type SubscriptionCheckoutRequest struct {
	Plan      string `json:"plan" binding:"required"`
	TrialDays int64  `json:"trial_days"`
}

type CreditsCheckoutRequest struct {
	Credits int64 `json:"credits" binding:"required"`
}

// CreateSubscriptionCheckout opens a provider checkout session for a
// monthly plan and returns its redirect URL.
func (h *BillingHandler) CreateSubscriptionCheckout(c *gin.Context) {
	var req SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	url, err := h.checkout.CreateSubscriptionCheckout(c.Request.Context(), userID, req.Plan, req.TrialDays)
	if err != nil {
		h.checkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

// CreateCreditsCheckout opens a one-off checkout for a credit pack.
func (h *BillingHandler) CreateCreditsCheckout(c *gin.Context) {
	var req CreditsCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	url, err := h.checkout.CreateCreditsCheckout(c.Request.Context(), userID, req.Credits)
	if err != nil {
		h.checkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

func (h *BillingHandler) checkoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPaymentUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout failed"})
	}
}

// Cancel flags the subscription for cancellation at period end. Status is
// untouched; the provider's deletion event does that when the period ends.
func (h *BillingHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if err := h.subs.SetCancelAtPeriodEnd(userID, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancel_at_period_end": true})
}

// Reactivate clears the cancellation flag before the period ends.
func (h *BillingHandler) Reactivate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if err := h.subs.SetCancelAtPeriodEnd(userID, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reactivate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancel_at_period_end": false})
}

// GetSubscription returns the user's subscription state. Users without a
// row get the inactive free default.
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sub, err := h.subs.GetByUserID(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":                 sub.Tier,
		"status":               sub.Status,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"has_access":           h.subs.HasActiveAccess(userID),
	})
}

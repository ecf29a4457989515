package handler

import (
	"log"
	"net/http"
	"strconv"

	"partsight/internal/domain"
	"partsight/internal/middleware"
	"partsight/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	credits *service.CreditService
}

func NewAdminHandler(credits *service.CreditService) *AdminHandler {
	return &AdminHandler{credits: credits}
}

type GrantCreditsRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// GrantCredits credits a user's balance out of band, recorded in the
// ledger as an administrative grant.
func (h *AdminHandler) GrantCredits(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	after, err := h.credits.Grant(uint(userID), req.Amount, domain.ReasonAdminGrant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "grant failed"})
		return
	}
	log.Printf("[admin] granted %d credits to user %d by admin %d", req.Amount, userID, middleware.GetUserID(c))
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": after})
}

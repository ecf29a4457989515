package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"partsight/internal/middleware"
	"partsight/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxUploadBytes bounds the analysis input size.
const maxUploadBytes = 10 << 20

type AnalysisHandler struct {
	svc     *service.AnalysisService
	credits *service.CreditService
}

func NewAnalysisHandler(svc *service.AnalysisService, credits *service.CreditService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, credits: credits}
}

// Submit accepts a multipart analysis request and queues it. A 202 means
// the credit is reserved and the job dispatched; 402 means the balance
// could not cover it and nothing was created.
func (h *AnalysisHandler) Submit(c *gin.Context) {
	userID := middleware.GetUserID(c)
	email := middleware.GetEmail(c)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty image"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	var keywords []string
	if kw := c.PostForm("keywords"); kw != "" {
		keywords = strings.Split(kw, ",")
	}
	deep := c.PostForm("deep") == "true"

	job, err := h.svc.Submit(c.Request.Context(), service.SubmitInput{
		UserID:   userID,
		Email:    email,
		Image:    data,
		Filename: header.Filename,
		Keywords: keywords,
		Deep:     deep,
	})
	if err != nil {
		if errors.Is(err, service.ErrInsufficientCredits) {
			bal, _ := h.credits.GetBalance(userID)
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":            "insufficient credits",
				"current_credits":  bal.Amount,
				"required_credits": 1,
			})
			return
		}
		log.Printf("[analysis] submit failed: user=%d err=%v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start analysis"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (h *AnalysisHandler) GetJob(c *gin.Context) {
	userID := middleware.GetUserID(c)
	job, err := h.svc.GetJob(userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, service.ErrNotOwner) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (h *AnalysisHandler) ListJobs(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	jobs, err := h.svc.ListJobs(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

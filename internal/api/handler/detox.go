package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arlen/newscalm/internal/api/middleware"
	"github.com/arlen/newscalm/internal/domain"
	"github.com/arlen/newscalm/internal/service"
)

// DetoxHandler handles detoxification endpoints.
type DetoxHandler struct {
	detoxService *service.DetoxService
}

// NewDetoxHandler creates a new detox handler.
func NewDetoxHandler(detoxService *service.DetoxService) *DetoxHandler {
	return &DetoxHandler{detoxService: detoxService}
}

type processRequest struct {
	Text         string `json:"text" binding:"required"`
	ContentType  string `json:"content_type"`
	GenerateMeme bool   `json:"generate_meme"`
}

// Process handles POST /api/v1/detox/process. New content is accepted with
// 202 and a pending task; content already known returns 200 with the
// existing task.
func (h *DetoxHandler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	task, created, err := h.detoxService.Submit(c.Request.Context(), service.SubmitRequest{
		Text:         req.Text,
		ContentType:  req.ContentType,
		GenerateMeme: req.GenerateMeme,
		UserID:       middleware.Identity(c),
	})
	if err != nil {
		writeDetoxError(c, err)
		return
	}

	if !created {
		c.JSON(http.StatusOK, task)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":            task.ID,
		"status":        task.Status,
		"original_text": task.OriginalText,
	})
}

// Status handles GET /api/v1/detox/status/:id.
func (h *DetoxHandler) Status(c *gin.Context) {
	task, err := h.detoxService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDetoxError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Retry handles POST /api/v1/detox/:id/retry. Only terminal tasks can be
// retried; anything still in flight gets 409.
func (h *DetoxHandler) Retry(c *gin.Context) {
	task, err := h.detoxService.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDetoxError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

// History handles GET /api/v1/detox/history for the calling identity.
func (h *DetoxHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	tasks, err := h.detoxService.History(c.Request.Context(), middleware.Identity(c), limit, offset)
	if err != nil {
		writeDetoxError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  tasks,
		"limit":  limit,
		"offset": offset,
	})
}

// writeDetoxError maps service errors onto the API error contract: a JSON
// body with a single "detail" field and the matching status code.
func writeDetoxError(c *gin.Context, err error) {
	var rateErr *domain.RateLimitError
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "task not found"})
	case errors.Is(err, domain.ErrNotTerminal):
		c.JSON(http.StatusConflict, gin.H{"detail": "task is still in progress and cannot be retried"})
	case errors.As(err, &rateErr):
		retryAfter := int(rateErr.RetryAfter.Seconds()) + 1
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"detail":              "rate limit exceeded, slow down",
			"retry_after_seconds": retryAfter,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}

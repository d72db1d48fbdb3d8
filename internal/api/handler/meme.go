package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arlen/newscalm/internal/domain"
	"github.com/arlen/newscalm/internal/service"
)

// MemeHandler handles meme generation endpoints.
type MemeHandler struct {
	memeService *service.MemeService
}

// NewMemeHandler creates a new meme handler.
func NewMemeHandler(memeService *service.MemeService) *MemeHandler {
	return &MemeHandler{memeService: memeService}
}

type generateRequest struct {
	Headline string `json:"headline" binding:"required"`
	Analysis string `json:"analysis"`
	Style    string `json:"style"`
}

// Generate handles POST /api/v1/memes/generate.
func (h *MemeHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	task, err := h.memeService.Submit(c.Request.Context(), req.Headline, req.Analysis, req.Style)
	if err != nil {
		writeMemeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

// Status handles GET /api/v1/memes/status/:task_id.
func (h *MemeHandler) Status(c *gin.Context) {
	task, err := h.memeService.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeMemeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func writeMemeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "meme task not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}

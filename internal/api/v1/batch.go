package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/service"
)

type BatchHandler struct {
	service service.BatchService
	log     *logger.Logger
}

func NewBatchHandler(service service.BatchService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{service: service, log: log}
}

func (h *BatchHandler) CreateBatch(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateBatch(ctx, req)
	if err != nil {
		h.log.Error("Failed to create batch", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *BatchHandler) GetBatch(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.GetBatch(ctx, c.Param("id"))
	if err != nil {
		h.log.Error("Failed to get batch", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) UpdateBatch(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpdateBatch(ctx, c.Param("id"), req)
	if err != nil {
		h.log.Error("Failed to update batch", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) ArchiveBatch(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.service.ArchiveBatch(ctx, c.Param("id"), c.Query("teacher_id")); err != nil {
		h.log.Error("Failed to archive batch", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

func (h *BatchHandler) ListBatchesByTeacher(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.ListBatchesByTeacher(ctx, c.Param("teacher_id"))
	if err != nil {
		h.log.Error("Failed to list batches", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) QuoteContribution(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.QuoteContribution(ctx, c.Param("id"))
	if err != nil {
		h.log.Error("Failed to quote contribution", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) GetTeacherMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.GetTeacherMetrics(ctx, c.Param("teacher_id"))
	if err != nil {
		h.log.Error("Failed to get teacher metrics", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) ApproveEnrollment(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	e, err := h.service.ApproveEnrollment(ctx, req)
	if err != nil {
		h.log.Error("Failed to approve enrollment", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *BatchHandler) RemoveEnrollment(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.service.RemoveEnrollment(ctx, c.Param("id"), c.Query("teacher_id")); err != nil {
		h.log.Error("Failed to remove enrollment", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

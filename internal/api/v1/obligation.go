package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/service"
)

type ObligationHandler struct {
	ledger service.LedgerService
	dues   service.DueAggregatorService
	log    *logger.Logger
}

func NewObligationHandler(ledger service.LedgerService, dues service.DueAggregatorService, log *logger.Logger) *ObligationHandler {
	return &ObligationHandler{ledger: ledger, dues: dues, log: log}
}

func (h *ObligationHandler) CreateObligation(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.ledger.CreateObligation(ctx, req)
	if err != nil {
		h.log.Error("Failed to create obligation", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ObligationHandler) GetObligation(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.ledger.GetObligation(ctx, c.Param("id"))
	if err != nil {
		h.log.Error("Failed to get obligation", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MarkCash records a cash settlement attested by the batch's teacher.
func (h *ObligationHandler) MarkCash(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.MarkCashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.ledger.MarkCash(ctx, c.Param("id"), req.TeacherID)
	if err != nil {
		h.log.Error("Failed to mark obligation paid in cash", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ObligationHandler) GetDueSummary(c *gin.Context) {
	ctx := c.Request.Context()
	studentID := c.Query("student_id")
	batchID := c.Query("batch_id")
	if studentID == "" || batchID == "" {
		c.Error(ierr.NewError("student_id and batch_id are required").
			WithHint("Provide both student_id and batch_id query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.dues.GetDueSummary(ctx, studentID, batchID)
	if err != nil {
		h.log.Error("Failed to get due summary", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/service"
	"github.com/tutorbill/tutorbill/internal/types"
)

// LedgerHandler handles the ledger's scheduled sweeps
type LedgerHandler struct {
	ledgerService service.LedgerService
	logger        *logger.Logger
}

// NewLedgerHandler creates a new ledger cron handler
func NewLedgerHandler(ledgerService service.LedgerService, logger *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// GenerateMonthlyObligations accrues this month's obligation for every active
// enrollment. Re-runs are safe: already-billed months are skipped.
func (h *LedgerHandler) GenerateMonthlyObligations(c *gin.Context) {
	h.logger.Infow("starting monthly obligation generation cron job")

	period := types.BillingPeriodStart(time.Now().UTC())
	count, err := h.ledgerService.GenerateMonthlyObligations(c.Request.Context(), period)
	if err != nil {
		h.logger.Errorw("failed to generate monthly obligations",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed monthly obligation generation cron job",
		"created", count)
	c.JSON(http.StatusOK, gin.H{"status": "completed", "created": count})
}

// RecomputeOverdue sweeps Due obligations past their due date to Overdue.
func (h *LedgerHandler) RecomputeOverdue(c *gin.Context) {
	h.logger.Infow("starting overdue sweep cron job")

	count, err := h.ledgerService.RecomputeOverdue(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Errorw("failed to recompute overdue obligations",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed overdue sweep cron job", "marked", count)
	c.JSON(http.StatusOK, gin.H{"status": "completed", "marked": count})
}

// ExpirePendingPayments releases abandoned online payment attempts back to Due.
func (h *LedgerHandler) ExpirePendingPayments(c *gin.Context) {
	h.logger.Infow("starting pending payment expiry cron job")

	count, err := h.ledgerService.ExpirePendingPayments(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Errorw("failed to expire pending payments",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed pending payment expiry cron job", "released", count)
	c.JSON(http.StatusOK, gin.H{"status": "completed", "released": count})
}

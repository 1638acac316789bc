package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/service"
)

// SubscriptionHandler handles subscription related cron jobs
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

// NewSubscriptionHandler creates a new subscription cron handler
func NewSubscriptionHandler(subscriptionService service.SubscriptionService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// EvaluateCycle ages delinquent accounts through grace, suspension and expiry.
func (h *SubscriptionHandler) EvaluateCycle(c *gin.Context) {
	h.logger.Infow("starting subscription cycle evaluation cron job")

	count, err := h.subscriptionService.EvaluateCycle(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Errorw("failed to evaluate subscription cycles",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed subscription cycle evaluation cron job",
		"transitions", count)
	c.JSON(http.StatusOK, gin.H{"status": "completed", "transitions": count})
}

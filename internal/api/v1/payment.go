package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/service"
)

type PaymentHandler struct {
	service service.PaymentIntentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentIntentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.InitiateOnlinePayment(ctx, req)
	if err != nil {
		h.log.Error("Failed to initiate payment", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// HandleSettlementWebhook receives the provider's settlement callback.
// Deliveries may arrive more than once; the service treats replays as no-ops.
func (h *PaymentHandler) HandleSettlementWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.SettlementWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.HandleSettlementWebhook(ctx, req)
	if err != nil {
		h.log.Error("Failed to handle settlement webhook", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

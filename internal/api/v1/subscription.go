package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/service"
)

type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(service service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, log: log}
}

func (h *SubscriptionHandler) CreateAccount(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateAccount(ctx, req)
	if err != nil {
		h.log.Error("Failed to create subscription account", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *SubscriptionHandler) GetAccount(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.GetAccount(ctx, c.Param("teacher_id"))
	if err != nil {
		h.log.Error("Failed to get subscription account", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetStatus is the materials-gating read: collaborators call it on every
// materials access instead of caching the lock state.
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.GetStatus(ctx, c.Param("teacher_id"))
	if err != nil {
		h.log.Error("Failed to get subscription status", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) ListPayments(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := h.service.ListPayments(ctx, c.Param("teacher_id"))
	if err != nil {
		h.log.Error("Failed to list subscription payments", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) ConfirmPayment(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.ConfirmSubscriptionPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ConfirmPayment(ctx, req)
	if err != nil {
		h.log.Error("Failed to confirm subscription payment", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/checkout"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/domain"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/repository"
)

type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	orders       *repository.OrderRepository
	logger       *zap.Logger
}

func NewCheckoutHandler(orchestrator *checkout.Orchestrator, orders *repository.OrderRepository, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		orders:       orders,
		logger:       logger,
	}
}

func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	requestID := c.GetString("request_id")
	result := h.orchestrator.Run(c.Request.Context(), req)

	status := http.StatusOK
	switch result.State {
	case checkout.StateCartValidationFailed:
		status = http.StatusUnprocessableEntity
	case checkout.StatePaymentFailed:
		status = http.StatusPaymentRequired
	case checkout.StateQueueFailed:
		h.logger.Error("Checkout charged but not queued",
			zap.String("request_id", requestID),
			zap.String("order_id", req.OrderID))
		status = http.StatusInternalServerError
	}

	c.JSON(status, result)
}

func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, order)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"checkout-svc/cart"
	"checkout-svc/checkout"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	logger       *zap.Logger
}

func NewCheckoutHandler(orchestrator *checkout.Orchestrator, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{orchestrator: orchestrator, logger: logger}
}

// CreateSession handles POST /checkout/:cartId.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	cartID, err := strconv.Atoi(c.Param("cartId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart ID"})
		return
	}

	var req models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.GetActor(c)
	result, err := h.orchestrator.CreateCheckoutSession(c.Request.Context(), cartID, req.SuccessURL, req.CancelURL, actor)
	if err != nil {
		h.renderCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Status handles GET /checkout/status/:sessionId.
func (h *CheckoutHandler) Status(c *gin.Context) {
	sessionID := c.Param("sessionId")
	result, err := h.orchestrator.Status(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, checkout.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logger.Error("Failed to resolve checkout status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CheckoutHandler) renderCheckoutError(c *gin.Context, err error) {
	var validationErr *checkout.ValidationError
	if errors.As(err, &validationErr) {
		body := gin.H{
			"error":  "Cart validation failed",
			"reason": validationErr.Result.Reason,
		}
		if len(validationErr.Result.Lines) > 0 {
			body["lines"] = validationErr.Result.Lines
		}
		if validationErr.Result.RequiredAmount > 0 {
			body["required_amount"] = validationErr.Result.RequiredAmount
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	var payoutErr *checkout.MissingPayoutError
	if errors.As(err, &payoutErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Sellers missing payment destination",
			"sellers": payoutErr.SellerIDs,
		})
		return
	}

	if errors.Is(err, cart.ErrCartNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
		return
	}

	h.logger.Error("Checkout session creation failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"checkout-svc/events"
	"checkout-svc/inventory"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	ledger *inventory.Ledger
	fanout *events.Fanout
	logger *zap.Logger
}

func NewInventoryHandler(ledger *inventory.Ledger, fanout *events.Fanout, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, fanout: fanout, logger: logger}
}

// Adjust handles POST /admin/inventory/:productId/adjust, the manual
// correction path. Permission checks live upstream.
func (h *InventoryHandler) Adjust(c *gin.Context) {
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req models.AdjustInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.GetActor(c)
	actorName := "guest"
	if !actor.Guest {
		actorName = "user:" + strconv.Itoa(actor.UserID)
	}

	evts, err := h.ledger.Adjust(c.Request.Context(), productID, req.Quantity,
		models.InventoryReason(req.Reason), actorName)
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.Error("Inventory adjust failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.fanout.PublishAll(c.Request.Context(), evts)
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "stock": req.Quantity})
}

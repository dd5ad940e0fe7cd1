package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"checkout-svc/cart"
	"checkout-svc/catalog"
	"checkout-svc/middleware"
	"checkout-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CartHandler struct {
	carts  *cart.Store
	logger *zap.Logger
}

func NewCartHandler(carts *cart.Store, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// Get handles GET /cart, returning the caller's open cart.
func (h *CartHandler) Get(c *gin.Context) {
	actor := middleware.GetActor(c)
	crt, err := h.carts.GetOrCreate(c.Request.Context(), actor)
	if err != nil {
		h.renderError(c, err)
		return
	}
	full, err := h.carts.GetWithItems(c.Request.Context(), crt.ID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, full)
}

// AddItem handles POST /cart/items; the cart is created lazily on first add.
func (h *CartHandler) AddItem(c *gin.Context) {
	var req models.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.GetActor(c)
	crt, err := h.carts.AddItem(c.Request.Context(), actor, req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

// UpdateItem handles PATCH /cart/:cartId/items/:itemId.
func (h *CartHandler) UpdateItem(c *gin.Context) {
	cartID, err1 := strconv.Atoi(c.Param("cartId"))
	itemID, err2 := strconv.Atoi(c.Param("itemId"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	crt, err := h.carts.UpdateItemQuantity(c.Request.Context(), cartID, itemID, req.Quantity)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

// RemoveItem handles DELETE /cart/:cartId/items/:itemId.
func (h *CartHandler) RemoveItem(c *gin.Context) {
	cartID, err1 := strconv.Atoi(c.Param("cartId"))
	itemID, err2 := strconv.Atoi(c.Param("itemId"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	crt, err := h.carts.RemoveItem(c.Request.Context(), cartID, itemID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

// ApplyCoupon handles POST /cart/:cartId/coupon.
func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	cartID, err := strconv.Atoi(c.Param("cartId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart ID"})
		return
	}

	var req models.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	crt, err := h.carts.ApplyCoupon(c.Request.Context(), cartID, req.Code)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

// RemoveCoupon handles DELETE /cart/:cartId/coupon.
func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	cartID, err := strconv.Atoi(c.Param("cartId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart ID"})
		return
	}

	crt, err := h.carts.RemoveCoupon(c.Request.Context(), cartID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

// Convert handles POST /cart/convert: an anonymous session just
// authenticated, so its cart is reassigned (or merged) to the user.
func (h *CartHandler) Convert(c *gin.Context) {
	actor := middleware.GetActor(c)
	if actor.Guest {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session ID"})
		return
	}

	crt, err := h.carts.Convert(c.Request.Context(), sessionID, actor.UserID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

func (h *CartHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrCartNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
	case errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart item not found"})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, cart.ErrProductInactive):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product not available"})
	default:
		h.logger.Error("Cart operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

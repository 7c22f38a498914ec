package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func sessionOf(c *gin.Context) string {
	return c.GetString(cartSessionKey)
}

func (h *Handler) viewCart(c *gin.Context) {
	view, err := h.cart.View(c.Request.Context(), sessionOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// newCart starts a fresh session, discarding any session the request carried
func (h *Handler) newCart(c *gin.Context) {
	id := service.NewSessionID()
	c.Header(cartSessionHeader, id)

	view, err := h.cart.View(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.cart.Clear(c.Request.Context(), sessionOf(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// addCartItem adds one unit; "added" is false when stock or availability
// prevented it.
func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, added, err := h.cart.AddItem(c.Request.Context(), sessionOf(c), req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cart":  view,
		"added": added,
	})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.cart.UpdateItem(c.Request.Context(), sessionOf(c), c.Param("productId"), *req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	view, err := h.cart.RemoveItem(c.Request.Context(), sessionOf(c), c.Param("productId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	order, err := h.cart.Checkout(c.Request.Context(), sessionOf(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

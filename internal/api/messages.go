package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type messageStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// createMessage accepts the public contact form, rate limited per client IP
func (h *Handler) createMessage(c *gin.Context) {
	var req service.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), c.ClientIP(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) listMessages(c *gin.Context) {
	msgs, err := h.messages.ListMessages(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) listMessageHistory(c *gin.Context) {
	history, err := h.messages.ListHistory(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) getMessage(c *gin.Context) {
	msg, err := h.messages.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) updateMessageStatus(c *gin.Context) {
	var req messageStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.messages.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) advanceMessage(c *gin.Context) {
	msg, err := h.messages.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) archiveMessage(c *gin.Context) {
	archived, err := h.messages.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, archived)
}

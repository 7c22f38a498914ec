package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, expires, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expires,
	})
}

func (h *Handler) me(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*service.Claims)

	resp := gin.H{
		"username": claims.Subject,
		"admin":    claims.Admin,
	}
	if claims.ExpiresAt != nil {
		resp["expiresAt"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getDashboard(c *gin.Context) {
	dashboard, err := h.dashboard.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

package api

import (
	"strings"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	cartSessionHeader = "X-Cart-Session"
	cartSessionKey    = "cartSession"
	claimsKey         = "claims"
)

// cartSession resolves the shopper's cart session, issuing one when the
// request carries none.
func cartSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(cartSessionHeader))
		if id == "" {
			id = service.NewSessionID()
		}
		c.Set(cartSessionKey, id)
		c.Header(cartSessionHeader, id)
		c.Next()
	}
}

// requireAdmin rejects requests without a valid administrator bearer token
func requireAdmin(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := auth.Verify(token)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, details string) {
	status, message := statusFor(models.ErrUnauthorized)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   message,
		"details": details,
	})
}

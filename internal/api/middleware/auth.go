package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lattice-im/lattice/internal/auth"
	"github.com/lattice-im/lattice/internal/types"
)

// AuthMiddleware creates a middleware that validates access tokens
func AuthMiddleware(authSvc auth.Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		// Verify token
		req, err := authSvc.GetUserByAccessToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		// Store the requester in context
		c.Set("requester", req)

		c.Next()
	}
}

// GetRequester extracts the authenticated requester from the Gin context
func GetRequester(c *gin.Context) (*types.Requester, bool) {
	v, exists := c.Get("requester")
	if !exists {
		return nil, false
	}
	req, ok := v.(*types.Requester)
	return req, ok
}

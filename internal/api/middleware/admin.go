package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminGuard protects destructive endpoints with a shared token. Only the
// bcrypt hash of the token is kept in memory. An empty token disables the
// guarded endpoints altogether.
type AdminGuard struct {
	hash []byte
}

// NewAdminGuard hashes token for later comparison.
func NewAdminGuard(token string) (*AdminGuard, error) {
	if token == "" {
		return &AdminGuard{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AdminGuard{hash: hash}, nil
}

// Enabled reports whether a token is configured.
func (g *AdminGuard) Enabled() bool {
	return len(g.hash) > 0
}

// Require accepts the token in X-Admin-Token or as a bearer token.
func (g *AdminGuard) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin endpoints are disabled"})
			return
		}

		token := c.GetHeader(AdminTokenHeader)
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(g.hash, []byte(token)); err != nil {
			GetRequestLogger(c).WithField("path", SanitizePath(c.Request.URL.Path)).Warn("rejected admin token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ownerKey = "auth.owner"

// Middleware requires a valid bearer token and stores its owner on the request.
func Middleware(j JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearer(c.GetHeader("Authorization"))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing token"})
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}
		c.Set(ownerKey, claims.Owner)
		c.Next()
	}
}

// OwnerFromContext returns the verified owner, if the request passed Middleware.
func OwnerFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ownerKey)
	if !ok {
		return "", false
	}
	owner, ok := v.(string)
	return owner, ok && owner != ""
}

func bearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

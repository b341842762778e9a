package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	adminActorKey    = "adminActor"
	adminActorHeader = "X-Admin-Actor"
)

// AdminKey guards the administrator API with a shared key.
type AdminKey struct {
	Key string
}

// RequireAdminKey accepts "Authorization: Bearer <key>" or "X-Admin-Key: <key>".
func (m *AdminKey) RequireAdminKey(c *gin.Context) {
	presented := strings.TrimSpace(c.GetHeader("X-Admin-Key"))
	if presented == "" {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			presented = strings.TrimSpace(parts[1])
		}
	}
	if presented == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Admin key required."})
		return
	}
	if m == nil || m.Key == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(m.Key)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Invalid admin key."})
		return
	}

	actor := strings.TrimSpace(c.GetHeader(adminActorHeader))
	if actor == "" {
		actor = "admin"
	}
	c.Set(adminActorKey, actor)
	c.Next()
}

// AdminActor returns who the admin request claims to act for.
func AdminActor(c *gin.Context) string {
	if v, ok := c.Get(adminActorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

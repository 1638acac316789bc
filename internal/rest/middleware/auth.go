package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/types"
)

// TenantMiddleware resolves the calling tenant and user from request headers
// and sets them in the request context for downstream handlers. The gateway
// in front of this service authenticates callers and stamps the headers;
// absent headers fall back to the default tenant.
func TenantMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID := c.GetHeader(types.HeaderTenantID)
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}
	userID := c.GetHeader(types.HeaderUserID)
	if userID == "" {
		userID = types.DefaultUserID
	}

	ctx = types.SetTenantID(ctx, tenantID)
	ctx = types.SetUserID(ctx, userID)
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

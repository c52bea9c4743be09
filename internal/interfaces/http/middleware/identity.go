// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strings"

	"ai-novel-orchestrator/internal/interfaces/http/dto"
	"ai-novel-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxIdentityLen = 128

// Identity 从 X-User-ID 解析调用方身份，缺省为 anonymous
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := strings.TrimSpace(c.GetHeader(dto.IdentityHeader))
		if identity == "" {
			identity = dto.AnonymousIdentity
		}
		if len(identity) > maxIdentityLen {
			dto.BadRequest(c, "X-User-ID too long")
			c.Abort()
			return
		}

		c.Set("identity", identity)
		ctx := logger.WithContext(c.Request.Context(), logger.IdentityKey, identity)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

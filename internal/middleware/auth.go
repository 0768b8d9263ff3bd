package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAPIToken 校验静态 Bearer Token（demo 级别保护，
// 生产环境应替换为真实认证体系）。
func RequireAPIToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Unauthenticated",
			})
			return
		}
		c.Next()
	}
}

// RequireCallbackToken 可选的回调来源校验：token 为空时不启用，
// 与网关原始行为保持一致（不校验回调真实性）。
func RequireCallbackToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Callback-Token")), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid callback token",
			})
			return
		}
		c.Next()
	}
}

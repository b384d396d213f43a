package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	resp "go-gin-auth-session/internal/transport/http/response"
)

const HeaderAdminToken = "X-Admin-Token"

// AdminToken 后台静态令牌；未配置令牌时后台整体关闭
func AdminToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			resp.Fail(c, resp.CodeForbidden, "admin console disabled")
			return
		}
		got := []byte(c.GetHeader(HeaderAdminToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			resp.Fail(c, resp.CodeUnauthorized, "invalid admin token")
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "go-gin-auth-session/internal/transport/http/response"
)

// MaxBodyBytes 声明长度超限直接 413；未声明长度的由 MaxBytesReader 在绑定时报错
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > n {
			resp.Fail(c, resp.CodeTooLarge, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
